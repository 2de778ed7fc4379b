package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/GroupChat/config"
)

func TestBuildDSN(t *testing.T) {
	cfg := &config.PostgresConfig{
		Host:     "db",
		Port:     "5432",
		User:     "chat",
		Password: "secret",
		DBName:   "groupchat",
	}
	assert.Equal(t, "host=db port=5432 user=chat password=secret dbname=groupchat sslmode=disable", BuildDSN(cfg))

	cfg.SSLMode = "require"
	assert.Contains(t, BuildDSN(cfg), "sslmode=require")
}

func TestParseGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, parseGormLogLevel("silent"))
	assert.Equal(t, logger.Info, parseGormLogLevel("info"))
	assert.Equal(t, logger.Warn, parseGormLogLevel(""))
}
