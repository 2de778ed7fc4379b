// Package testutil builds throwaway infrastructure for package tests: an
// in-memory SQLite database with the production schema and a miniredis server.
package testutil

import (
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/storage"
)

// NewTestDB opens a private in-memory database and migrates it.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库只允许单连接，避免事务与普通查询之间出现 "database is locked"
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	return db
}

// NewTestRedis starts a miniredis server and returns a client bound to it.
func NewTestRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// SeedProfiles inserts display profiles for the given user IDs, using the ID
// as the username.
func SeedProfiles(t testing.TB, db *gorm.DB, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		require.NoError(t, db.Create(&model.Profile{UserID: id, Username: id}).Error)
	}
}
