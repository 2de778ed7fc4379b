package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads file and fills defaults", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 9090

[jwt]
secret = "file-secret"

[chat]
max_page_size = 500
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "file-secret", cfg.JWT.Secret)
		assert.Equal(t, 500, cfg.Chat.MaxPageSize)
		assert.Equal(t, 50, cfg.Chat.DefaultPageSize)
		assert.Equal(t, 2000, cfg.Chat.MaxContentLength)
		assert.Equal(t, "groupchat.membership", cfg.Kafka.Topics.Membership)
		assert.False(t, cfg.Kafka.Enabled)
		assert.False(t, cfg.Cloudinary.Enabled())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[jwt]
secret = "file-secret"
`)
		t.Setenv("GROUPCHAT_JWT_SECRET", "env-secret")
		t.Setenv("GROUPCHAT_SERVER_PORT", "7000")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.JWT.Secret)
		assert.Equal(t, 7000, cfg.Server.Port)
	})

	t.Run("missing secret is rejected", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 8080
`)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			JWT:  JWTConfig{Secret: "s"},
			Chat: DefaultChatConfig(),
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Chat.MaxPageSize = 10
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Kafka.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate())
}
