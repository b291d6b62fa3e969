package runnerbot

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[bot]
token = "abc"
admins = [123]

[db]
host = "localhost"
database = "karma"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(3), cfg.Orders.StartingBalance)

	lc := cfg.Orders.Lifecycle()
	assert.Equal(t, 10, lc.ClaimWindow)
	assert.Equal(t, time.Minute, lc.TickInterval)

	assert.True(t, cfg.IsAdmin(snowflake.ID(123)))
	assert.False(t, cfg.IsAdmin(snowflake.ID(456)))
}

func TestLoadConfigRejectsIncompleteConfig(t *testing.T) {
	path := writeConfig(t, `
[archive]
enabled = true
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot.token is required")
	assert.Contains(t, err.Error(), "archive.bucket is required")
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
[bot]
token = "abc"
tokn = "typo"
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
