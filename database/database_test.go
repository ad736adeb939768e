package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "release", config.Mode)
	assert.Equal(t, 8000, config.Port)
	assert.Equal(t, "memory", config.Database.Driver)
	assert.Equal(t, 5*time.Second, config.Database.RetryInterval)
	assert.False(t, config.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, config.Redis.SessionTTL)
	assert.Equal(t, 60*time.Second, config.WebSocket.PongWait)
	assert.Equal(t, 5*time.Second, config.Quiz.EventTimeout)
	assert.Equal(t, "@every 1h", config.Sweeper.Schedule)
	assert.Equal(t, "info", config.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"port": 9000,
		"allow_origins": ["https://mio.example"],
		"database": {"driver": "postgres", "host": "db", "port": 5433, "retry_interval": "2s"},
		"redis": {"enabled": true, "session_ttl": "30m"},
		"quiz": {"event_timeout": "1500ms"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Port)
	assert.Equal(t, []string{"https://mio.example"}, config.AllowOrigins)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "db", config.Database.Host)
	assert.Equal(t, 5433, config.Database.Port)
	assert.Equal(t, 2*time.Second, config.Database.RetryInterval)
	assert.True(t, config.Redis.Enabled)
	assert.Equal(t, 30*time.Minute, config.Redis.SessionTTL)
	assert.Equal(t, 1500*time.Millisecond, config.Quiz.EventTimeout)
	// ファイルに無いキーは既定値のまま
	assert.Equal(t, "mio", config.Database.Name)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MIO_PORT", "7000")
	t.Setenv("MIO_DATABASE_HOST", "pg.internal")
	t.Setenv("MIO_AUTH_SECRET", "from-env")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 7000, config.Port)
	assert.Equal(t, "pg.internal", config.Database.Host)
	assert.Equal(t, "from-env", config.Auth.Secret)
}

func TestLoadConfigBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": `), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
