package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 2033, cfg.Export.FragmentLength)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  cors_origins:
    - http://localhost:5173
database:
  driver: mysql
  host: db
  port: 3306
  user: root
  dbname: widgets
export:
  fragment_length: 4000
  terminal_policy: drop_blank
  cache_ttl: 30s
redis:
  enabled: true
  addr: cache:6379
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "widgets", cfg.Database.DBName)
	// unset keys keep their defaults
	assert.Equal(t, 100, cfg.Database.MaxOpenConns)
	assert.Equal(t, 4000, cfg.Export.FragmentLength)
	assert.Equal(t, "drop_blank", cfg.Export.TerminalPolicy)
	assert.Equal(t, 30*time.Second, cfg.Export.CacheTTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "chunkjson:", cfg.Redis.KeyPrefix)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("CHUNKJSON_DATABASE_DRIVER", "sqlite")
	t.Setenv("CHUNKJSON_DATABASE_PATH", ":memory:")
	t.Setenv("CHUNKJSON_EXPORT_FRAGMENT_LENGTH", "512")
	t.Setenv("CHUNKJSON_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 7000\n"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, 512, cfg.Export.FragmentLength)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"bad policy", "export:\n  terminal_policy: sometimes\n"},
		{"zero length", "export:\n  fragment_length: 0\n"},
		{"oversized length", "export:\n  fragment_length: 2000000\n"},
		{"bad driver", "database:\n  driver: oracle\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad mode", "server:\n  mode: prod\n"},
		{"bad log output", "log:\n  output: syslog\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CHUNKJSON_SERVER_PORT=6060\nCHUNKJSON_LOG_LEVEL=warn\n"), 0o600))
	t.Setenv("CHUNKJSON_LOG_LEVEL", "error")
	t.Cleanup(func() { _ = os.Unsetenv("CHUNKJSON_SERVER_PORT") })

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
	// variables already set win over the file
	assert.Equal(t, "error", cfg.Log.Level)
}
