package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"GO_ENV", "TCP_HOST", "TCP_PORT", "SHUTDOWN_TIMEOUT", "MAX_CONNECTIONS",
	"MAX_MESSAGE_SIZE", "IDLE_TIMEOUT", "WRITE_TIMEOUT", "RATE_LIMIT", "RATE_BURST",
	"HTTP_PORT", "DATABASE_URL", "DB_MAX_CONNS", "REDIS_URL", "REDIS_PASSWORD",
	"CACHE_TTL", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key for the duration of the test; empty values select defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfigFile(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.TCPHost)
	assert.Equal(t, 8081, cfg.TCPPort)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(0), cfg.MaxConnections)
	assert.Equal(t, 1024*1024, cfg.MaxMessageSize)
	assert.Zero(t, cfg.IdleTimeout, "idle sessions stay open unless configured")
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:8081", cfg.TCPAddr())
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GO_ENV", "production")
	t.Setenv("TCP_PORT", "9000")
	t.Setenv("MAX_CONNECTIONS", "256")
	t.Setenv("RATE_LIMIT", "12.5")
	t.Setenv("IDLE_TIMEOUT", "30s")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "Text")

	cfg, err := LoadConfigFile(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.TCPPort)
	assert.Equal(t, int64(256), cfg.MaxConnections)
	assert.Equal(t, 12.5, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, int32(4), cfg.DBMaxConns)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.IsProduction())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ParseErrors(t *testing.T) {
	cases := map[string]string{
		"TCP_PORT":         "eighty",
		"SHUTDOWN_TIMEOUT": "5 seconds",
		"MAX_CONNECTIONS":  "many",
		"RATE_LIMIT":       "fast",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := LoadConfigFile(missingFile(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set, even to ""
	os.Unsetenv("TCP_PORT")
	os.Unsetenv("REDIS_URL")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TCP_PORT=7070\nREDIS_URL=redis://cache:6379\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("TCP_PORT")
		os.Unsetenv("REDIS_URL")
	})

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.TCPPort)
	assert.Equal(t, "redis://cache:6379", cfg.RedisURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TCPPort:         8081,
			HTTPPort:        0,
			MaxMessageSize:  1024,
			ShutdownTimeout: time.Second,
			DBMaxConns:      1,
			LogLevel:        "info",
			LogFormat:       "json",
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"TCP_PORT":         func(c *Config) { c.TCPPort = 70000 },
		"HTTP_PORT":        func(c *Config) { c.HTTPPort = -1 },
		"MAX_CONNECTIONS":  func(c *Config) { c.MaxConnections = -5 },
		"MAX_MESSAGE_SIZE": func(c *Config) { c.MaxMessageSize = 0 },
		"SHUTDOWN_TIMEOUT": func(c *Config) { c.ShutdownTimeout = 0 },
		"RATE_LIMIT":       func(c *Config) { c.RateLimit = -1 },
		"RATE_BURST":       func(c *Config) { c.RateLimit = 5; c.RateBurst = 0 },
		"DB_MAX_CONNS":     func(c *Config) { c.DBMaxConns = 0 },
		"LOG_LEVEL":        func(c *Config) { c.LogLevel = "verbose" },
		"LOG_FORMAT":       func(c *Config) { c.LogFormat = "xml" },
	}
	for key, mutate := range cases {
		t.Run(key, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestSlogLevel_DefaultsToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "unknown"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).SlogLevel())
	assert.NotNil(t, (&Config{LogFormat: "text"}).NewLogger())
}
