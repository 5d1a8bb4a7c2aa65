package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/types"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, types.CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 5*time.Minute, cfg.Permissions.CacheTTL())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, types.CacheBackendMemory, cfg.Cache.Backend)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: warn
server:
  host: 0.0.0.0
  port: 9090
cache:
  backend: redis
  redis:
    addr: redis.internal:6379
rate_limit:
  max_requests: 25
  window_seconds: 30
auth:
  jwt_secret: file-provided-secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, types.CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, int64(25), cfg.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window())

	// Unspecified keys keep their defaults.
	assert.Equal(t, 300, cfg.Permissions.CacheTTLSeconds)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ADMINKIT_SERVER_PORT", "7070")
	t.Setenv("ADMINKIT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidBackendFailsEagerly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: memcached\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxRequests = 0 }},
		{"zero window", func(c *Config) { c.RateLimit.WindowSeconds = 0 }},
		{"zero permission ttl", func(c *Config) { c.Permissions.CacheTTLSeconds = 0 }},
		{"unknown db driver", func(c *Config) { c.Database.Driver = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToYAMLFile_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 9191
	cfg.Auth.JWTSecret = "round-trip-secret-key"

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, cfg.ToYAMLFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, loaded.Server.Port)
	assert.Equal(t, "round-trip-secret-key", loaded.Auth.JWTSecret)
}
