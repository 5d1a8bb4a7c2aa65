// Package config provides configuration management for AdminKit
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/types"
)

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host        string        `mapstructure:"host" yaml:"host" validate:"required"`
	Port        int           `mapstructure:"port" yaml:"port" validate:"required,gt=0,lte=65535"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CORSEnabled bool          `mapstructure:"cors_enabled" yaml:"cors_enabled"`
	CORSOrigins []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
}

// CacheConfig represents cache backend configuration
type CacheConfig struct {
	Backend         types.CacheBackend `mapstructure:"backend" yaml:"backend" validate:"required,oneof=memory redis"`
	CleanupInterval time.Duration      `mapstructure:"cleanup_interval" yaml:"cleanup_interval" validate:"gt=0"`
	Redis           RedisConfig        `mapstructure:"redis" yaml:"redis"`
}

// RateLimitConfig represents global rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	MaxRequests   int64    `mapstructure:"max_requests" yaml:"max_requests" validate:"gt=0"`
	WindowSeconds int      `mapstructure:"window_seconds" yaml:"window_seconds" validate:"gt=0"`
	ExemptPaths   []string `mapstructure:"exempt_paths" yaml:"exempt_paths"`
}

// Window returns the configured window as a duration
func (c *RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// PermissionsConfig represents permission caching configuration
type PermissionsConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" yaml:"cache_ttl_seconds" validate:"gt=0"`
}

// CacheTTL returns the permission cache TTL as a duration
func (c *PermissionsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DatabaseConfig represents relational store configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"required,oneof=sqlite"`
	Path   string `mapstructure:"path" yaml:"path" validate:"required"`
}

// AuthConfig represents token issuing configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`
}

// Config is the root AdminKit configuration
type Config struct {
	LogLevel    string            `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Permissions PermissionsConfig `mapstructure:"permissions" yaml:"permissions"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
}

// Default returns a configuration populated with development defaults
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			Timeout:     30 * time.Second,
			CORSEnabled: true,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/adminkit.db",
		},
		Cache: CacheConfig{
			Backend:         types.CacheBackendMemory,
			CleanupInterval: 60 * time.Second,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   100,
			WindowSeconds: 60,
			ExemptPaths:   []string{"/health", "/metrics"},
		},
		Permissions: PermissionsConfig{
			CacheTTLSeconds: 300,
		},
		Auth: AuthConfig{
			JWTSecret: "change-me-in-production",
			TokenTTL:  time.Hour,
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.timeout", cfg.Server.Timeout)
	v.SetDefault("server.cors_enabled", cfg.Server.CORSEnabled)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("cache.backend", string(cfg.Cache.Backend))
	v.SetDefault("cache.cleanup_interval", cfg.Cache.CleanupInterval)
	v.SetDefault("cache.redis.addr", cfg.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", cfg.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", cfg.Cache.Redis.DB)
	v.SetDefault("cache.redis.pool_size", cfg.Cache.Redis.PoolSize)
	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.max_requests", cfg.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window_seconds", cfg.RateLimit.WindowSeconds)
	v.SetDefault("rate_limit.exempt_paths", cfg.RateLimit.ExemptPaths)
	v.SetDefault("permissions.cache_ttl_seconds", cfg.Permissions.CacheTTLSeconds)
	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("ADMINKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads configuration from an optional YAML file, applies environment
// overrides (ADMINKIT_ prefix), and validates eagerly. Invalid configuration
// fails here, not on first use.
func Load(path string) (*Config, error) {
	v := newViper(path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewConfigNotFoundError(path)
			}
			return nil, errors.NewAdminErrorWithCause(types.ErrorTypeValidation,
				errors.ErrCodeConfigError, "failed to read config file", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewAdminErrorWithCause(types.ErrorTypeValidation,
			errors.ErrCodeConfigError, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints on the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.NewConfigInvalidError(err.Error())
	}
	if !c.Cache.Backend.IsValid() {
		return errors.NewConfigInvalidError(
			fmt.Sprintf("unsupported cache backend: %s", c.Cache.Backend))
	}
	return nil
}

// ToYAMLFile saves the configuration to a YAML file
func (c *Config) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Watch reloads the configuration when the file changes and invokes the
// callback with the freshly validated result. Invalid edits are reported
// and the previous configuration stays in effect.
func Watch(path string, callback func(*Config), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			onError(err)
			return
		}
		if err := cfg.Validate(); err != nil {
			onError(err)
			return
		}
		callback(cfg)
	})

	return nil
}
