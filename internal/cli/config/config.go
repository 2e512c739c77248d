package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wp-orm/wpmeta/internal/store/sqlstore"
)

// Config represents the wpmeta configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// CacheConfig represents the optional Redis cache
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
	Prefix    string        `mapstructure:"prefix"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix is prepended to environment variable overrides, e.g. WPMETA_DATABASE_DSN
const EnvPrefix = "WPMETA"

// Load loads the configuration from wpmeta.yaml in the working directory,
// or from path when it is not empty. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "wpmeta.db")
	v.SetDefault("database.table_prefix", "wp_")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.prefix", "wpmeta:")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wpmeta")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if _, err := sqlstore.DialectFor(cfg.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	if !sqlstore.ValidPrefix(cfg.Database.TablePrefix) {
		return fmt.Errorf("database.table_prefix must match [A-Za-z0-9_]+, got: %q", cfg.Database.TablePrefix)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got: %s", cfg.Log.Format)
	}
	return nil
}
