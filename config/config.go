// Package config loads server configuration from file, environment
// variables and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server. The core treats
// the backend targets as opaque constructor parameters.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	// CacheBackend selects the token cache index: "redis" or "memory".
	CacheBackend string `mapstructure:"CACHE_BACKEND"`

	GrantTTLSeconds int `mapstructure:"GRANT_TTL_SECONDS"`

	// Basic-auth credentials for the /management surface.
	AdminUser     string `mapstructure:"ADMIN_USER"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/sentinel/")
	v.AddConfigPath("$HOME/.sentinel")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/sentinel_dev")
	v.SetDefault("MONGO_DB_NAME", "sentinel_dev")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("CACHE_BACKEND", "redis")
	v.SetDefault("GRANT_TTL_SECONDS", 100)
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASSWORD", "") // empty disables /management
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we run on defaults and env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
