// Package config provides configuration for the artnode daemon.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all settings for the daemon.
type Config struct {
	// HTTP server
	HTTPPort string `toml:"http_port"`
	Env      string `toml:"env"`

	// Database
	DatabaseURL string `toml:"database_url"`

	// Art-Net endpoint
	BindAddr       string `toml:"bind_addr"`
	Port           int    `toml:"port"`
	BroadcastAddr  string `toml:"broadcast_addr"`  // empty: auto-detect or fan-out
	SubnetPrefix   string `toml:"subnet_prefix"`   // empty: derive from interfaces
	PollIntervalMS int    `toml:"poll_interval_ms"`

	// DMX output
	Universe     int `toml:"universe"`
	ActiveRateHz int `toml:"active_rate_hz"`
	IdleRateHz   int `toml:"idle_rate_hz"`

	// Logging
	LogLevel string `toml:"log_level"`

	// CORS
	CORSOrigin string `toml:"cors_origin"`
}

// Load builds the configuration from environment variables with sensible
// defaults, then overlays the optional TOML file named by ARTNODE_CONFIG.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "4000"),
		Env:      getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", "file:./artnode.db"),

		BindAddr:       getEnv("ARTNET_BIND", ""),
		Port:           getEnvInt("ARTNET_PORT", 6454),
		BroadcastAddr:  getEnv("ARTNET_BROADCAST", ""),
		SubnetPrefix:   getEnv("ARTNET_SUBNET_PREFIX", ""),
		PollIntervalMS: getEnvInt("ARTNET_POLL_INTERVAL", 10),

		Universe:     getEnvInt("DMX_UNIVERSE", 0),
		ActiveRateHz: getEnvInt("DMX_ACTIVE_RATE", 44),
		IdleRateHz:   getEnvInt("DMX_IDLE_RATE", 1),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}

	if path := os.Getenv("ARTNODE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// PollInterval returns the receive poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// IsDevelopment reports whether the daemon runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a
// default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
