package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Redis         RedisConfig
	Gateway       GatewayConfig
	IDP           IDPConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig holds record store gateway configuration
type StoreConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// RedisConfig holds the shared cache connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds gateway admin API configuration
type GatewayConfig struct {
	AdminURL string
}

// IDPConfig holds identity provider client configuration
type IDPConfig struct {
	DiscoveryTTL time.Duration
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string
	LogJSON        bool
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GANTRY_HOST", "0.0.0.0"),
			Port:            getEnv("GANTRY_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GANTRY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GANTRY_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("GANTRY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GANTRY_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Endpoint: getEnv("GANTRY_STORE_ENDPOINT", ""),
			Token:    getEnv("GANTRY_STORE_TOKEN", ""),
			Timeout:  getEnvDuration("GANTRY_STORE_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("GANTRY_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("GANTRY_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GANTRY_REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			AdminURL: getEnv("GANTRY_GATEWAY_ADMIN_URL", ""),
		},
		IDP: IDPConfig{
			DiscoveryTTL: getEnvDuration("GANTRY_IDP_DISCOVERY_TTL", time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("GANTRY_LOG_LEVEL", "info"),
			LogJSON:        getEnvBool("GANTRY_LOG_JSON", false),
			MetricsEnabled: getEnvBool("GANTRY_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Store.Endpoint == "" {
		return fmt.Errorf("store endpoint is required")
	}
	if c.Gateway.AdminURL == "" {
		return fmt.Errorf("gateway admin URL is required")
	}
	if c.IDP.DiscoveryTTL <= 0 {
		return fmt.Errorf("discovery TTL must be positive")
	}
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
