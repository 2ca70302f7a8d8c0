package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Engine   EngineConfig
	Tracing  TracingConfig
	Redis    RedisConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Database      string
	SSLMode       string
	MigrationsDir string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL string
}

// EngineConfig bounds a single graph run's resource consumption.
type EngineConfig struct {
	MaxExecutionSteps       int
	MaxExecutionTimeSeconds int
	MaxWorkers              int
	MaxSubmitCount          int
	KeepAliveIntervalSeconds int
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	OTLPEndpoint   string
}

// RedisConfig points at the cache used for carved sub-graphs.
type RedisConfig struct {
	Addr    string
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8080),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "appuser"),
			Password: getEnv("DB_PASSWORD", "apppass"),
			Database:      getEnv("DB_NAME", "appdb"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Engine: EngineConfig{
			MaxExecutionSteps:        getEnvInt("MAX_EXECUTION_STEPS", 500),
			MaxExecutionTimeSeconds:  getEnvInt("MAX_EXECUTION_TIME_SECONDS", 600),
			MaxWorkers:               getEnvInt("MAX_WORKERS", 10),
			MaxSubmitCount:           getEnvInt("MAX_SUBMIT_COUNT", 100),
			KeepAliveIntervalSeconds: getEnvInt("KEEPALIVE_INTERVAL_SECONDS", 30),
		},
		Tracing: TracingConfig{
			Enabled:      getEnv("OTEL_ENABLED", "false") == "true",
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "duragraph-server"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnv("REDIS_ENABLED", "false") == "true",
		},
	}

	return cfg, nil
}

// ExecutionTime returns the engine's max-execution-time as a duration.
func (c *Config) ExecutionTime() time.Duration {
	return time.Duration(c.Engine.MaxExecutionTimeSeconds) * time.Second
}

// KeepAliveInterval returns the streaming keep-alive cadence as a duration.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.Engine.KeepAliveIntervalSeconds) * time.Second
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// ServerAddr returns the server address
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
