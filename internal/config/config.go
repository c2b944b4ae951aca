package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port        string
	ServiceName string
	LogLevel    string

	// Database configuration
	DBType               string // mysql, mariadb, postgres, sqlite, sqlite-purego, sqlserver
	DBHost               string
	DBPort               string
	DBAppDatabase        string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int

	// Content storage
	UploadDir string

	// Local sessions
	SessionExpiration time.Duration

	// Authorizer configuration (optional)
	AuthzURL      string
	AuthzClientID string

	// Event broker (optional)
	RabbitMQURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		ServiceName:          getEnv("SERVICE_NAME", "librarydb"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DBType:               getEnv("DB_TYPE", "sqlite"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "3306"),
		DBAppDatabase:        getEnv("DB_DATABASE", ""),
		DBAppUser:            getEnv("DB_APP_USER", ""),
		DBAppPassword:        getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit: getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		UploadDir:            getEnv("UPLOAD_DIR", "./static"),
		SessionExpiration:    getEnvAsDuration("SESSION_EXPIRATION", 24*time.Hour),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
	}

	// Validate required fields
	if cfg.DBAppDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if !cfg.IsFileDatabase() && cfg.DBAppUser == "" {
		return nil, fmt.Errorf("DB_APP_USER is required for %s", cfg.DBType)
	}
	if (cfg.AuthzURL == "") != (cfg.AuthzClientID == "") {
		return nil, fmt.Errorf("AUTHZ_URL and AUTHZ_CLIENT_ID must be set together")
	}

	return cfg, nil
}

// IsFileDatabase reports whether DB_DATABASE names a local sqlite file
func (c *Config) IsFileDatabase() bool {
	return c.DBType == "sqlite" || c.DBType == "sqlite-purego"
}

// AuthorizerEnabled reports whether sessions may also be validated by an Authorizer instance
func (c *Config) AuthorizerEnabled() bool {
	return c.AuthzURL != "" && c.AuthzClientID != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
