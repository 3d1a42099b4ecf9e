package config

import (
	"errors"
	"os"
)

type Config struct {
	Port           string
	RedisAddr      string
	JWTSecret      string
	OracleProvider string // "gemini" or "none"
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "redis:6379"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		OracleProvider: getEnvOrDefault("ORACLE_PROVIDER", "gemini"),
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if config.OracleProvider != "gemini" && config.OracleProvider != "none" {
		return errors.New("unsupported oracle provider: " + config.OracleProvider + ". Currently supported: gemini, none")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
