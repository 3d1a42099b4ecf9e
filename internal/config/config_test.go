package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("ORACLE_PROVIDER", "")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "gemini", cfg.OracleProvider)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ORACLE_PROVIDER", "delphic")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigProviderNone(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ORACLE_PROVIDER", "none")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "none", cfg.OracleProvider)
}
