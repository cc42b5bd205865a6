package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.RateLimitPeriod)
	assert.Equal(t, "THB", cfg.PaymentCurrency)
	assert.Contains(t, cfg.DatabaseURL, "localhost:5432")
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestLoad_DatabaseURLFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "db")
	t.Setenv("POSTGRESQL_USER", "app")
	t.Setenv("POSTGRESQL_PASSWORD", "p@ss")
	t.Setenv("POSTGRESQL_DBNAME", "consult")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss@db:5432/consult?sslmode=disable", cfg.DatabaseURL)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionRejectsMemoryStorage(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("OMISE_PUBLIC_KEY", "pkey_test")
	t.Setenv("OMISE_SECRET_KEY", "skey_test")
	t.Setenv("STORAGE_DRIVER", "memory")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionTrimsOrigins(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("OMISE_PUBLIC_KEY", "pkey_test")
	t.Setenv("OMISE_SECRET_KEY", "skey_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_InvalidStorageDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)
}
