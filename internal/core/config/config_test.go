package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requiredEnv is the minimal set of required keys for a successful Load.
var requiredEnv = map[string]string{
	"DATABASE_URL":         "postgres://localhost:5432/fulfillment",
	"FEDEX_API_URL":        "https://apis.fedex.test",
	"FEDEX_CLIENT_ID":      "client_test",
	"FEDEX_CLIENT_SECRET":  "secret_test",
	"FEDEX_ACCOUNT_NUMBER": "510087000",
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	for k, v := range requiredEnv {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range requiredEnv {
			os.Unsetenv(k)
		}
	})
}

// TestLoad_Defaults verifies that default values are used when env vars are missing.
func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("APP_ENV")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("FEDEX_MAX_TRANSIT_DAYS")
	os.Unsetenv("FEDEX_TIMEOUT_SECONDS")
	setRequiredEnv(t)

	cfg, err := Load(".")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 5, cfg.FedEx.MaxTransitDays)
	assert.Equal(t, 15*time.Second, cfg.FedEx.Timeout())
	assert.Equal(t, 60*time.Second, cfg.OrderCacheTTL())
}

// TestLoad_EnvVars verifies that environment variables override defaults.
func TestLoad_EnvVars(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("APP_ENV", "production")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	os.Setenv("FEDEX_TIMEOUT_SECONDS", "30")
	defer func() {
		os.Unsetenv("APP_ENV")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("FEDEX_TIMEOUT_SECONDS")
	}()

	cfg, err := Load(".")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "https://apis.fedex.test", cfg.FedEx.APIURL)
	assert.Equal(t, 30*time.Second, cfg.FedEx.Timeout())
}

// TestLoad_File verifies that values are loaded from a .env file.
func TestLoad_File(t *testing.T) {
	content := []byte(`
APP_ENV=staging
LOG_LEVEL=warn
SERVER_PORT=7070
DATABASE_URL=postgres://staging:5432/fulfillment
FEDEX_API_URL=https://apis-sandbox.fedex.test
FEDEX_CLIENT_ID=client_staging
FEDEX_CLIENT_SECRET=secret_staging
FEDEX_ACCOUNT_NUMBER=740561073
`)
	err := os.WriteFile(".env", content, 0644)
	require.NoError(t, err)
	defer os.Remove(".env")

	cfg, err := Load(".")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7070, cfg.ServerPort)
	assert.Equal(t, "https://apis-sandbox.fedex.test", cfg.FedEx.APIURL)
}

// TestLoad_ValidationFailure verifies that missing required fields return an error.
func TestLoad_ValidationFailure(t *testing.T) {
	for k := range requiredEnv {
		os.Unsetenv(k)
	}

	cfg, err := Load(".")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "missing required configuration")
}
