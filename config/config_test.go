package config_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/config"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017")
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("CREDENTIALS_SECRET_KEY", base64.URLEncoding.EncodeToString(make([]byte, 32)))
}

func TestLoadValid(t *testing.T) {
	setValidEnv(t)
	t.Setenv("PUBLIC_URL", "https://weft.example.com")
	t.Setenv("SCHEDULER_TICK_SECONDS", "5")
	t.Setenv("WORKER_COUNT", "8")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "weft", cfg.DatabaseName)
	assert.Len(t, cfg.CredentialsKey, 32)
	assert.Equal(t, "https://weft.example.com", cfg.PublicURL)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 8, cfg.WorkerCount)
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Empty(t, cfg.PublicURL)
}

func TestLoadReportsAllProblems(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SECRET_KEY", "")
	t.Setenv("CREDENTIALS_SECRET_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "REDIS_URL")
	assert.ErrorContains(t, err, "DATABASE_URL")
	assert.ErrorContains(t, err, "SECRET_KEY")
	assert.ErrorContains(t, err, "CREDENTIALS_SECRET_KEY")
}

func TestLoadRejectsBadCredentialKey(t *testing.T) {
	setValidEnv(t)

	t.Setenv("CREDENTIALS_SECRET_KEY", "%%%not-base64%%%")
	_, err := config.Load()
	assert.ErrorContains(t, err, "base64url")

	t.Setenv("CREDENTIALS_SECRET_KEY", base64.URLEncoding.EncodeToString(make([]byte, 16)))
	_, err = config.Load()
	assert.ErrorContains(t, err, "32 bytes")
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	setValidEnv(t)

	t.Setenv("SCHEDULER_TICK_SECONDS", "zero")
	_, err := config.Load()
	assert.ErrorContains(t, err, "SCHEDULER_TICK_SECONDS")

	t.Setenv("SCHEDULER_TICK_SECONDS", "1")
	t.Setenv("WORKER_COUNT", "-2")
	_, err = config.Load()
	assert.ErrorContains(t, err, "WORKER_COUNT")
}
