package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":       "postgres://localhost:5432/pricing",
		"REDIS_URL":          "redis://localhost:6379/0",
		"PORT":               "",
		"APP_ENV":            "",
		"RATE_LIMIT":         "",
		"ORDER_LOCK_TTL":     "",
		"SWEEP_INTERVAL":     "",
		"WORKER_CONCURRENCY": "",
	})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, "120-M", cfg.RateLimit)
	assert.Equal(t, 10*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":         "postgres://localhost:5432/pricing",
		"REDIS_URL":            "redis://localhost:6379/0",
		"PORT":                 "9090",
		"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com",
		"ORDER_LOCK_TTL":       "30s",
		"WORKER_CONCURRENCY":   "4",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379/0",
	})
	require.Error(t, err)
}
