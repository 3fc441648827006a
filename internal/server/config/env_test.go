package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	t.Setenv("REMINDSYNC_DATABASE_DSN", "postgres://env")
	t.Setenv("REMINDSYNC_LEAD_WINDOW", "30m")
	t.Setenv("REMINDSYNC_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("REMINDSYNC_LEADER_LOCK_KEY", "99")
	t.Setenv("REMINDSYNC_CACHE_BACKEND", "redis")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
	assert.Equal(t, 30*time.Minute, cfg.LeadWindow)
	assert.Equal(t, 4, cfg.RetryMaxAttempts)
	assert.Equal(t, int64(99), cfg.LeaderLockKey)
	assert.Equal(t, BackendRedis, cfg.CacheBackend)
	assert.Equal(t, ":8090", cfg.LiveAddr)
}

func TestParseEnv_BadDurationPanics(t *testing.T) {
	t.Setenv("REMINDSYNC_CACHE_TTL", "forever")

	require.Panics(t, func() { parseEnv(&Config{}) })
}
