package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://exams.local/")
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("DEFAULT_DURATION_SECONDS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "http://exams.local", cfg.BackendURL)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 3600, cfg.DefaultDurationSeconds)
	assert.Equal(t, StoreDriverRedis, cfg.StoreDriver)
	assert.Equal(t, 48*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.ReviewTTL)
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		parseOrigins(" https://a.example, ,https://b.example "))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "user:7:exam:42:remaining", CacheKey.RemainingKey(7, 42))
	assert.NotContains(t, CacheKey.SessionKeys(7, 42), CacheKey.ReviewKey(7, 42))
}
