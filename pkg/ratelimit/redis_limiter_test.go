package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimiter(client, DefaultConfig()), mr
}

func TestRedisLimiter_AllowsWithinBurst(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	// alerts_create has a burst of 3.
	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, reset, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, reset, time.Duration(0))
}

func TestRedisLimiter_ClientsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		_, _, err := limiter.Allow("user:a", "POST:/api/v1/alerts")
		require.NoError(t, err)
	}
	allowed, _, err := limiter.Allow("user:a", "POST:/api/v1/alerts")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, err = limiter.Allow("user:b", "POST:/api/v1/alerts")
	require.NoError(t, err)
	assert.True(t, allowed, "a different client keeps its own budget")
}

func TestRedisLimiter_CategoriesAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		_, _, err := limiter.Allow("user:a", "POST:/api/v1/alerts")
		require.NoError(t, err)
	}
	allowed, _, err := limiter.Allow("user:a", "POST:/api/v1/alerts")
	require.NoError(t, err)
	require.False(t, allowed)

	// Reading alerts is a different, far looser budget.
	allowed, _, err = limiter.Allow("user:a", "GET:/api/v1/alerts/nearby")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_WindowResets(t *testing.T) {
	limiter, mr := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		_, _, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
		require.NoError(t, err)
	}
	allowed, _, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
	require.NoError(t, err)
	require.False(t, allowed)

	// A fresh window after the old one expires.
	mr.FlushAll()

	allowed, _, err = limiter.Allow("user:abc", "POST:/api/v1/alerts")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_Disabled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := DefaultConfig()
	config.Enabled = false
	limiter := NewRedisRateLimiter(client, config)

	for i := 0; i < 50; i++ {
		allowed, _, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisLimiter_RedisDownIsAnError(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	_, _, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
	assert.Error(t, err)
}

func TestRedisLimiter_Stats(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		limiter.Allow("user:abc", "POST:/api/v1/alerts")
	}

	stats := limiter.GetStats()
	assert.Equal(t, int64(5), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.BlockedRequests)
}

func TestEndpointKeyMapping(t *testing.T) {
	config := DefaultConfig()

	cases := map[string]string{
		"POST:/api/v1/auth/login":         "auth_login",
		"POST:/api/v1/auth/register":      "auth_register",
		"POST:/api/v1/alerts":             "alerts_create",
		"GET:/api/v1/alerts/nearby":       "alerts",
		"GET:/api/v1/alerts/:id":          "alerts",
		"POST:/api/v1/alerts/:id/accept":  "alerts",
		"PATCH:/api/v1/alerts/:id/status": "alerts",
		"GET:/api/v1/users/me":            "users",
		"GET:/api/v1/health":              "health",
		"GET:/api/v1/ws":                  "default",
	}

	for endpoint, want := range cases {
		assert.Equal(t, want, config.EndpointKey(endpoint), endpoint)
	}
}

func TestMemoryLimiter_BurstThenBlocked(t *testing.T) {
	limiter := NewMemoryRateLimiter(DefaultConfig())

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, reset, err := limiter.Allow("user:abc", "POST:/api/v1/alerts")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, reset, time.Duration(0))

	// Another client is untouched.
	allowed, _, err = limiter.Allow("user:other", "POST:/api/v1/alerts")
	require.NoError(t, err)
	assert.True(t, allowed)
}
