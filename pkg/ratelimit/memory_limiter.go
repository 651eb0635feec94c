package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// MemoryRateLimiter is the in-process fallback used when Redis is not
// configured or unreachable. Token buckets refill continuously at the
// endpoint's per-minute rate.
type MemoryRateLimiter struct {
	config  *Config
	stats   Stats
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	capacity   int
	tokens     float64
	lastRefill time.Time
}

func NewMemoryRateLimiter(config *Config) *MemoryRateLimiter {
	if config == nil {
		config = DefaultConfig()
	}

	limiter := &MemoryRateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}

	go limiter.cleanupLoop()
	return limiter
}

func (m *MemoryRateLimiter) Allow(clientID string, endpoint string) (bool, time.Duration, error) {
	if !m.config.Enabled {
		return true, 0, nil
	}

	atomic.AddInt64(&m.stats.TotalRequests, 1)

	category := m.config.EndpointKey(endpoint)
	limit := m.config.Limit(category)
	key := clientID + ":" + category

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	now := time.Now()
	if !ok {
		b = &bucket{
			capacity:   limit.BurstSize,
			tokens:     float64(limit.BurstSize),
			lastRefill: now,
		}
		m.buckets[key] = b
	}

	refill := float64(limit.RequestsPerMinute) * now.Sub(b.lastRefill).Minutes()
	b.tokens += refill
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}

	atomic.AddInt64(&m.stats.BlockedRequests, 1)
	resetTime := time.Minute / time.Duration(limit.RequestsPerMinute)
	return false, resetTime, nil
}

func (m *MemoryRateLimiter) LimitFor(endpoint string) RateLimit {
	return m.config.Limit(m.config.EndpointKey(endpoint))
}

func (m *MemoryRateLimiter) GetStats() Stats {
	return Stats{
		TotalRequests:   atomic.LoadInt64(&m.stats.TotalRequests),
		BlockedRequests: atomic.LoadInt64(&m.stats.BlockedRequests),
	}
}

// cleanupLoop drops buckets idle long enough to be full again.
func (m *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		m.mu.Lock()
		for key, b := range m.buckets {
			if b.lastRefill.Before(cutoff) {
				delete(m.buckets, key)
			}
		}
		m.mu.Unlock()
	}
}
