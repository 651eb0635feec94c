package ratelimit

import (
	"time"
)

// RateLimiter guards endpoints against bursts, most importantly alert
// creation spam.
type RateLimiter interface {
	Allow(clientID string, endpoint string) (bool, time.Duration, error)
	LimitFor(endpoint string) RateLimit
	GetStats() Stats
}

// RateLimit is the per-window budget for an endpoint category.
type RateLimit struct {
	RequestsPerMinute int           `json:"requestsPerMinute"`
	BurstSize         int           `json:"burstSize"`
	WindowSize        time.Duration `json:"windowSize"`
}

// Stats reports limiter activity.
type Stats struct {
	TotalRequests   int64 `json:"totalRequests"`
	BlockedRequests int64 `json:"blockedRequests"`
}
