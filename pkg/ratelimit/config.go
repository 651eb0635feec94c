package ratelimit

import (
	"strings"
	"time"
)

// Config holds per-endpoint-category limits.
type Config struct {
	DefaultLimits  map[string]RateLimit `json:"defaultLimits"`
	RedisKeyPrefix string               `json:"redisKeyPrefix"`
	Enabled        bool                 `json:"enabled"`
}

// DefaultConfig returns the limits used in production. Alert creation is
// deliberately tight; one user has no business raising dozens of
// emergencies a minute.
func DefaultConfig() *Config {
	return &Config{
		DefaultLimits: map[string]RateLimit{
			"auth_login":    {RequestsPerMinute: 5, BurstSize: 3, WindowSize: time.Minute},
			"auth_register": {RequestsPerMinute: 5, BurstSize: 3, WindowSize: time.Minute},

			"alerts_create": {RequestsPerMinute: 6, BurstSize: 3, WindowSize: time.Minute},
			"alerts":        {RequestsPerMinute: 120, BurstSize: 30, WindowSize: time.Minute},

			"users": {RequestsPerMinute: 30, BurstSize: 10, WindowSize: time.Minute},

			"health": {RequestsPerMinute: 1000, BurstSize: 100, WindowSize: time.Minute},

			"default": {RequestsPerMinute: 60, BurstSize: 15, WindowSize: time.Minute},
		},
		RedisKeyPrefix: "ratelimit:",
		Enabled:        true,
	}
}

// EndpointKey maps a "METHOD:/path" pair to a rate limit category.
func (c *Config) EndpointKey(key string) string {
	switch {
	case key == "POST:/api/v1/auth/login":
		return "auth_login"
	case key == "POST:/api/v1/auth/register":
		return "auth_register"
	case key == "POST:/api/v1/alerts":
		return "alerts_create"
	case strings.HasPrefix(key, "GET:/api/v1/alerts"),
		strings.HasPrefix(key, "POST:/api/v1/alerts/"),
		strings.HasPrefix(key, "PATCH:/api/v1/alerts/"):
		return "alerts"
	case strings.Contains(key, "/api/v1/users"):
		return "users"
	case key == "GET:/api/v1/health":
		return "health"
	}
	return "default"
}

// Limit returns the budget for an endpoint category, falling back to the
// default.
func (c *Config) Limit(category string) RateLimit {
	if limit, ok := c.DefaultLimits[category]; ok {
		return limit
	}
	if limit, ok := c.DefaultLimits["default"]; ok {
		return limit
	}
	return RateLimit{RequestsPerMinute: 60, BurstSize: 15, WindowSize: time.Minute}
}
