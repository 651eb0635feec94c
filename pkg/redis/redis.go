package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"emergency-backend/internal/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client with health reporting. The rate limiter
// keeps working on an in-memory fallback when Redis is down, so connection
// failures here are logged, not fatal.
type Client struct {
	client *redis.Client
	config config.RedisConfig
}

type HealthStatus struct {
	IsConnected    bool          `json:"isConnected"`
	LastPing       time.Time     `json:"lastPing"`
	ResponseTime   time.Duration `json:"responseTime"`
	ConnectionInfo string        `json:"connectionInfo"`
	Error          string        `json:"error,omitempty"`
}

func NewClient(cfg config.RedisConfig) *Client {
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			log.Printf("Failed to parse Redis URL: %v, falling back to host:port", err)
		} else {
			opt = parsed
		}
	}
	if opt == nil {
		opt = &redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	opt.PoolSize = cfg.PoolSize

	return &Client{
		client: redis.NewClient(opt),
		config: cfg,
	}
}

// GetClient returns the underlying go-redis client.
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// HealthCheck pings Redis and reports connection state.
func (c *Client) HealthCheck() HealthStatus {
	status := HealthStatus{
		LastPing:       time.Now(),
		ConnectionInfo: c.client.Options().Addr,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.IsConnected = true
	return status
}

func (c *Client) Close() error {
	return c.client.Close()
}
