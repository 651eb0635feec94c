package handlers

import (
	"context"
	"net/http"
	"time"

	"emergency-backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

type HealthHandler struct {
	db          *mongo.Database
	redisClient *redis.Client
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

func NewHealthHandler(db *mongo.Database, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Timestamp: time.Now(),
		Services:  make(map[string]interface{}),
	}

	healthy := true

	mongoStatus := map[string]interface{}{"service": "mongodb", "healthy": false}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.db.Client().Ping(ctx, nil); err != nil {
			mongoStatus["error"] = err.Error()
			healthy = false
		} else {
			mongoStatus["healthy"] = true
		}
		cancel()
	} else {
		healthy = false
	}
	response.Services["mongodb"] = mongoStatus

	// Redis only backs the rate limiter; its outage degrades the limiter,
	// it does not make the service unhealthy.
	redisStatus := map[string]interface{}{"service": "redis", "healthy": false}
	if h.redisClient != nil {
		hs := h.redisClient.HealthCheck()
		redisStatus["healthy"] = hs.IsConnected
		redisStatus["connectionInfo"] = hs.ConnectionInfo
		redisStatus["responseTime"] = hs.ResponseTime.String()
		if hs.Error != "" {
			redisStatus["error"] = hs.Error
		}
	}
	response.Services["redis"] = redisStatus

	if healthy {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}
