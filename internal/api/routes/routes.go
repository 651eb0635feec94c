package routes

import (
	"emergency-backend/internal/api/handlers"
	"emergency-backend/internal/api/middleware"
	"emergency-backend/internal/config"
	"emergency-backend/internal/repository"
	"emergency-backend/internal/services"
	"emergency-backend/internal/websocket"
	"emergency-backend/pkg/jwt"
	"emergency-backend/pkg/ratelimit"
	"emergency-backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// SetupRoutes wires repositories, services and handlers onto the router.
// The push channel and fan-out engine come in already started; they live
// for the whole process.
func SetupRoutes(router *gin.Engine, db *mongo.Database, redisClient *redis.Client, manager *websocket.Manager, engine *services.FanoutEngine, cfg *config.Config) {
	userRepo := repository.NewUserRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	jwtUtil := jwt.NewJWTUtil(cfg.JWTSecret, cfg.JWTExpiry)

	authService := services.NewAuthService(userRepo, jwtUtil)
	coordinator := services.NewCoordinator(alertRepo, userRepo, engine, cfg.FanoutRadiusMeters)

	authHandler := handlers.NewAuthHandler(authService)
	alertHandler := handlers.NewAlertHandler(coordinator)
	wsHandler := handlers.NewWebSocketHandler(manager, jwtUtil)
	healthHandler := handlers.NewHealthHandler(db, redisClient)

	var limiter ratelimit.RateLimiter
	if redisClient != nil && redisClient.HealthCheck().IsConnected {
		limiter = ratelimit.NewRedisRateLimiter(redisClient.GetClient(), ratelimit.DefaultConfig())
	} else {
		limiter = ratelimit.NewMemoryRateLimiter(ratelimit.DefaultConfig())
	}

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(limiter))

	api.GET("/health", healthHandler.HealthCheck)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// WebSocket upgrade authenticates via query token, not the header
	// middleware.
	api.GET("/ws", wsHandler.HandleWebSocket)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(jwtUtil))
	{
		users := protected.Group("/users")
		{
			users.GET("/me", authHandler.GetProfile)
			users.PATCH("/me/location", authHandler.UpdateLocation)
		}

		alerts := protected.Group("/alerts")
		{
			alerts.POST("", alertHandler.CreateAlert)
			alerts.GET("/nearby", alertHandler.GetNearbyAlerts)
			alerts.GET("/me", alertHandler.GetMyAlerts)
			alerts.GET("/:id", alertHandler.GetAlert)
			alerts.POST("/:id/accept", alertHandler.AcceptAlert)
			alerts.PATCH("/:id/status", alertHandler.UpdateAlertStatus)
			alerts.GET("/:id/route", alertHandler.GetAlertRoute)
		}

		protected.GET("/ws/stats", wsHandler.GetConnectedUsers)
	}
}
