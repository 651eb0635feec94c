package main

import (
	"context"
	"log"

	"emergency-backend/internal/api/routes"
	"emergency-backend/internal/config"
	"emergency-backend/internal/repository"
	"emergency-backend/internal/services"
	"emergency-backend/internal/websocket"
	"emergency-backend/pkg/database"
	"emergency-backend/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Disconnect(db.Client())

	ctx := context.Background()
	if err := repository.NewUserRepository(db).CreateIndexes(ctx); err != nil {
		log.Printf("Warning: failed to create user indexes: %v", err)
	}
	if err := repository.NewAlertRepository(db).CreateIndexes(ctx); err != nil {
		log.Printf("Warning: failed to create alert indexes: %v", err)
	}

	redisClient := redis.NewClient(cfg.Redis)
	defer redisClient.Close()

	if hs := redisClient.HealthCheck(); hs.IsConnected {
		log.Printf("Redis connected at %s", hs.ConnectionInfo)
	} else {
		log.Printf("Redis unavailable (%s), rate limiting falls back to memory", hs.Error)
	}

	// The push channel and fan-out engine are constructed once here and
	// injected down the stack.
	manager := websocket.NewManager()
	if err := manager.Start(); err != nil {
		log.Fatal("Failed to start push channel:", err)
	}
	defer manager.Stop()

	engine := services.NewFanoutEngine(manager, cfg.FanoutWorkers, cfg.FanoutBuffer)
	engine.Start()
	defer engine.Stop()

	router := gin.Default()

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Protocol"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, db, redisClient, manager, engine, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(router.Run(":" + cfg.Port))
}
