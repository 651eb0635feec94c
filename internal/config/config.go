package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	MongoURI       string
	JWTSecret      string
	JWTExpiry      time.Duration
	AllowedOrigins []string

	// Fan-out tuning.
	FanoutRadiusMeters float64
	FanoutWorkers      int
	FanoutBuffer       int

	Redis RedisConfig
}

type RedisConfig struct {
	URL          string
	Host         string
	Port         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		log.Fatal("MONGO_URI environment variable is not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173"
	}

	jwtExpiry, err := time.ParseDuration(os.Getenv("JWT_EXPIRY"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return &Config{
		Port:               port,
		MongoURI:           mongoURI,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiry:          jwtExpiry,
		AllowedOrigins:     strings.Split(allowedOrigins, ","),
		FanoutRadiusMeters: envFloat("FANOUT_RADIUS_METERS", 2000),
		FanoutWorkers:      envInt("FANOUT_WORKERS", 4),
		FanoutBuffer:       envInt("FANOUT_BUFFER", 256),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Host:         envString("REDIS_HOST", "localhost"),
			Port:         envString("REDIS_PORT", "6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           envInt("REDIS_DB", 0),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
