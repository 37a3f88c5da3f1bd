package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"novafreight-system/config"
	"novafreight-system/internal/database"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/platform/metrics"
	"novafreight-system/internal/services/user/handler"
	"novafreight-system/internal/utils"
)

func main() {
	godotenv.Load()
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.Auth.JWTSecret)

	zlog, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	dsn := os.Getenv("USER_DSN")
	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := handler.MigrateUserDB(db); err != nil {
		log.Fatalf("Failed to migrate user database: %v", err)
	}

	r := gin.Default()

	userHandler := handler.NewUserHandler(db, redisClient, zlog, cfg.Auth.TokenTTL)
	userHandler.RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	r.GET("/metrics", metrics.Handler())

	port := ":8081"
	zlog.Info("user service listening", "port", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
