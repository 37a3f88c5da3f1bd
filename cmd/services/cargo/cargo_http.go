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
	"novafreight-system/internal/services/cargo/handler"
)

func main() {
	godotenv.Load()
	cfg := config.LoadConfig()

	zlog, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	dsn := os.Getenv("CARGO_DSN")
	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := handler.MigrateCargoDB(db); err != nil {
		log.Fatalf("Failed to migrate cargo database: %v", err)
	}

	r := gin.Default()

	cargoHandler := handler.NewCargoHandler(db, redisClient, zlog)
	cargoHandler.RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	r.GET("/metrics", metrics.Handler())

	port := ":8082"
	zlog.Info("cargo service listening", "port", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
