package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"novafreight-system/config"
	"novafreight-system/internal/clients"
	"novafreight-system/internal/database"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/platform/metrics"
	"novafreight-system/internal/services/mission/handler"
	"novafreight-system/internal/validator"
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

	dsn := os.Getenv("MISSION_DSN")
	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := handler.MigrateMissionDB(db); err != nil {
		log.Fatalf("Failed to migrate mission database: %v", err)
	}

	svcClients := clients.NewServiceClients(cfg.Services)
	defer svcClients.Close()

	v := validator.New(cfg.Services.LookupTimeout, validator.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		WindowSize:       cfg.Breaker.WindowSize,
		CoolDown:         cfg.Breaker.CoolDown,
		HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
	}, zlog)

	// Manifest creation is load-bearing: every cross-service reference must
	// verify, so every kind fails safe.
	v.Register(validator.KindUser,
		clients.NewCachedDirectory(clients.NewDirectory(svcClients.User, "users"), redisClient, "user"),
		validator.FallbackReject)
	v.Register(validator.KindCargo,
		clients.NewCachedDirectory(clients.NewDirectory(svcClients.Cargo, "cargo"), redisClient, "cargo"),
		validator.FallbackReject)
	v.Register(validator.KindStorageUnit,
		clients.NewCachedDirectory(clients.NewDirectory(svcClients.Storage, "storage_units"), redisClient, "storage_unit"),
		validator.FallbackReject)

	r := gin.Default()

	missionHandler := handler.NewMissionHandler(db, v, zlog)
	missionHandler.RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	r.GET("/metrics", metrics.Handler())

	port := ":8084"
	zlog.Info("mission service listening", "port", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
