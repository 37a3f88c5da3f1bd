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
	"novafreight-system/internal/coordinator"
	"novafreight-system/internal/database"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/platform/metrics"
	"novafreight-system/internal/services/storage/handler"
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

	dsn := os.Getenv("STORAGE_DSN")
	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := handler.MigrateStorageDB(db); err != nil {
		log.Fatalf("Failed to migrate storage database: %v", err)
	}

	svcClients := clients.NewServiceClients(cfg.Services)
	defer svcClients.Close()

	v := validator.New(cfg.Services.LookupTimeout, validator.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		WindowSize:       cfg.Breaker.WindowSize,
		CoolDown:         cfg.Breaker.CoolDown,
		HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
	}, zlog)

	// Capacity mutations must not proceed on unverifiable users or cargo.
	// Spacecraft references on a transaction are contextual, so an outage of
	// the mission service does not block the loading dock.
	v.Register(validator.KindUser,
		clients.NewCachedDirectory(clients.NewDirectory(svcClients.User, "users"), redisClient, "user"),
		validator.FallbackReject)
	v.Register(validator.KindCargo,
		clients.NewCachedDirectory(clients.NewDirectory(svcClients.Cargo, "cargo"), redisClient, "cargo"),
		validator.FallbackReject)
	v.Register(validator.KindStorageUnit,
		handler.NewUnitDirectory(db),
		validator.FallbackReject)
	v.Register(validator.KindSpacecraft,
		clients.NewDirectory(svcClients.Mission, "spacecraft"),
		validator.FallbackAllow)

	store := handler.NewGormStore(db)
	cargoLookup := clients.NewCargoClient(svcClients.Cargo)
	coord := coordinator.New(store, v, cargoLookup, zlog)

	r := gin.Default()

	storageHandler := handler.NewStorageHandler(db, coord, zlog)
	storageHandler.RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	r.GET("/metrics", metrics.Handler())

	port := ":8083"
	zlog.Info("storage service listening", "port", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
