package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"novafreight-system/config"
	"novafreight-system/internal/gateway/handlers"
	"novafreight-system/internal/gateway/middleware"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/platform/metrics"
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

	userProxy := mustProxy("User service", cfg.Services.UserURL, zlog)
	cargoProxy := mustProxy("Cargo service", cfg.Services.CargoURL, zlog)
	storageProxy := mustProxy("Storage service", cfg.Services.StorageURL, zlog)
	missionProxy := mustProxy("Mission service", cfg.Services.MissionURL, zlog)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit("60-M"))

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", userProxy.Forward("/api/v1"))
			auth.POST("/register", userProxy.Forward("/api/v1"))
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		users := protected.Group("/users")
		{
			users.Any("", userProxy.Forward("/api/v1"))
			users.Any("/*path", userProxy.Forward("/api/v1"))
		}

		cargo := protected.Group("/cargo")
		{
			cargo.Any("", cargoProxy.Forward("/api/v1"))
			cargo.Any("/*path", cargoProxy.Forward("/api/v1"))
		}

		storage := protected.Group("/storage")
		{
			storage.Any("/*path", storageProxy.Forward("/api/v1"))
		}

		spacecraft := protected.Group("/spacecraft")
		{
			spacecraft.Any("", missionProxy.Forward("/api/v1"))
			spacecraft.Any("/*path", missionProxy.Forward("/api/v1"))
		}

		manifests := protected.Group("/manifests")
		{
			manifests.Any("", missionProxy.Forward("/api/v1"))
			manifests.Any("/*path", missionProxy.Forward("/api/v1"))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Gateway is running",
			"timestamp": time.Now(),
		})
	})
	r.GET("/metrics", metrics.Handler())

	port := ":8080"
	zlog.Info("gateway listening", "port", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func mustProxy(name, baseURL string, zlog *logger.Logger) *handlers.ServiceProxy {
	proxy, err := handlers.NewServiceProxy(name, baseURL, zlog)
	if err != nil {
		log.Fatalf("Invalid %s URL %q: %v", name, baseURL, err)
	}
	return proxy
}
