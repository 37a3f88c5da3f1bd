package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Redis    RedisConfig
	Services ServicesConfig
	Breaker  BreakerConfig
	Auth     AuthConfig
}

type ServicesConfig struct {
	UserURL       string
	CargoURL      string
	StorageURL    string
	MissionURL    string
	LookupTimeout time.Duration
}

type BreakerConfig struct {
	FailureThreshold int
	WindowSize       int
	CoolDown         time.Duration
	HalfOpenProbes   int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Services: ServicesConfig{
			UserURL:       getEnv("USER_SERVICE_URL", "http://localhost:8081"),
			CargoURL:      getEnv("CARGO_SERVICE_URL", "http://localhost:8082"),
			StorageURL:    getEnv("STORAGE_SERVICE_URL", "http://localhost:8083"),
			MissionURL:    getEnv("MISSION_SERVICE_URL", "http://localhost:8084"),
			LookupTimeout: getEnvDuration("LOOKUP_TIMEOUT", 2*time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			WindowSize:       getEnvInt("BREAKER_WINDOW_SIZE", 20),
			CoolDown:         getEnvDuration("BREAKER_COOL_DOWN", 30*time.Second),
			HalfOpenProbes:   getEnvInt("BREAKER_HALF_OPEN_PROBES", 1),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
			TokenTTL:  getEnvDuration("TOKEN_TTL", 12*time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
