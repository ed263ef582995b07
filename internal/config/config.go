package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Storage backend: "postgres" or "memory"
	StorageBackend string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress string

	// JWT configuration
	JWTSecret string

	// internal secret used for operator/internal endpoints
	InternalSecret string

	FrontendAddress string

	// Autosave cadence (advisory to clients)
	AutosaveBaseInterval time.Duration
	AutosaveMinInterval  time.Duration
	AutosaveMaxInterval  time.Duration

	// Retry policy
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxRetries  int

	// Performance thresholds
	SuccessRateThreshold float64
	SaveTimeThreshold    time.Duration
	SyncTimeThreshold    time.Duration
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	AppConfig = Config{
		ServerPort:     getEnv("PORT", "8080"),
		Environment:    getEnv("ENV", "development"),
		StorageBackend: getEnv("STORAGE_BACKEND", "postgres"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "autosave_engine"),
		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		JWTSecret:      getEnv("JWT_SECRET", "autosave-jwt-secret"),
		InternalSecret: getEnv("INTERNAL_SECRET", "autosave-internal-secret"),

		FrontendAddress: getEnv("FRONTEND_ADDRESS", "https://production-frontend.com"),

		AutosaveBaseInterval: getEnvDuration("AUTOSAVE_BASE_INTERVAL_MS", 2000),
		AutosaveMinInterval:  getEnvDuration("AUTOSAVE_MIN_INTERVAL_MS", 500),
		AutosaveMaxInterval:  getEnvDuration("AUTOSAVE_MAX_INTERVAL_MS", 30000),

		BackoffBase: getEnvDuration("BACKOFF_BASE_MS", 250),
		BackoffMax:  getEnvDuration("BACKOFF_MAX_MS", 30000),
		MaxRetries:  getEnvInt("MAX_RETRIES", 3),

		SuccessRateThreshold: getEnvFloat("SUCCESS_RATE_THRESHOLD", 99.5),
		SaveTimeThreshold:    getEnvDuration("SAVE_TIME_THRESHOLD_MS", 300),
		SyncTimeThreshold:    getEnvDuration("SYNC_TIME_THRESHOLD_MS", 2000),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid value for %s, using default %v", key, defaultValue)
		return defaultValue
	}
	return f
}

// getEnvDuration reads a millisecond value from the environment
func getEnvDuration(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
