package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Message store
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Redis. Empty keeps websocket events on this instance.
	RedisURL string

	// JWT
	JWTSecret string

	// Gemini AI. The relay reads GEMINI_API_KEY per request, this copy only
	// feeds the speech engine.
	GeminiAPIKey string
	GeminiModel  string

	// Relay client
	RelayURL     string
	RelayAnonKey string

	// Uploads
	MaxImageBytes int

	// Chat sessions idle longer than this are dropped from memory
	SessionIdleTimeout time.Duration

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	port := getEnvOrDefault("PORT", "8080")
	driver := getEnvOrDefault("STORE_DRIVER", StoreDriverPostgres)

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefault("ENV", "development"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		StoreDriver:        driver,
		SQLitePath:         getEnvOrDefault("SQLITE_PATH", "./gemchat.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		RelayURL:           getEnvOrDefault("RELAY_URL", fmt.Sprintf("http://localhost:%s/functions/v1/gemini-chat", port)),
		RelayAnonKey:       getEnvOrDefault("RELAY_ANON_KEY", ""),
		MaxImageBytes:      getEnvAsIntOrDefault("MAX_IMAGE_BYTES", 5*1024*1024),
		SessionIdleTimeout: time.Duration(getEnvAsIntOrDefault("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if driver == StoreDriverPostgres {
		cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	}

	return cfg
}

// LoadRelay reads only what the stand-alone relay function needs.
func LoadRelay() *Config {
	godotenv.Load()

	return &Config{
		Port:        getEnvOrDefault("PORT", "8081"),
		Env:         getEnvOrDefault("ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		GeminiModel: getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash-exp"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
