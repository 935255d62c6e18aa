package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// Config is the process configuration, read from the environment (and .env when present).
type Config struct {
	Port            string        `validate:"required,numeric"`
	DatabaseURL     string        `validate:"required"`
	JWTSecret       string        `validate:"required,min=16"`
	AllowedOrigins  string        // comma-separated; empty disables CORS
	StorageBackend  string        `validate:"oneof=postgres badger memory"`
	BadgerPath      string        `validate:"required_if=StorageBackend badger"`
	DashboardAPIURL string        `validate:"omitempty,url"`
	DownloadDir     string        `validate:"required"`
	OpenAIAPIKey    string        // optional; canned chat replies when empty
	SessionIdleTTL  time.Duration `validate:"gt=0"`
	LogLevel        string        `validate:"oneof=debug info warn error"`
	LogFormat       string        `validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads .env (if any) and the process environment, applies defaults and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ttl, err := durationEnv("SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            envOr("SERVER_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		AllowedOrigins:  os.Getenv("ALLOWED_ORIGINS"),
		StorageBackend:  envOr("STORAGE_BACKEND", BackendPostgres),
		BadgerPath:      envOr("BADGER_PATH", "data/badger"),
		DashboardAPIURL: os.Getenv("DASHBOARD_API_URL"),
		DownloadDir:     envOr("DOWNLOAD_DIR", "downloads"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		SessionIdleTTL:  ttl,
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationEnv accepts Go durations ("45m") or a bare number of seconds.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
