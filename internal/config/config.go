package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageFile  = "file"
	StorageRedis = "redis"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	BindAddr       string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	StorageBackend string
	StorePath      string
	RedisURL       string
	Profile        string

	// YouTubeAPIKey only seeds storage that holds no snapshot yet
	YouTubeAPIKey     string
	YouTubeAPIBaseURL string
	CatalogRateLimit  float64
	CatalogBurst      int
	CatalogTimeout    time.Duration

	UploadsPageSize   int
	ProblemClearDelay time.Duration
	PlayerBaseURL     string
	// RefreshSchedule is a cron spec; empty disables periodic refresh
	RefreshSchedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		BindAddr:          getEnv("BIND_ADDR", "127.0.0.1"),
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Environment:       getEnv("ENVIRONMENT", "production"),
		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
		StorePath:         getEnv("STORE_PATH", defaultStorePath()),
		RedisURL:          getEnv("REDIS_URL", ""),
		Profile:           getEnv("STORE_PROFILE", "default"),
		YouTubeAPIKey:     getEnv("YOUTUBE_API_KEY", ""),
		YouTubeAPIBaseURL: getEnv("YOUTUBE_API_BASE_URL", ""),
		PlayerBaseURL:     getEnv("PLAYER_BASE_URL", "https://www.youtube.com/embed/"),
		RefreshSchedule:   "@every 30m",
	}

	if schedule, ok := os.LookupEnv("REFRESH_SCHEDULE"); ok {
		cfg.RefreshSchedule = strings.TrimSpace(schedule)
	}

	var err error
	if cfg.UploadsPageSize, err = getIntEnv("UPLOADS_PAGE_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.CatalogBurst, err = getIntEnv("CATALOG_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.CatalogRateLimit, err = getFloatEnv("CATALOG_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.CatalogTimeout, err = getDurationEnv("CATALOG_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProblemClearDelay, err = getDurationEnv("PROBLEM_CLEAR_DELAY", 5*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile:
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required for the file backend")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %s or %s)", c.StorageBackend, StorageFile, StorageRedis)
	}
	if c.UploadsPageSize < 1 || c.UploadsPageSize > 50 {
		return fmt.Errorf("UPLOADS_PAGE_SIZE must be between 1 and 50, got %d", c.UploadsPageSize)
	}
	if c.ProblemClearDelay <= 0 {
		return fmt.Errorf("PROBLEM_CLEAR_DELAY must be positive")
	}
	return nil
}

// Addr returns the listen address of the view API
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "subfeed.json"
	}
	return filepath.Join(dir, "subfeed", "subfeed.json")
}
