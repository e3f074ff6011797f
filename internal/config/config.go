package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Scraper Scraper
	Browser Browser
	Storage Storage
	Server  Server
	Redis   Redis
	Logging Logging
}

type Scraper struct {
	// Concurrency bounds the detail-fetch worker pool.
	Concurrency int
	// MaxRetries is the per-URL retry budget for transient failures.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// SettleDelay is the pause between listing page transitions.
	SettleDelay time.Duration
	// FlushEvery flushes the detail sink after this many completions.
	FlushEvery int
	// TaxMultiplier backs tax out of tax-inclusive listing prices.
	TaxMultiplier float64
}

type Browser struct {
	Headless       bool
	NavTimeout     time.Duration
	OpTimeout      time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type Storage struct {
	// RawDir holds one listing sink per group (<RawDir>/<GROUP>.jsonl).
	RawDir string
	// StateDir holds one checkpoint file per group (<StateDir>/<GROUP>.txt).
	StateDir string
	// DetailsFile is the shared detail sink.
	DetailsFile string
}

type Server struct {
	Enabled         bool
	Port            string
	ShutdownTimeout time.Duration
}

type Redis struct {
	Enabled   bool
	Addr      string
	DB        int
	Stream    string
	MaxLength int
}

type Logging struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Scraper: Scraper{
			Concurrency:   getIntOrDefault("SCRAPER_CONCURRENCY", 8),
			MaxRetries:    getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			BackoffBase:   getDurationOrDefault("SCRAPER_BACKOFF_BASE", 1*time.Second),
			SettleDelay:   getDurationOrDefault("SCRAPER_SETTLE_DELAY", 3*time.Second),
			FlushEvery:    getIntOrDefault("SCRAPER_FLUSH_EVERY", 10),
			TaxMultiplier: getFloatOrDefault("SCRAPER_TAX_MULTIPLIER", 1.10),
		},
		Browser: Browser{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			NavTimeout:     getDurationOrDefault("BROWSER_NAV_TIMEOUT", 30*time.Second),
			OpTimeout:      getDurationOrDefault("BROWSER_OP_TIMEOUT", 20*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9,ja;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Storage: Storage{
			RawDir:      getEnvOrDefault("STORAGE_RAW_DIR", "./data/raw"),
			StateDir:    getEnvOrDefault("STORAGE_STATE_DIR", "./data/state"),
			DetailsFile: getEnvOrDefault("STORAGE_DETAILS_FILE", "./data/data.jsonl"),
		},
		Server: Server{
			Enabled:         getBoolOrDefault("SERVER_ENABLED", false),
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Redis: Redis{
			Enabled:   getBoolOrDefault("REDIS_ENABLED", false),
			Addr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			DB:        getIntOrDefault("REDIS_DB", 0),
			Stream:    getEnvOrDefault("REDIS_STREAM", "gunpla:records"),
			MaxLength: getIntOrDefault("REDIS_STREAM_MAXLEN", 10000),
		},
		Logging: Logging{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Concurrency < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENCY must be at least 1")
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}
	if c.Scraper.BackoffBase <= 0 {
		return fmt.Errorf("SCRAPER_BACKOFF_BASE must be positive")
	}
	if c.Scraper.FlushEvery < 1 {
		return fmt.Errorf("SCRAPER_FLUSH_EVERY must be at least 1")
	}
	if c.Scraper.TaxMultiplier <= 0 {
		return fmt.Errorf("SCRAPER_TAX_MULTIPLIER must be positive")
	}
	if c.Storage.RawDir == "" || c.Storage.StateDir == "" || c.Storage.DetailsFile == "" {
		return fmt.Errorf("storage paths cannot be empty")
	}
	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
