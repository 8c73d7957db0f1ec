// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken   string
	TelegramToken string
	PollInterval  time.Duration
	ListenAddr    string
	DBPath        string
}

// Load reads configuration from the environment and returns a validated
// Config. A .env file in the working directory is loaded first if present;
// real environment variables take precedence over it.
// Required: ISSUEGRAM_GITHUB_TOKEN, ISSUEGRAM_TELEGRAM_TOKEN.
// Optional with defaults: ISSUEGRAM_POLL_INTERVAL (5m),
// ISSUEGRAM_LISTEN_ADDR (127.0.0.1:8080), ISSUEGRAM_DB_PATH (issuegram.db).
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("ISSUEGRAM_GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("ISSUEGRAM_GITHUB_TOKEN is required")
	}

	telegramToken := os.Getenv("ISSUEGRAM_TELEGRAM_TOKEN")
	if telegramToken == "" {
		return nil, fmt.Errorf("ISSUEGRAM_TELEGRAM_TOKEN is required")
	}

	pollInterval := 5 * time.Minute
	if v, ok := os.LookupEnv("ISSUEGRAM_POLL_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ISSUEGRAM_POLL_INTERVAL has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("ISSUEGRAM_POLL_INTERVAL must be positive, got %q", v)
		}
		pollInterval = parsed
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("ISSUEGRAM_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "issuegram.db"
	if v, ok := os.LookupEnv("ISSUEGRAM_DB_PATH"); ok {
		dbPath = v
	}

	return &Config{
		GitHubToken:   token,
		TelegramToken: telegramToken,
		PollInterval:  pollInterval,
		ListenAddr:    listenAddr,
		DBPath:        dbPath,
	}, nil
}
