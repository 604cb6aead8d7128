// Package config reads process configuration from the environment, after
// loading an optional .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	UploadDir string
	Addr      string
	LogLevel  string
	DryRun    bool

	Gemini  GeminiConfig
	Bluesky BlueskyConfig
	X       XConfig
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type BlueskyConfig struct {
	BaseURL string
	Timeout time.Duration
	// Identifier and AppPassword are a CLI convenience and never persisted.
	Identifier  string
	AppPassword string
}

type XConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Configured reports whether all four X secrets are set.
func (x XConfig) Configured() bool {
	return x.ConsumerKey != "" && x.ConsumerSecret != "" && x.AccessToken != "" && x.AccessSecret != ""
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	genTimeout, err := getDuration("GENERATION_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	bskyTimeout, err := getDuration("BSKY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath:    getEnv("HELPMEPOST_DB", "./helpmepost.sqlite"),
		UploadDir: getEnv("HELPMEPOST_UPLOAD_DIR", "./uploads"),
		Addr:      getEnv("HELPMEPOST_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		DryRun:    getEnv("DRY_RUN", "0") == "1",
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout: genTimeout,
		},
		Bluesky: BlueskyConfig{
			BaseURL:     getEnv("BSKY_BASE_URL", "https://bsky.social"),
			Timeout:     bskyTimeout,
			Identifier:  getEnv("BSKY_IDENTIFIER", ""),
			AppPassword: getEnv("BSKY_APP_PASSWORD", ""),
		},
		X: XConfig{
			ConsumerKey:    getEnv("X_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("X_CONSUMER_SECRET", ""),
			AccessToken:    getEnv("X_ACCESS_TOKEN", ""),
			AccessSecret:   getEnv("X_ACCESS_SECRET", ""),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s: must be positive, got %s", key, v)
	}
	return d, nil
}
