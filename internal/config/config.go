package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the discussion service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	PublicBaseURL            string

	AllowAnyOrigin bool

	LLMProvider       string
	GeminiBaseURL     string
	GeminiModel       string
	LLMRequestTimeout time.Duration
	LLMMaxRetries     int

	DiscussionTimeLimit    time.Duration
	DiscussionTickInterval time.Duration
	ShareLinkTTL           time.Duration

	SpeechProvider string
	PersonasFile   string

	DatabaseURL       string
	ReportsSQLitePath string
	BackendURL        string
	BackendToken      string
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "roundtable"),
		PublicBaseURL:            envOrDefault("APP_PUBLIC_BASE_URL", "http://localhost:8080"),
		AllowAnyOrigin:           false,
		LLMProvider:              strings.ToLower(envOrDefault("LLM_PROVIDER", "gemini")),
		GeminiBaseURL:            envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:              envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		SpeechProvider:           strings.ToLower(envOrDefault("SPEECH_PROVIDER", "none")),
		PersonasFile:             stringsTrimSpace("PERSONAS_FILE"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ReportsSQLitePath:        stringsTrimSpace("REPORTS_SQLITE_PATH"),
		BackendURL:               stringsTrimSpace("BACKEND_URL"),
		BackendToken:             stringsTrimSpace("BACKEND_TOKEN"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		LLMRequestTimeout:        60 * time.Second,
		LLMMaxRetries:            2,
		DiscussionTimeLimit:      10 * time.Minute,
		DiscussionTickInterval:   time.Second,
		ShareLinkTTL:             7 * 24 * time.Hour,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMRequestTimeout, err = durationFromEnv("LLM_REQUEST_TIMEOUT", cfg.LLMRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxRetries, err = intFromEnv("LLM_MAX_RETRIES", cfg.LLMMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.DiscussionTimeLimit, err = durationFromEnv("DISCUSSION_DEFAULT_TIME_LIMIT", cfg.DiscussionTimeLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.DiscussionTickInterval, err = durationFromEnv("DISCUSSION_TICK_INTERVAL", cfg.DiscussionTickInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ShareLinkTTL, err = durationFromEnv("SHARE_LINK_TTL", cfg.ShareLinkTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < time.Minute {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 1m")
	}
	switch cfg.LLMProvider {
	case "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("LLM_PROVIDER must be gemini or mock, got %q", cfg.LLMProvider)
	}
	switch cfg.SpeechProvider {
	case "none", "mock":
	default:
		return Config{}, fmt.Errorf("SPEECH_PROVIDER must be none or mock, got %q", cfg.SpeechProvider)
	}
	if cfg.LLMRequestTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_REQUEST_TIMEOUT must be positive")
	}
	if cfg.LLMMaxRetries < 0 {
		return Config{}, fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	if cfg.DiscussionTimeLimit < time.Minute {
		return Config{}, fmt.Errorf("DISCUSSION_DEFAULT_TIME_LIMIT must be at least 1m")
	}
	if cfg.DiscussionTickInterval <= 0 {
		return Config{}, fmt.Errorf("DISCUSSION_TICK_INTERVAL must be positive")
	}
	if cfg.ShareLinkTTL <= 0 {
		return Config{}, fmt.Errorf("SHARE_LINK_TTL must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
