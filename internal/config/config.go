package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CallbackPath is the route the gateway serves the OAuth redirect on. The
// redirect URI registered with the authorization server must end here.
const CallbackPath = "/oauth/callback"

// Token store backends.
const (
	StoreBackendMemory   = "memory"
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Session settings
	SessionSecret string

	// Authorization server
	AuthURL     string // browser-navigated authorization endpoint
	TokenURL    string // JSON token endpoint
	ClientID    string
	Scope       string
	RedirectURI string // must match the value registered with the server

	// Protected question API
	AskAPIURL string

	// Token store
	StoreBackend  string // "memory", "sqlite", "postgres" or "redis"
	DatabasePath  string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitPerMinute int
	RateLimitStore     string // "memory" or "redis"

	// Outbound HTTP
	HTTPTimeout time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	baseURL := getEnv("BASE_URL", "http://localhost:8080")

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		BaseURL:       baseURL,
		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),

		AuthURL:     getEnv("AUTH_URL", ""),
		TokenURL:    getEnv("TOKEN_URL", ""),
		ClientID:    getEnv("CLIENT_ID", ""),
		Scope:       getEnv("SCOPE", "analytics.ask"),
		RedirectURI: getEnv("REDIRECT_URI", strings.TrimRight(baseURL, "/")+CallbackPath),

		AskAPIURL: getEnv("ASK_API_URL", ""),

		StoreBackend:  getEnv("STORE_BACKEND", StoreBackendSQLite),
		DatabasePath:  getEnv("DATABASE_PATH", "askgate.db"),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", "memory"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
	}
}

// Validate checks the configuration once at startup so misconfiguration
// fails fast with a diagnostic instead of surfacing as a cryptic remote
// rejection.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("CLIENT_ID is required")
	}

	for name, value := range map[string]string{
		"AUTH_URL":    c.AuthURL,
		"TOKEN_URL":   c.TokenURL,
		"ASK_API_URL": c.AskAPIURL,
		"BASE_URL":    c.BaseURL,
	} {
		if err := validateURL(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	// The redirect URI is registered with the authorization server; it must
	// point at the callback route this gateway actually serves.
	u, err := url.Parse(c.RedirectURI)
	if err != nil {
		return fmt.Errorf("invalid REDIRECT_URI: %w", err)
	}
	if u.Path != CallbackPath {
		return fmt.Errorf("REDIRECT_URI path must be %s, got: %q", CallbackPath, u.Path)
	}
	if want := strings.TrimRight(c.BaseURL, "/") + CallbackPath; c.RedirectURI != want {
		return fmt.Errorf(
			"REDIRECT_URI %q does not resolve against BASE_URL (expected %q)",
			c.RedirectURI, want)
	}

	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendSQLite, StoreBackendPostgres, StoreBackendRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND value: %q", c.StoreBackend)
	}
	if c.StoreBackend == StoreBackendPostgres && c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORE_BACKEND is postgres")
	}

	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got: %d", c.RateLimitPerMinute)
	}

	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
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
