// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

// Blob backends selectable via BLOB_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// Config holds all env configuration vars for dirshare.
type Config struct {
	Port     string
	LogLevel slog.Level

	// BaseURL is the public origin used to build share links. Defaults to http://localhost:{Port}.
	BaseURL string

	// CookieSecure sets Secure on the session cookie. Default true; COOKIE_SECURE=false for plain HTTP dev.
	CookieSecure bool

	// Blob backend selection and per-backend settings.
	BlobBackend string
	DatabaseURL string // postgres
	SQLitePath  string // sqlite
	RedisURL    string // redis backend; when set with any backend it also enables the session cache
	S3          S3Config
	BlobTimeout time.Duration

	// PhoneIndexScan enables the users/ scan on phone index misses, for imported data.
	PhoneIndexScan bool

	SessionTTL        time.Duration
	LoginMaxAttempts  int
	LoginLockout      time.Duration
	RequireActivation bool

	// Short URL retention. Defaults: 30d expiry, 7d grace, 5m cache.
	ShortURLExpiry   time.Duration
	ShortURLGrace    time.Duration
	ShortURLCacheTTL time.Duration
	CleanupInterval  time.Duration

	// TurnstileSecret enables the captcha check on register when non-empty.
	TurnstileSecret string

	// Per-IP throttle on /auth/* and POST /short-url.
	RequestRate  rate.Limit
	RequestBurst int
}

// S3Config mirrors blob.S3Config; kept separate so config stays import-free of storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

// LoadConfig reads environment variables (and .env when present) and returns a
// validated Config. Returns an error if the chosen backend is missing its settings.
func LoadConfig() (*Config, error) {
	// .env is optional; real env vars win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg := &Config{}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}

	// Default true -- only explicit "false" disables.
	cfg.CookieSecure = os.Getenv("COOKIE_SECURE") != "false"

	cfg.BlobBackend = strings.ToLower(os.Getenv("BLOB_BACKEND"))
	if cfg.BlobBackend == "" {
		cfg.BlobBackend = BackendMemory
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = os.Getenv("SQLITE_PATH")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.S3 = S3Config{
		Bucket:          os.Getenv("S3_BUCKET"),
		Region:          os.Getenv("S3_REGION"),
		Endpoint:        os.Getenv("S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		PublicURL:       os.Getenv("S3_PUBLIC_URL"),
	}

	switch cfg.BlobBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for BLOB_BACKEND=postgres")
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for BLOB_BACKEND=sqlite")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for BLOB_BACKEND=redis")
		}
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for BLOB_BACKEND=s3")
		}
		if cfg.S3.Region == "" {
			cfg.S3.Region = "auto"
		}
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}

	cfg.BlobTimeout = envDuration("BLOB_TIMEOUT", 10*time.Second)
	cfg.PhoneIndexScan = os.Getenv("PHONE_INDEX_SCAN") == "true"

	// Login limiter: both fields fall back to defaults on bad input, so a
	// misconfigured env never disables it.
	cfg.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)
	cfg.LoginMaxAttempts = envInt("LOGIN_MAX_ATTEMPTS", 5)
	cfg.LoginLockout = envDuration("LOGIN_LOCKOUT", 15*time.Minute)
	cfg.RequireActivation = os.Getenv("REQUIRE_ACTIVATION") == "true"

	cfg.ShortURLExpiry = envDuration("SHORTURL_EXPIRY", 30*24*time.Hour)
	cfg.ShortURLGrace = envDuration("SHORTURL_GRACE", 7*24*time.Hour)
	cfg.ShortURLCacheTTL = envDuration("SHORTURL_CACHE_TTL", 5*time.Minute)
	cfg.CleanupInterval = envDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.TurnstileSecret = os.Getenv("TURNSTILE_SECRET")

	cfg.RequestRate = rate.Limit(envFloat("REQUEST_RATE", 5))
	cfg.RequestBurst = envInt("REQUEST_BURST", 20)

	return cfg, nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envFloat reads an env var as a positive float, returning def if missing or unparseable.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
