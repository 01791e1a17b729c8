package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string
	// LogFormat is "json" or "text".
	LogFormat string

	// Durable presence/typing backend. Empty RedisURL disables it.
	RedisURL           string
	RedisProbeAttempts int
	RedisProbeTimeout  time.Duration

	JWTSecret string

	StoreDriver   string // sqlite|mongo
	SQLitePath    string
	MongoURI      string
	MongoDatabase string

	TypingTTL time.Duration

	// Per-session inbound event limiter.
	EventRate  float64
	EventBurst int

	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisProbeAttempts: getEnvInt("REDIS_PROBE_ATTEMPTS", 2),
		RedisProbeTimeout:  getEnvDuration("REDIS_PROBE_TIMEOUT", 2*time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		SQLitePath:    getEnv("SQLITE_PATH", "data/chat.db"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "chat"),

		TypingTTL: getEnvDuration("TYPING_TTL", 10*time.Second),

		EventRate:  getEnvFloat("EVENT_RATE", 20),
		EventBurst: getEnvInt("EVENT_BURST", 40),

		AllowedOrigins:  splitCSV(getEnv("ALLOWED_ORIGINS", "")),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return cfg, errors.New("LOG_FORMAT must be json or text")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	if cfg.RedisProbeAttempts < 1 {
		return cfg, errors.New("REDIS_PROBE_ATTEMPTS must be >= 1")
	}
	if cfg.RedisProbeTimeout <= 0 {
		return cfg, errors.New("REDIS_PROBE_TIMEOUT must be > 0")
	}
	switch cfg.StoreDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return cfg, errors.New("SQLITE_PATH must not be empty")
		}
	case "mongo":
		if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
			return cfg, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	default:
		return cfg, errors.New("STORE_DRIVER must be sqlite or mongo")
	}
	if cfg.TypingTTL <= 0 {
		return cfg, errors.New("TYPING_TTL must be > 0")
	}
	if cfg.EventRate <= 0 || cfg.EventBurst < 1 {
		return cfg, errors.New("EVENT_RATE must be > 0 and EVENT_BURST >= 1")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
