package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every tunable the server needs, read once from the
// environment so main stays lean. Defaults suit local development.
type Config struct {
	Addr            string
	PostgresDSN     string
	RedisURL        string
	KafkaBrokers    []string
	ShutdownTimeout time.Duration

	JWTSigningKey string
	JWTIssuer     string

	// Verification code lifecycle.
	CodeTTL        time.Duration
	CodeLength     int
	MaxRetries     int
	RateLimitMax   int
	RateLimitWindow time.Duration

	// Audit-stamp recency window for decision validation.
	RecencyWindow time.Duration

	// CAPTCHA verification.
	CaptchaSecret    string
	CaptchaThreshold float64

	// NHS login token exchange.
	NHSLoginBaseURL  string
	NHSLoginClientID string

	// Notification provider endpoint; empty means log-only dispatch.
	NotifyEndpoint string
	NotifyAPIKey   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:            envString("IDECIDE_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("IDECIDE_POSTGRES_DSN"),
		RedisURL:        os.Getenv("IDECIDE_REDIS_URL"),
		KafkaBrokers:    envList("IDECIDE_KAFKA_BROKERS"),
		ShutdownTimeout: envDuration("IDECIDE_SHUTDOWN_TIMEOUT", 10*time.Second),

		JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envString("JWT_ISSUER", "idecide"),

		CodeTTL:         envDuration("CODE_TTL", 15*time.Minute),
		CodeLength:      envInt("CODE_LENGTH", 5),
		MaxRetries:      envInt("CODE_MAX_RETRIES", 3),
		RateLimitMax:    envInt("CODE_RATE_LIMIT_MAX", 5),
		RateLimitWindow: envDuration("CODE_RATE_LIMIT_WINDOW", time.Hour),

		RecencyWindow: envDuration("AUDIT_RECENCY_WINDOW", 90*time.Second),

		CaptchaSecret:    os.Getenv("CAPTCHA_SECRET"),
		CaptchaThreshold: envFloat("CAPTCHA_THRESHOLD", 0.5),

		NHSLoginBaseURL:  os.Getenv("NHS_LOGIN_BASE_URL"),
		NHSLoginClientID: os.Getenv("NHS_LOGIN_CLIENT_ID"),

		NotifyEndpoint: os.Getenv("NOTIFY_ENDPOINT"),
		NotifyAPIKey:   os.Getenv("NOTIFY_API_KEY"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
