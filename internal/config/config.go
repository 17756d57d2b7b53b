package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DevJWTSecret signs tokens only when the API runs fully in memory.
const DevJWTSecret = "dev-secret-change-me"

var ErrNoJWTSecret = errors.New("JWT_SECRET is required when POSTGRES_DSN is set")

type Config struct {
	HTTPAddr       string
	PostgresDSN    string
	RedisAddr      string
	KafkaBrokers   []string
	ServiceName    string
	LogLevel       string
	RequestTimeout time.Duration

	JWTSecret string
	AppURL    string

	StripeSecretKey     string
	StripeWebhookSecret string

	EasyPaisaStoreID      string
	EasyPaisaHashKey      string
	JazzCashMerchantID    string
	JazzCashIntegritySalt string

	NotifierGroup   string
	NotifierWorkers int
}

// Load reads the environment. An empty POSTGRES_DSN, REDIS_ADDR or
// KAFKA_BROKERS selects the in-process implementation of that dependency.
// JWT_SECRET falls back to DevJWTSecret only in the in-memory setup.
func Load() Config {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitCSV(os.Getenv("KAFKA_BROKERS")),
		ServiceName:    getenv("SERVICE_NAME", "laundry-api"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		RequestTimeout: getduration("REQUEST_TIMEOUT", 15*time.Second),

		JWTSecret: os.Getenv("JWT_SECRET"),
		AppURL:    getenv("APP_URL", "http://localhost:3000"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		EasyPaisaStoreID:      os.Getenv("EASYPAISA_STORE_ID"),
		EasyPaisaHashKey:      os.Getenv("EASYPAISA_HASH_KEY"),
		JazzCashMerchantID:    os.Getenv("JAZZCASH_MERCHANT_ID"),
		JazzCashIntegritySalt: os.Getenv("JAZZCASH_INTEGRITY_SALT"),

		NotifierGroup:   getenv("NOTIFIER_GROUP", "notifier-svc"),
		NotifierWorkers: getint("NOTIFIER_WORKERS", 8),
	}
	if cfg.JWTSecret == "" && cfg.PostgresDSN == "" {
		cfg.JWTSecret = DevJWTSecret
	}
	return cfg
}

// Validate reports settings the API cannot safely start without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrNoJWTSecret
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	i, err := strconv.Atoi(os.Getenv(k))
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func getduration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
