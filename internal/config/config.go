package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr              string
	PostgresDSN           string
	StoreBackend          string
	RedisAddr             string
	KafkaBrokers          []string
	JWTSecret             string
	TokenTTL              time.Duration
	PaystackSecretKey     string
	PaystackBaseURL       string
	PaymentCallbackURL    string
	FrontendURL           string
	OTLPEndpoint          string
	StalePaymentTTL       time.Duration
	SweepSchedule         string
	DefaultCommissionRate decimal.Decimal
	LogLevel              slog.Level
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		PostgresDSN:           getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=agri sslmode=disable"),
		StoreBackend:          strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKER")),
		JWTSecret:             getEnv("JWT_SECRET", "supersecret"),
		TokenTTL:              getDuration("TOKEN_TTL", 24*time.Hour),
		PaystackSecretKey:     os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:       getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaymentCallbackURL:    os.Getenv("PAYMENT_CALLBACK_URL"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:3000"),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		StalePaymentTTL:       getDuration("STALE_PAYMENT_TTL", 24*time.Hour),
		SweepSchedule:         getEnv("SWEEP_SCHEDULE", "@every 15m"),
		DefaultCommissionRate: getDecimal("DEFAULT_COMMISSION_RATE", decimal.NewFromInt(5)),
		LogLevel:              getLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.PaymentCallbackURL == "" {
		cfg.PaymentCallbackURL = strings.TrimRight(cfg.FrontendURL, "/") + "/payment/callback"
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"store_backend", cfg.StoreBackend,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"paystack_configured", cfg.PaystackSecretKey != "",
		"sweep_schedule", cfg.SweepSchedule,
	)
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		slog.Warn("invalid rate, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return lvl
}

// splitList parses a comma-separated broker list; empty means Kafka is off.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
