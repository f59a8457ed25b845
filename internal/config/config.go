package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AlertingConfig holds the hysteresis tunables. The defaults are the
// business constants from the exposure table and must only be changed
// with product sign-off.
type AlertingConfig struct {
	// Readings at or above this level count as "high noise"
	HighNoiseThresholdDB float64
	// Consecutive high readings required before a notification fires
	HighPersistenceThreshold int
	// Consecutive low readings required before an active alert resets
	LowPersistenceThreshold int
	// Send an "all clear" message when an alert stands down
	NotifyAllClear bool
}

// TelegramConfig holds credentials for the outbound notification bot.
// Empty token or chat ID disables dispatch (logged, never fatal).
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// BaseURL is overridable for tests; defaults to the public API
	BaseURL string
	// Per-attempt request timeout
	Timeout time.Duration
	// Retries within a single dispatch call
	MaxRetries   int
	RetryBackoff time.Duration
}

// KafkaConfig holds the inbound change-event transport settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Config holds runtime configuration for the evaluator service.
type Config struct {
	// HTTP listen address for webhook, health, stats and metrics
	HTTPAddr string
	// Shared secret expected in X-Api-Key on the webhook; empty disables auth
	APIKey string
	// Redis address for the alert-state store; empty selects the in-memory store
	RedisAddr string
	// Log level (debug, info, warn, error)
	LogLevel string

	Kafka    KafkaConfig
	Telegram TelegramConfig
	Alerting AlertingConfig
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		HTTPAddr:  ":8080",
		RedisAddr: "localhost:6379",
		LogLevel:  "info",
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "measurements",
			GroupID: "noisewatch-evaluator",
		},
		Telegram: TelegramConfig{
			BaseURL:      "https://api.telegram.org",
			Timeout:      10 * time.Second,
			MaxRetries:   2,
			RetryBackoff: 500 * time.Millisecond,
		},
		Alerting: AlertingConfig{
			HighNoiseThresholdDB:     85.0,
			HighPersistenceThreshold: 3,
			LowPersistenceThreshold:  10,
			NotifyAllClear:           false,
		},
	}
}

// FromEnv returns the default config overridden by environment variables.
func FromEnv() *Config {
	cfg := Default()

	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.APIKey = envString("API_KEY", cfg.APIKey)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	cfg.Kafka.Topic = envString("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = envString("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.Telegram.BotToken = envString("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.ChatID = envString("TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
	cfg.Telegram.BaseURL = envString("TELEGRAM_API_URL", cfg.Telegram.BaseURL)
	cfg.Telegram.Timeout = envDuration("TELEGRAM_TIMEOUT", cfg.Telegram.Timeout)

	cfg.Alerting.HighNoiseThresholdDB = envFloat("HIGH_NOISE_THRESHOLD_DB", cfg.Alerting.HighNoiseThresholdDB)
	cfg.Alerting.HighPersistenceThreshold = envInt("HIGH_PERSISTENCE_THRESHOLD", cfg.Alerting.HighPersistenceThreshold)
	cfg.Alerting.LowPersistenceThreshold = envInt("LOW_PERSISTENCE_THRESHOLD", cfg.Alerting.LowPersistenceThreshold)
	cfg.Alerting.NotifyAllClear = envBool("NOTIFY_ALL_CLEAR", cfg.Alerting.NotifyAllClear)

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
