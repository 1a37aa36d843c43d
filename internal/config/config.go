package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Job queue
	Workers           int
	MaxAttempts       int
	VisibilityTimeout time.Duration
	QueuePollInterval time.Duration
	RetryBackoffBase  time.Duration
	RetryBackoffMax   time.Duration

	// External mailer
	MailerBaseURL string
	MailerTimeout time.Duration
	MailRateLimit int

	// Event stream
	StreamHeartbeat  time.Duration
	SubscriberBuffer int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		Workers:           getInt("WORKERS", 4),
		MaxAttempts:       getInt("MAX_ATTEMPTS", 5),
		VisibilityTimeout: getDuration("VISIBILITY_TIMEOUT", 30*time.Second),
		QueuePollInterval: getDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		RetryBackoffBase:  getDuration("RETRY_BACKOFF_BASE", 5*time.Second),
		RetryBackoffMax:   getDuration("RETRY_BACKOFF_MAX", 5*time.Minute),

		MailerBaseURL: getEnv("MAILER_BASE_URL", "https://webhook.site/your-uuid-here"),
		MailerTimeout: getDuration("MAILER_TIMEOUT", 10*time.Second),
		MailRateLimit: getInt("MAIL_RATE_LIMIT", 50),

		StreamHeartbeat:  getDuration("STREAM_HEARTBEAT", 15*time.Second),
		SubscriberBuffer: getInt("SUBSCRIBER_BUFFER", 16),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
