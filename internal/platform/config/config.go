// Package config builds runtime configuration from environment variables so
// main stays lean. Optional backends (Postgres, Redis, Kafka) are signalled by
// empty values: the wiring falls back to in-memory or no-op implementations.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"civreg/internal/matcher"
	platformstrings "civreg/pkg/platform/strings"
)

// Redis captures connection settings for the registry lookup cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the audit fan-out settings.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full server configuration.
type Config struct {
	Addr          string
	PostgresURL   string
	JWTSigningKey string

	Redis            Redis
	RegistryCacheTTL time.Duration

	Kafka Kafka

	Matcher matcher.Config

	AuditRetryBackoff time.Duration
}

// FromEnv reads configuration from CIVREG_* environment variables, applying
// defaults for everything optional.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("CIVREG_ADDR", ":8080"),
		PostgresURL:   os.Getenv("CIVREG_POSTGRES_URL"),
		JWTSigningKey: envOr("CIVREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: Redis{
			URL:          os.Getenv("CIVREG_REDIS_URL"),
			PoolSize:     envInt("CIVREG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CIVREG_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CIVREG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CIVREG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CIVREG_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RegistryCacheTTL: envDuration("CIVREG_REGISTRY_CACHE_TTL", 5*time.Minute),
		Kafka: Kafka{
			Brokers: envList("CIVREG_KAFKA_BROKERS"),
			Topic:   envOr("CIVREG_KAFKA_AUDIT_TOPIC", "civreg.audit"),
		},
		Matcher: matcher.Config{
			FirstNameWeight:   envInt("CIVREG_MATCH_FIRST_NAME_WEIGHT", 35),
			LastNameWeight:    envInt("CIVREG_MATCH_LAST_NAME_WEIGHT", 35),
			DateOfBirthWeight: envInt("CIVREG_MATCH_DOB_WEIGHT", 30),
			Threshold:         envInt("CIVREG_MATCH_THRESHOLD", 80),
		},
		AuditRetryBackoff: envDuration("CIVREG_AUDIT_RETRY_BACKOFF", 5*time.Second),
	}
	if err := cfg.Matcher.Validate(); err != nil {
		cfg.Matcher = matcher.DefaultConfig()
	}
	return cfg
}

func envOr(key, fallback string) string {
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
	return platformstrings.DedupeAndTrim(strings.Split(v, ","))
}
