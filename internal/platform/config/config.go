package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Built once in main via
// FromEnv so the composition root stays lean.
type Config struct {
	Addr     string
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig

	// MaterializationTTL bounds cache-class materializations when the
	// materialization policy does not set an explicit TTL.
	MaterializationTTL time.Duration
}

// PostgresConfig holds connection settings for the durable stores.
// An empty URL means the process runs on in-memory stores (dev mode).
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds connection settings for the working-material cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds broker settings for the outbox relay.
// Empty Brokers means events stay in the outbox table (dev mode).
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// OutboxConfig tunes the relay worker.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("LOOM_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	var brokers []string
	if raw := os.Getenv("LOOM_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("LOOM_OUTBOX_TOPIC")
	if topic == "" {
		topic = "loom.execution.events"
	}

	return Config{
		Addr: addr,
		Postgres: PostgresConfig{
			URL:             os.Getenv("LOOM_POSTGRES_URL"),
			MaxOpenConns:    envInt("LOOM_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns:    envInt("LOOM_POSTGRES_MAX_IDLE", 5),
			ConnMaxLifetime: envDuration("LOOM_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("LOOM_REDIS_URL"),
			PoolSize:     envInt("LOOM_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("LOOM_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("LOOM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("LOOM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("LOOM_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
		Outbox: OutboxConfig{
			PollInterval: envDuration("LOOM_OUTBOX_INTERVAL", 2*time.Second),
			BatchSize:    envInt("LOOM_OUTBOX_BATCH", 100),
		},
		MaterializationTTL: envDuration("LOOM_MATERIALIZATION_TTL", 24*time.Hour),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
