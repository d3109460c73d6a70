// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BrokerNone     = "none"
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

type Config struct {
	Port           string
	DatabaseURL    string // empty selects the in-memory store
	RequestTimeout time.Duration

	RedisAddr      string // empty selects in-memory idempotency
	IdempotencyTTL time.Duration

	EventsBroker string // none | kafka | rabbitmq
	KafkaBrokers string
	KafkaTopic   string
	RabbitMQURL  string

	OutboxPoll  time.Duration
	OutboxBatch int
}

func Load() (Config, error) {
	timeoutMS, err := atoi("REQUEST_TIMEOUT_MS", "2500")
	if err != nil {
		return Config{}, err
	}
	pollMS, err := atoi("OUTBOX_POLL_MS", "500")
	if err != nil {
		return Config{}, err
	}
	batch, err := atoi("OUTBOX_BATCH", "100")
	if err != nil {
		return Config{}, err
	}
	ttl, err := time.ParseDuration(getenv("IDEMPOTENCY_TTL", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("IDEMPOTENCY_TTL: %w", err)
	}

	c := Config{
		Port:           getenv("PORT", "8080"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		RequestTimeout: time.Duration(timeoutMS) * time.Millisecond,
		RedisAddr:      getenv("REDIS_ADDR", ""),
		IdempotencyTTL: ttl,
		EventsBroker:   strings.ToLower(getenv("EVENTS_BROKER", BrokerNone)),
		KafkaBrokers:   getenv("KAFKA_BROKERS", ""),
		KafkaTopic:     getenv("KAFKA_TOPIC", "shop.events"),
		RabbitMQURL:    getenv("RABBITMQ_URL", ""),
		OutboxPoll:     time.Duration(pollMS) * time.Millisecond,
		OutboxBatch:    batch,
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_MS must be positive")
	}
	if c.OutboxPoll <= 0 || c.OutboxBatch <= 0 {
		return fmt.Errorf("OUTBOX_POLL_MS and OUTBOX_BATCH must be positive")
	}
	switch c.EventsBroker {
	case BrokerNone:
	case BrokerKafka:
		if c.KafkaBrokers == "" {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_BROKER=kafka")
		}
	case BrokerRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when EVENTS_BROKER=rabbitmq")
		}
	default:
		return fmt.Errorf("EVENTS_BROKER must be one of none, kafka, rabbitmq, got %q", c.EventsBroker)
	}
	return nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func atoi(k, def string) (int, error) {
	n, err := strconv.Atoi(getenv(k, def))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
