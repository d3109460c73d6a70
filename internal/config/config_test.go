package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PORT", "DATABASE_URL", "REQUEST_TIMEOUT_MS", "REDIS_ADDR", "IDEMPOTENCY_TTL",
		"EVENTS_BROKER", "KAFKA_BROKERS", "KAFKA_TOPIC", "RABBITMQ_URL", "OUTBOX_POLL_MS", "OUTBOX_BATCH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Empty(t, c.DatabaseURL)
	assert.Equal(t, 2500*time.Millisecond, c.RequestTimeout)
	assert.Equal(t, 24*time.Hour, c.IdempotencyTTL)
	assert.Equal(t, BrokerNone, c.EventsBroker)
	assert.Equal(t, "shop.events", c.KafkaTopic)
	assert.Equal(t, 500*time.Millisecond, c.OutboxPoll)
	assert.Equal(t, 100, c.OutboxBatch)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT_MS", "100")
	t.Setenv("EVENTS_BROKER", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("IDEMPOTENCY_TTL", "15m")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, 100*time.Millisecond, c.RequestTimeout)
	assert.Equal(t, BrokerKafka, c.EventsBroker)
	assert.Equal(t, 15*time.Minute, c.IdempotencyTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"timeout not a number":  {"REQUEST_TIMEOUT_MS": "soon"},
		"zero timeout":          {"REQUEST_TIMEOUT_MS": "0"},
		"bad ttl":               {"IDEMPOTENCY_TTL": "forever"},
		"unknown broker":        {"EVENTS_BROKER": "nats"},
		"kafka without brokers": {"EVENTS_BROKER": "kafka"},
		"rabbit without url":    {"EVENTS_BROKER": "rabbitmq"},
		"negative outbox batch": {"OUTBOX_BATCH": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
