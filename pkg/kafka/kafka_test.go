package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientParsesBrokers(t *testing.T) {
	c := NewClient(" kafka-1:9092, ,kafka-2:9092 ")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Brokers)
	assert.True(t, c.Enabled())
	assert.False(t, NewClient("").Enabled())
}

func TestNewPublisherDisabled(t *testing.T) {
	_, err := NewClient("").NewPublisher("shop.events")
	assert.ErrorIs(t, err, ErrDisabled)
}

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestPublisherSetsKeyAndHeader(t *testing.T) {
	w := &captureWriter{}
	p := &Publisher{w: w}

	require.NoError(t, p.Publish(context.Background(), "order-1", "order.placed", []byte(`{"x":1}`)))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-1", string(w.msgs[0].Key))
	assert.Equal(t, `{"x":1}`, string(w.msgs[0].Value))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "order.placed", string(w.msgs[0].Headers[0].Value))
}
