package rabbitmq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set, skipping integration test")
	}
	conn, ch, err := SetupConn(url)
	if err != nil {
		t.Skip("RabbitMQ not available, skipping integration test")
		return
	}
	defer conn.Close()
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = NewSubscriber(ch).Subscribe(ctx, "shop-test-queue", "order.#", func(b []byte) error {
			got <- string(b)
			return nil
		})
	}()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, NewPublisher(ch).Publish(ctx, "order-1", "order.placed", []byte(`{"ok":true}`)))

	select {
	case body := <-got:
		require.Equal(t, `{"ok":true}`, body)
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}
