package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
)

// Publisher delivers one record. key partitions (Kafka), routingKey routes (RabbitMQ).
type Publisher interface {
	Publish(ctx context.Context, key, routingKey string, body []byte) error
}

type Relay struct {
	Source    Source
	Publisher Publisher
	Service   string
	Interval  time.Duration
	Batch     int
}

// RunOnce publishes pending records in id order and stops at the first failure so
// delivery order per source is preserved. It returns the number of records sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	recs, err := r.Source.FetchPending(ctx, r.Batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}
	sent := 0
	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec.Key, rec.Topic, rec.Payload); err != nil {
			return sent, fmt.Errorf("publish %s: %w", rec.EventID, err)
		}
		if err := r.Source.MarkSent(ctx, rec.ID); err != nil {
			return sent, fmt.Errorf("mark sent %s: %w", rec.EventID, err)
		}
		logging.Log(logging.Fields{Service: r.Service, OrderID: rec.Key, EventID: rec.EventID, Step: rec.Topic, Status: "published"})
		sent++
	}
	return sent, nil
}

func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Log(logging.Err(r.Service, "outbox_relay", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
