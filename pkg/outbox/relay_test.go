package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	recs []Record
	sent []int64
}

func (f *fakeSource) FetchPending(_ context.Context, limit int) ([]Record, error) {
	var out []Record
	for _, r := range f.recs {
		if r.SentAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) MarkSent(_ context.Context, id int64) error {
	now := time.Now()
	for i := range f.recs {
		if f.recs[i].ID == id {
			f.recs[i].SentAt = &now
		}
	}
	f.sent = append(f.sent, id)
	return nil
}

type fakePublisher struct {
	failOn string
	got    []string
}

func (p *fakePublisher) Publish(_ context.Context, key, routingKey string, _ []byte) error {
	if key == p.failOn {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, routingKey+":"+key)
	return nil
}

func TestRelayRunOncePublishesInOrder(t *testing.T) {
	src := &fakeSource{recs: []Record{
		{ID: 1, EventID: "e1", Topic: "order.placed", Key: "o1"},
		{ID: 2, EventID: "e2", Topic: "order.cancelled", Key: "o1"},
	}}
	pub := &fakePublisher{}
	r := &Relay{Source: src, Publisher: pub, Service: "test", Batch: 10}

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"order.placed:o1", "order.cancelled:o1"}, pub.got)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayStopsAtFirstFailure(t *testing.T) {
	src := &fakeSource{recs: []Record{
		{ID: 1, EventID: "e1", Topic: "order.placed", Key: "o1"},
		{ID: 2, EventID: "e2", Topic: "order.placed", Key: "o2"},
		{ID: 3, EventID: "e3", Topic: "order.placed", Key: "o3"},
	}}
	r := &Relay{Source: src, Publisher: &fakePublisher{failOn: "o2"}, Service: "test", Batch: 10}

	n, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, src.sent)
}
