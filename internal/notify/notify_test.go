package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
)

func TestRender(t *testing.T) {
	evt := contracts.NewEvent(contracts.EventOrderPlaced, "o-1", map[string]any{
		"total_amount": "30", "total_items": 3, "customer_email": "ada@example.com",
	})
	n, ok := Render(evt)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", n.Recipient)
	assert.Equal(t, "Order o-1 confirmed: 3 item(s), total 30.", n.Message)

	n, ok = Render(contracts.NewEvent(contracts.EventOrderStatusChanged, "o-1", map[string]any{"to": "shipped"}))
	require.True(t, ok)
	assert.Equal(t, "Order o-1 is now shipped.", n.Message)

	n, ok = Render(contracts.NewEvent(contracts.EventOrderCancelled, "o-1", map[string]any{"to": "cancelled", "customer_email": "ada@example.com"}))
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", n.Recipient)

	_, ok = Render(contracts.NewEvent(contracts.EventOrderDeleted, "o-1", nil))
	assert.False(t, ok)
}

func TestHandlerDedupesByEventID(t *testing.T) {
	store := NewMemoryStore()
	h := &Handler{Store: store, Service: "notification-service"}
	ctx := context.Background()

	body, err := json.Marshal(contracts.NewEvent(contracts.EventOrderCancelled, "o-2", nil))
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, body))
	require.NoError(t, h.Handle(ctx, body))
	require.NoError(t, h.Handle(ctx, []byte("not json")))
	require.NoError(t, h.Handle(ctx, []byte(`{"type":"order.cancelled"}`)))

	all := store.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Order o-2 was cancelled.", all[0].Message)
}
