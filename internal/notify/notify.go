// Package notify turns order events into customer notifications, recording each
// event id once so redelivered messages are ignored.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
)

type Notification struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	Type      string `json:"type"`
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message"`
}

// Render returns false for event types nobody is notified about.
func Render(evt contracts.Event) (Notification, bool) {
	n := Notification{EventID: evt.EventID, OrderID: evt.OrderID, Type: evt.Type}
	if email, ok := evt.Payload["customer_email"].(string); ok {
		n.Recipient = email
	}
	switch evt.Type {
	case contracts.EventOrderPlaced:
		n.Message = fmt.Sprintf("Order %s confirmed: %v item(s), total %v.", evt.OrderID, evt.Payload["total_items"], evt.Payload["total_amount"])
	case contracts.EventOrderCancelled:
		n.Message = fmt.Sprintf("Order %s was cancelled.", evt.OrderID)
	case contracts.EventOrderStatusChanged:
		n.Message = fmt.Sprintf("Order %s is now %v.", evt.OrderID, evt.Payload["to"])
	default:
		return Notification{}, false
	}
	return n, true
}

// Store saves a notification unless its event id was already seen, and reports
// whether it was new.
type Store interface {
	Save(ctx context.Context, n Notification) (bool, error)
}

type MemoryStore struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	saved []Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) Save(_ context.Context, n Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[n.EventID]; ok {
		return false, nil
	}
	s.seen[n.EventID] = struct{}{}
	s.saved = append(s.saved, n)
	return true, nil
}

func (s *MemoryStore) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.saved...)
}

type Handler struct {
	Store   Store
	Service string
}

// Handle decodes one broker message. Undecodable messages are dropped with a log
// line rather than returned, since redelivering them cannot succeed.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var evt contracts.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		logging.Log(logging.Err(h.Service, "decode", err))
		return nil
	}
	if evt.EventID == "" {
		return nil
	}
	n, ok := Render(evt)
	if !ok {
		return nil
	}
	fresh, err := h.Store.Save(ctx, n)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", evt.EventID, err)
	}
	status := "emitted"
	if !fresh {
		status = "duplicate"
	}
	logging.Log(logging.Fields{Service: h.Service, OrderID: evt.OrderID, EventID: evt.EventID, Step: evt.Type, Status: status})
	return nil
}
