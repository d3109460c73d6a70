package service

import (
	"context"
	"strings"
	"time"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
	"github.com/nazeru/tx-lab-shop-go/pkg/metrics"
)

type OrderSummary struct {
	TotalItems   int       `json:"totalItems"`
	CustomerName string    `json:"customerName"`
	OrderDate    time.Time `json:"orderDate"`
}

type OrderView struct {
	domain.Order
	Summary OrderSummary `json:"summary"`
}

func newOrderView(o domain.Order) OrderView {
	return OrderView{Order: o, Summary: OrderSummary{
		TotalItems:   o.TotalItems(),
		CustomerName: o.Customer.Name,
		OrderDate:    o.CreatedAt,
	}}
}

// Orders reads the ledger and reconciles stock when orders are cancelled or deleted.
type Orders struct {
	store   store.Store
	metrics *metrics.ShopMetrics
	now     func() time.Time
}

func NewOrders(s store.Store, m *metrics.ShopMetrics) *Orders {
	return &Orders{store: s, metrics: m, now: time.Now}
}

func (o *Orders) ListOrders(ctx context.Context) ([]OrderView, error) {
	return o.list(ctx, domain.OrderFilter{})
}

func (o *Orders) ListOrdersByCustomerEmail(ctx context.Context, email string) ([]OrderView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.Invalidf("email is required")
	}
	return o.list(ctx, domain.OrderFilter{CustomerEmail: email})
}

func (o *Orders) list(ctx context.Context, f domain.OrderFilter) ([]OrderView, error) {
	orders, err := o.store.ListOrders(ctx, f)
	if err != nil {
		return nil, domain.Wrap(err, "list orders")
	}
	out := make([]OrderView, 0, len(orders))
	for _, ord := range orders {
		out = append(out, newOrderView(ord))
	}
	return out, nil
}

func (o *Orders) GetOrder(ctx context.Context, rawID string) (OrderView, error) {
	id, err := parseOrderID(rawID)
	if err != nil {
		return OrderView{}, err
	}
	ord, err := o.store.GetOrder(ctx, id)
	if err != nil {
		return OrderView{}, domain.Wrap(err, "get order")
	}
	return newOrderView(ord), nil
}

// SetStatus allows any transition. Entering cancelled puts every line back into
// stock and leaving cancelled takes it again, failing with OutOfStock when it is gone.
func (o *Orders) SetStatus(ctx context.Context, rawID string, in SetStatusInput) (OrderView, error) {
	id, err := parseOrderID(rawID)
	if err != nil {
		return OrderView{}, err
	}
	status, err := domain.ParseOrderStatus(in.Status)
	if err != nil {
		return OrderView{}, err
	}

	var (
		out      domain.Order
		restored int
	)
	err = o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ord, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = ord
		if ord.Status == status {
			return nil
		}
		switch {
		case status == domain.OrderStatusCancelled:
			if restored, err = restoreStock(ctx, tx, ord); err != nil {
				return err
			}
		case ord.Status == domain.OrderStatusCancelled:
			if err := reclaimStock(ctx, tx, ord); err != nil {
				return err
			}
		}
		now := o.now().UTC()
		if err := tx.UpdateOrderStatus(ctx, id, status, now); err != nil {
			return err
		}
		out.Status = status
		out.UpdatedAt = now

		typ := contracts.EventOrderStatusChanged
		if status == domain.OrderStatusCancelled {
			typ = contracts.EventOrderCancelled
		}
		return tx.AppendEvent(ctx, contracts.NewEvent(typ, string(id), map[string]any{
			"from":           string(ord.Status),
			"to":             string(status),
			"customer_email": ord.Customer.Email,
		}))
	})
	if err != nil {
		return OrderView{}, domain.Wrap(err, "set order status")
	}
	o.metrics.RestoredUnits(restored)
	logging.Log(logging.Fields{Service: serviceName, OrderID: string(id), Step: "set_status", Status: string(out.Status)})
	return newOrderView(out), nil
}

// DeleteOrder removes the order and returns its lines to stock unless the order
// was already cancelled, in which case the stock went back at cancellation time.
func (o *Orders) DeleteOrder(ctx context.Context, rawID string) error {
	id, err := parseOrderID(rawID)
	if err != nil {
		return err
	}
	var restored int
	err = o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ord, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ord.Status != domain.OrderStatusCancelled {
			if restored, err = restoreStock(ctx, tx, ord); err != nil {
				return err
			}
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, contracts.NewEvent(contracts.EventOrderDeleted, string(id), map[string]any{
			"status":         string(ord.Status),
			"restored_units": restored,
			"customer_email": ord.Customer.Email,
		}))
	})
	if err != nil {
		return domain.Wrap(err, "delete order")
	}
	o.metrics.RestoredUnits(restored)
	logging.Log(logging.Fields{Service: serviceName, OrderID: string(id), Step: "delete_order", Status: "ok"})
	return nil
}

// restoreStock skips products that no longer exist and returns the units put back.
func restoreStock(ctx context.Context, tx store.Tx, ord domain.Order) (int, error) {
	n := 0
	for _, l := range ord.Lines {
		ok, err := tx.IncrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return 0, err
		}
		if ok {
			n += l.Quantity
		}
	}
	return n, nil
}

// reclaimStock takes a cancelled order's lines out of stock again. Products that
// no longer exist are skipped, matching restoreStock.
func reclaimStock(ctx context.Context, tx store.Tx, ord domain.Order) error {
	var short []domain.Shortage
	for _, l := range ord.Lines {
		ok, err := tx.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		sh, err := shortageOf(ctx, tx, l.ProductID, l.Name, l.Quantity)
		if err != nil {
			return err
		}
		if sh.Reason == domain.ReasonProductGone {
			continue
		}
		short = append(short, sh)
	}
	if len(short) > 0 {
		return domain.OutOfStock(short)
	}
	return nil
}
