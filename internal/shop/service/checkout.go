package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
	"github.com/nazeru/tx-lab-shop-go/pkg/idempotency"
	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
	"github.com/nazeru/tx-lab-shop-go/pkg/metrics"
)

const idempotencySettleTimeout = 2 * time.Second

type PlaceOrderResult struct {
	Order    domain.Order   `json:"order"`
	Receipt  domain.Receipt `json:"receipt"`
	Replayed bool           `json:"replayed,omitempty"`
}

// Checkout turns a session's cart into a confirmed order. The order insert, the
// stock decrements, the cart clear and the order.placed event commit together.
type Checkout struct {
	store   store.Store
	idem    idempotency.Store
	metrics *metrics.ShopMetrics
	now     func() time.Time
	newID   func() string
}

// NewCheckout accepts a nil idempotency store and nil metrics.
func NewCheckout(s store.Store, idem idempotency.Store, m *metrics.ShopMetrics) *Checkout {
	return &Checkout{store: s, idem: idem, metrics: m, now: time.Now, newID: uuid.NewString}
}

func (c *Checkout) PlaceOrder(ctx context.Context, rawSession string, in PlaceOrderInput, idemKey string) (PlaceOrderResult, error) {
	session, err := parseSession(rawSession)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	customer, err := in.parse()
	if err != nil {
		return PlaceOrderResult{}, err
	}

	if idemKey == "" || c.idem == nil {
		return c.place(ctx, session, customer)
	}

	key := string(session) + ":" + idemKey
	prev, reserved, err := c.idem.Reserve(ctx, key)
	if err != nil {
		return PlaceOrderResult{}, domain.Wrap(err, "reserve idempotency key")
	}
	if !reserved {
		return c.replay(ctx, prev)
	}

	res, err := c.place(ctx, session, customer)

	// The key must settle even when the request deadline is what failed the checkout.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencySettleTimeout)
	defer cancel()
	if err != nil {
		if relErr := c.idem.Release(settleCtx, key); relErr != nil {
			logging.Log(logging.Err(serviceName, "idempotency_release", relErr))
		}
		return PlaceOrderResult{}, err
	}
	if err := c.idem.Complete(settleCtx, key, string(res.Order.ID)); err != nil {
		logging.Log(logging.Err(serviceName, "idempotency_complete", err))
	}
	return res, nil
}

func (c *Checkout) replay(ctx context.Context, orderID string) (PlaceOrderResult, error) {
	if orderID == "" {
		return PlaceOrderResult{}, &domain.Error{Kind: domain.KindConflict, Msg: "a request with this idempotency key is still in progress"}
	}
	o, err := c.store.GetOrder(ctx, domain.OrderID(orderID))
	if err != nil {
		return PlaceOrderResult{}, domain.Wrap(err, "load replayed order")
	}
	return PlaceOrderResult{Order: o, Receipt: o.Receipt(), Replayed: true}, nil
}

func (c *Checkout) place(ctx context.Context, session domain.SessionID, customer domain.Customer) (PlaceOrderResult, error) {
	start := c.now()
	var order domain.Order
	err := c.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.GetCart(ctx, session)
		if domain.IsKind(err, domain.KindNotFound) {
			return domain.ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if cart.Empty() {
			return domain.ErrEmptyCart
		}

		lines, err := priceLines(ctx, tx, cart)
		if err != nil {
			return err
		}

		now := c.now().UTC()
		order = domain.Order{
			ID:          domain.OrderID(c.newID()),
			Status:      domain.OrderStatusConfirmed,
			TotalAmount: decimal.Zero,
			Customer:    customer,
			Lines:       lines,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for _, l := range lines {
			order.TotalAmount = order.TotalAmount.Add(l.Subtotal())
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		// A concurrent checkout may have drained stock after the read above.
		var lost []domain.Shortage
		for _, l := range lines {
			ok, err := tx.DecrementStock(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				sh, err := shortageOf(ctx, tx, l.ProductID, l.Name, l.Quantity)
				if err != nil {
					return err
				}
				lost = append(lost, sh)
			}
		}
		if len(lost) > 0 {
			return domain.OutOfStock(lost)
		}

		cart.Clear()
		cart.UpdatedAt = now
		if err := tx.SaveCart(ctx, cart); err != nil {
			return err
		}

		evt := contracts.NewEvent(contracts.EventOrderPlaced, string(order.ID), map[string]any{
			"total_amount":   order.TotalAmount.String(),
			"total_items":    order.TotalItems(),
			"customer_email": customer.Email,
		})
		evt.SessionID = string(session)
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			c.metrics.CheckoutRejected(string(de.Kind))
		} else {
			c.metrics.CheckoutRejected(string(domain.KindUnexpected))
		}
		f := logging.Err(serviceName, "checkout", err)
		f.SessionID = string(session)
		logging.Log(f)
		return PlaceOrderResult{}, domain.Wrap(err, "place order")
	}

	c.metrics.OrderPlaced()
	logging.Log(logging.Fields{
		Service:    serviceName,
		OrderID:    string(order.ID),
		SessionID:  string(session),
		Step:       "checkout",
		Status:     "ok",
		DurationMS: time.Since(start).Milliseconds(),
	})
	return PlaceOrderResult{Order: order, Receipt: order.Receipt()}, nil
}

// priceLines resolves every cart line at the current price and collects every
// unavailable line before failing, so the caller sees the full list at once.
func priceLines(ctx context.Context, tx store.Tx, cart domain.Cart) ([]domain.OrderLine, error) {
	ids := make([]domain.ProductID, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := tx.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	var short []domain.Shortage
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			short = append(short, domain.Shortage{ProductID: l.ProductID, Requested: l.Quantity, Reason: domain.ReasonProductGone})
			continue
		}
		if p.Stock < l.Quantity {
			short = append(short, domain.Shortage{
				ProductID: p.ID, Name: p.Name, Requested: l.Quantity, Available: p.Stock, Reason: domain.ReasonInsufficientStock,
			})
			continue
		}
		lines = append(lines, domain.OrderLine{ProductID: p.ID, Name: p.Name, Quantity: l.Quantity, UnitPrice: p.Price})
	}
	if len(short) > 0 {
		return nil, domain.OutOfStock(short)
	}
	return lines, nil
}

// shortageOf re-reads a product whose conditional decrement failed so the
// shortage reports what is actually left.
func shortageOf(ctx context.Context, tx store.Tx, id domain.ProductID, name string, qty int) (domain.Shortage, error) {
	p, err := tx.GetProduct(ctx, id)
	if domain.IsKind(err, domain.KindNotFound) {
		return domain.Shortage{ProductID: id, Name: name, Requested: qty, Reason: domain.ReasonProductGone}, nil
	}
	if err != nil {
		return domain.Shortage{}, err
	}
	return domain.Shortage{ProductID: id, Name: p.Name, Requested: qty, Available: p.Stock, Reason: domain.ReasonInsufficientStock}, nil
}
