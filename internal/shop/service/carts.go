package service

import (
	"context"
	"time"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
)

// Carts manages one cart per session. Stock is checked when lines are added or
// raised but never reserved; the authoritative check happens at checkout.
type Carts struct {
	store store.Store
	now   func() time.Time
}

func NewCarts(s store.Store) *Carts {
	return &Carts{store: s, now: time.Now}
}

// GetCart returns an empty view for a session that has never added anything.
func (c *Carts) GetCart(ctx context.Context, rawSession string) (domain.CartView, error) {
	session, err := parseSession(rawSession)
	if err != nil {
		return domain.CartView{}, err
	}
	cart, err := c.store.GetCart(ctx, session)
	if domain.IsKind(err, domain.KindNotFound) {
		return domain.NewCartView(domain.Cart{SessionID: session}, nil), nil
	}
	if err != nil {
		return domain.CartView{}, domain.Wrap(err, "get cart")
	}
	return c.view(ctx, c.store, cart)
}

func (c *Carts) AddItem(ctx context.Context, rawSession string, in AddItemInput) (domain.CartView, error) {
	session, err := parseSession(rawSession)
	if err != nil {
		return domain.CartView{}, err
	}
	id, qty, err := in.parse()
	if err != nil {
		return domain.CartView{}, err
	}
	return c.mutate(ctx, session, true, func(ctx context.Context, tx store.Tx, cart *domain.Cart) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		have := cart.Quantity(id)
		if qty > p.Stock-have || qty > MaxLineQuantity-have {
			return domain.InsufficientStock(domain.Shortage{
				ProductID: id, Name: p.Name, Requested: have + qty, Available: p.Stock, Reason: domain.ReasonInsufficientStock,
			})
		}
		cart.Add(id, qty)
		return nil
	})
}

// SetQuantity replaces a line's quantity. Zero removes the line.
func (c *Carts) SetQuantity(ctx context.Context, rawSession, rawProductID string, in SetQuantityInput) (domain.CartView, error) {
	session, err := parseSession(rawSession)
	if err != nil {
		return domain.CartView{}, err
	}
	id, err := parseProductID(rawProductID)
	if err != nil {
		return domain.CartView{}, err
	}
	qty, err := in.parse()
	if err != nil {
		return domain.CartView{}, err
	}
	return c.mutate(ctx, session, false, func(ctx context.Context, tx store.Tx, cart *domain.Cart) error {
		if qty == 0 {
			cart.Remove(id)
			return nil
		}
		if !cart.Has(id) {
			return domain.NotFoundf("item not found in cart")
		}
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p.Stock < qty {
			return domain.InsufficientStock(domain.Shortage{
				ProductID: id, Name: p.Name, Requested: qty, Available: p.Stock, Reason: domain.ReasonInsufficientStock,
			})
		}
		cart.Set(id, qty)
		return nil
	})
}

func (c *Carts) RemoveItem(ctx context.Context, rawSession, rawProductID string) (domain.CartView, error) {
	session, err := parseSession(rawSession)
	if err != nil {
		return domain.CartView{}, err
	}
	id, err := parseProductID(rawProductID)
	if err != nil {
		return domain.CartView{}, err
	}
	return c.mutate(ctx, session, false, func(_ context.Context, _ store.Tx, cart *domain.Cart) error {
		if !cart.Remove(id) {
			return domain.NotFoundf("item not found in cart")
		}
		return nil
	})
}

func (c *Carts) ClearCart(ctx context.Context, rawSession string) (domain.CartView, error) {
	session, err := parseSession(rawSession)
	if err != nil {
		return domain.CartView{}, err
	}
	return c.mutate(ctx, session, false, func(_ context.Context, _ store.Tx, cart *domain.Cart) error {
		cart.Clear()
		return nil
	})
}

// mutate loads the cart under lock, applies fn and saves the result in one transaction.
// With create set a missing cart starts empty, otherwise it is reported as NotFound.
func (c *Carts) mutate(ctx context.Context, session domain.SessionID, create bool, fn func(ctx context.Context, tx store.Tx, cart *domain.Cart) error) (domain.CartView, error) {
	var out domain.CartView
	err := c.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := c.now().UTC()
		cart, err := tx.GetCart(ctx, session)
		switch {
		case domain.IsKind(err, domain.KindNotFound) && create:
			cart = domain.Cart{SessionID: session, Lines: []domain.CartLine{}, CreatedAt: now}
		case domain.IsKind(err, domain.KindNotFound):
			return domain.NotFoundf("cart not found")
		case err != nil:
			return err
		}
		if err := fn(ctx, tx, &cart); err != nil {
			return err
		}
		cart.UpdatedAt = now
		if err := tx.SaveCart(ctx, cart); err != nil {
			return err
		}
		out, err = c.view(ctx, tx, cart)
		return err
	})
	if err != nil {
		return domain.CartView{}, domain.Wrap(err, "update cart")
	}
	return out, nil
}

func (c *Carts) view(ctx context.Context, tx store.Tx, cart domain.Cart) (domain.CartView, error) {
	ids := make([]domain.ProductID, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := tx.GetProducts(ctx, ids)
	if err != nil {
		return domain.CartView{}, domain.Wrap(err, "load cart products")
	}
	return domain.NewCartView(cart, products), nil
}
