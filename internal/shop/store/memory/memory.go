// Package memory is an in-process store guarded by one mutex. Transactions run
// against a copy of the state that replaces the live state only on success.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
	"github.com/nazeru/tx-lab-shop-go/pkg/outbox"
)

type state struct {
	products map[domain.ProductID]domain.Product
	carts    map[domain.SessionID]domain.Cart
	orders   map[domain.OrderID]domain.Order
	outbox   []outbox.Record
	nextID   int64
}

func newState() *state {
	return &state{
		products: make(map[domain.ProductID]domain.Product),
		carts:    make(map[domain.SessionID]domain.Cart),
		orders:   make(map[domain.OrderID]domain.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v.Clone()
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.outbox = append([]outbox.Record(nil), s.outbox...)
	c.nextID = s.nextID
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var (
	_ store.Store   = (*Store)(nil)
	_ outbox.Source = (*Store)(nil)
)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, view{work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) do(fn func(v view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(view{s.st})
}

func (s *Store) GetProduct(ctx context.Context, id domain.ProductID) (p domain.Product, err error) {
	err = s.do(func(v view) error { p, err = v.GetProduct(ctx, id); return err })
	return p, err
}

func (s *Store) GetProducts(ctx context.Context, ids []domain.ProductID) (m map[domain.ProductID]domain.Product, err error) {
	err = s.do(func(v view) error { m, err = v.GetProducts(ctx, ids); return err })
	return m, err
}

func (s *Store) ListProducts(ctx context.Context, f domain.ProductFilter) (out []domain.Product, err error) {
	err = s.do(func(v view) error { out, err = v.ListProducts(ctx, f); return err })
	return out, err
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	return s.do(func(v view) error { return v.CreateProduct(ctx, p) })
}

func (s *Store) DecrementStock(ctx context.Context, id domain.ProductID, qty int) (ok bool, err error) {
	err = s.do(func(v view) error { ok, err = v.DecrementStock(ctx, id, qty); return err })
	return ok, err
}

func (s *Store) IncrementStock(ctx context.Context, id domain.ProductID, qty int) (ok bool, err error) {
	err = s.do(func(v view) error { ok, err = v.IncrementStock(ctx, id, qty); return err })
	return ok, err
}

func (s *Store) GetCart(ctx context.Context, session domain.SessionID) (c domain.Cart, err error) {
	err = s.do(func(v view) error { c, err = v.GetCart(ctx, session); return err })
	return c, err
}

func (s *Store) SaveCart(ctx context.Context, cart domain.Cart) error {
	return s.do(func(v view) error { return v.SaveCart(ctx, cart) })
}

func (s *Store) InsertOrder(ctx context.Context, o domain.Order) error {
	return s.do(func(v view) error { return v.InsertOrder(ctx, o) })
}

func (s *Store) GetOrder(ctx context.Context, id domain.OrderID) (o domain.Order, err error) {
	err = s.do(func(v view) error { o, err = v.GetOrder(ctx, id); return err })
	return o, err
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, f domain.OrderFilter) (out []domain.Order, err error) {
	err = s.do(func(v view) error { out, err = v.ListOrders(ctx, f); return err })
	return out, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus, at time.Time) error {
	return s.do(func(v view) error { return v.UpdateOrderStatus(ctx, id, status, at) })
}

func (s *Store) DeleteOrder(ctx context.Context, id domain.OrderID) error {
	return s.do(func(v view) error { return v.DeleteOrder(ctx, id) })
}

func (s *Store) AppendEvent(ctx context.Context, evt contracts.Event) error {
	return s.do(func(v view) error { return v.AppendEvent(ctx, evt) })
}

func (s *Store) FetchPending(_ context.Context, limit int) ([]outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Record
	for _, r := range s.st.outbox {
		if r.SentAt == nil {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MarkSent drops the record so transactions never copy sent history.
func (s *Store) MarkSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.st.outbox[:0]
	for _, r := range s.st.outbox {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.st.outbox = kept
	return nil
}

// view implements store.Tx over a state the caller already holds the lock for.
type view struct {
	st *state
}

func (v view) GetProduct(_ context.Context, id domain.ProductID) (domain.Product, error) {
	p, ok := v.st.products[id]
	if !ok {
		return domain.Product{}, domain.NotFoundf("product not found")
	}
	return p, nil
}

func (v view) GetProducts(_ context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.Product, error) {
	out := make(map[domain.ProductID]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := v.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (v view) ListProducts(_ context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	out := []domain.Product{}
	for _, p := range v.st.products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) CreateProduct(_ context.Context, p domain.Product) error {
	if _, ok := v.st.products[p.ID]; ok {
		return &domain.Error{Kind: domain.KindConflict, Msg: "product already exists"}
	}
	v.st.products[p.ID] = p
	return nil
}

func (v view) DecrementStock(_ context.Context, id domain.ProductID, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.Invalidf("stock adjustment must be positive")
	}
	p, ok := v.st.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	v.st.products[id] = p
	return true, nil
}

func (v view) IncrementStock(_ context.Context, id domain.ProductID, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.Invalidf("stock adjustment must be positive")
	}
	p, ok := v.st.products[id]
	if !ok {
		return false, nil
	}
	p.Stock += qty
	v.st.products[id] = p
	return true, nil
}

func (v view) GetCart(_ context.Context, session domain.SessionID) (domain.Cart, error) {
	c, ok := v.st.carts[session]
	if !ok {
		return domain.Cart{}, domain.NotFoundf("cart not found")
	}
	return c.Clone(), nil
}

func (v view) SaveCart(_ context.Context, cart domain.Cart) error {
	v.st.carts[cart.SessionID] = cart.Clone()
	return nil
}

func (v view) InsertOrder(_ context.Context, o domain.Order) error {
	if _, ok := v.st.orders[o.ID]; ok {
		return &domain.Error{Kind: domain.KindConflict, Msg: "order already exists"}
	}
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	v.st.orders[o.ID] = o
	return nil
}

func (v view) GetOrder(_ context.Context, id domain.OrderID) (domain.Order, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return domain.Order{}, domain.NotFoundf("order not found")
	}
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o, nil
}

func (v view) GetOrderForUpdate(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return v.GetOrder(ctx, id)
}

func (v view) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range v.st.orders {
		if f.CustomerEmail != "" && o.Customer.Email != f.CustomerEmail {
			continue
		}
		o.Lines = append([]domain.OrderLine(nil), o.Lines...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (v view) UpdateOrderStatus(_ context.Context, id domain.OrderID, status domain.OrderStatus, at time.Time) error {
	o, ok := v.st.orders[id]
	if !ok {
		return domain.NotFoundf("order not found")
	}
	o.Status = status
	o.UpdatedAt = at
	v.st.orders[id] = o
	return nil
}

func (v view) DeleteOrder(_ context.Context, id domain.OrderID) error {
	if _, ok := v.st.orders[id]; !ok {
		return domain.NotFoundf("order not found")
	}
	delete(v.st.orders, id)
	return nil
}

func (v view) AppendEvent(_ context.Context, evt contracts.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	v.st.nextID++
	v.st.outbox = append(v.st.outbox, outbox.Record{
		ID:        v.st.nextID,
		EventID:   evt.EventID,
		Topic:     evt.Type,
		Key:       evt.OrderID,
		Payload:   data,
		CreatedAt: evt.CreatedAt,
	})
	return nil
}
