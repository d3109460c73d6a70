// Package store defines the persistence boundary of the shop: products, carts,
// orders and the transactional outbox, plus a commit capability spanning all of them.
package store

import (
	"context"
	"time"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
)

// Tx is the set of operations available both inside and outside a transaction.
// Lookups of missing rows return a domain NotFound error.
type Tx interface {
	GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error)
	// GetProducts omits ids that do not exist.
	GetProducts(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.Product, error)
	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	// DecrementStock subtracts qty only if stock >= qty and reports whether it did.
	DecrementStock(ctx context.Context, id domain.ProductID, qty int) (bool, error)
	// IncrementStock reports false when the product no longer exists.
	IncrementStock(ctx context.Context, id domain.ProductID, qty int) (bool, error)

	// GetCart locks the cart row for the rest of the transaction where the backend supports it.
	GetCart(ctx context.Context, session domain.SessionID) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error

	InsertOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id domain.OrderID) (domain.Order, error)
	// ListOrders returns newest first.
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus, at time.Time) error
	DeleteOrder(ctx context.Context, id domain.OrderID) error

	AppendEvent(ctx context.Context, evt contracts.Event) error
}

type Store interface {
	Tx
	// InTx runs fn atomically: either every write made through tx is applied or none is.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
