// Package service implements the shop's use cases on top of a store.Store:
// catalog reads, per-session carts, checkout and order administration.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
)

const serviceName = "shop-service"

type Catalog struct {
	store store.Store
	group singleflight.Group
	now   func() time.Time
}

func NewCatalog(s store.Store) *Catalog {
	return &Catalog{store: s, now: time.Now}
}

func (c *Catalog) ListProducts(ctx context.Context, q ProductQuery) ([]domain.Product, error) {
	f, err := q.parse()
	if err != nil {
		return nil, err
	}
	products, err := c.store.ListProducts(ctx, f)
	if err != nil {
		return nil, domain.Wrap(err, "list products")
	}
	return products, nil
}

// GetProduct collapses concurrent lookups of the same id into one store read.
func (c *Catalog) GetProduct(ctx context.Context, rawID string) (domain.Product, error) {
	id, err := parseProductID(rawID)
	if err != nil {
		return domain.Product{}, err
	}
	// The shared read must not die with whichever caller started it.
	ch := c.group.DoChan(string(id), func() (any, error) {
		return c.store.GetProduct(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return domain.Product{}, domain.Wrap(ctx.Err(), "get product")
	case r := <-ch:
		if r.Err != nil {
			return domain.Product{}, domain.Wrap(r.Err, "get product")
		}
		return r.Val.(domain.Product), nil
	}
}

func (c *Catalog) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	now := c.now().UTC()
	p := domain.Product{
		ID:          domain.ProductID(uuid.NewString()),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    strings.TrimSpace(in.Category),
		Image:       in.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := c.store.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, domain.Wrap(err, "create product")
	}
	return p, nil
}
