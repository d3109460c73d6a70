package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/httpapi"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/service"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store/memory"
	"github.com/nazeru/tx-lab-shop-go/internal/shopclient"
	"github.com/nazeru/tx-lab-shop-go/pkg/idempotency"
)

func newClient(t *testing.T) *shopclient.Client {
	t.Helper()
	st := memory.New()
	srv := &httpapi.Server{
		Catalog:  service.NewCatalog(st),
		Carts:    service.NewCarts(st),
		Checkout: service.NewCheckout(st, idempotency.NewMemoryStore(time.Hour), nil),
		Orders:   service.NewOrders(st, nil),
		Health:   st,
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return shopclient.New(ts.URL, ts.Client())
}

func TestRunScenarioShoppingFlow(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	p, err := c.CreateProduct(ctx, "Lamp", decimal.NewFromInt(12), 1)
	require.NoError(t, err)

	res := runScenario(ctx, c, "s-1", "browse", "")
	require.Len(t, res.products, 1)
	assert.Equal(t, "1 product(s)", res.status)

	res = runScenario(ctx, c, "s-1", "add", p.ID)
	assert.Equal(t, "Added to cart", res.status)
	assert.Equal(t, "Cart: 1 item(s), total 12.00", res.metrics)

	res = runScenario(ctx, c, "s-1", "checkout", "")
	assert.Contains(t, res.status, "confirmed, total 12.00")

	res = runScenario(ctx, c, "s-1", "cart", "")
	assert.Equal(t, "Cart: 0 item(s), total 0.00", res.metrics)

	res = runScenario(ctx, c, "s-1", "checkout", "")
	assert.Contains(t, res.status, "Checkout rejected (empty_cart)")

	res = runScenario(ctx, c, "s-1", "add", "")
	assert.Equal(t, "No product selected", res.status)
}

func TestRunScenarioBench(t *testing.T) {
	res := runScenario(context.Background(), newClient(t), "s-1", "bench", "")
	assert.Equal(t, "Benchmark finished, no oversell", res.status)
	assert.Contains(t, res.metrics, "placed=5 rejected=45")
}

func TestModelNavigation(t *testing.T) {
	m := initialModel(nil, "s-1")
	next, _ := m.Update(scenarioResult{status: "2 product(s)", products: []shopclient.Product{{ID: "a"}, {ID: "b"}}})
	m = next.(model)
	require.Len(t, m.products, 2)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	assert.Equal(t, 1, m.selectedPrd)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = next.(model)
	assert.Equal(t, "add", scenarios[m.selectedScn].Name)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	assert.True(t, m.busy)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "> ")
}
