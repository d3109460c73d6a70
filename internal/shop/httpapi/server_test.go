package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/service"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store/memory"
	"github.com/nazeru/tx-lab-shop-go/pkg/idempotency"
	"github.com/nazeru/tx-lab-shop-go/pkg/metrics"
)

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	reg := prometheus.NewRegistry()
	shop := metrics.NewShopMetrics(reg)
	srv := &Server{
		Catalog:        service.NewCatalog(st),
		Carts:          service.NewCarts(st),
		Checkout:       service.NewCheckout(st, idempotency.NewMemoryStore(time.Hour), shop),
		Orders:         service.NewOrders(st, shop),
		Health:         st,
		Metrics:        metrics.NewServerMetrics(reg, "shop-service"),
		MetricsHandler: metrics.Handler(reg),
		Timeout:        time.Second,
	}
	return &fixture{store: st, handler: srv.Routes()}
}

func (f *fixture) seed(t *testing.T, price int64, stock int) domain.ProductID {
	t.Helper()
	id := domain.ProductID(uuid.NewString())
	require.NoError(t, f.store.CreateProduct(context.Background(), domain.Product{
		ID: id, Name: "Widget", Price: decimal.NewFromInt(price), Stock: stock, CreatedAt: time.Now(),
	}))
	return id
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var sess = map[string]string{SessionHeader: "s-1"}

const customer = `{"customer":{"name":"Ada","email":"ada@example.com","address":"1 Main St"}}`

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 10, 5)

	rec := f.do(t, http.MethodPost, "/cart/items", `{"productId":"`+string(id)+`","quantity":3}`, sess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode(t, rec)["summary"].(map[string]any)
	assert.Equal(t, float64(3), summary["totalItems"])
	assert.Equal(t, "30", summary["totalPrice"])

	rec = f.do(t, http.MethodPost, "/orders", customer, sess)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	receipt := body["receipt"].(map[string]any)
	assert.Equal(t, "30", receipt["totalAmount"])
	assert.Equal(t, "confirmed", receipt["status"])
	orderID := body["order"].(map[string]any)["id"].(string)

	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	rec = f.do(t, http.MethodGet, "/orders/"+orderID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["summary"].(map[string]any)["totalItems"])

	rec = f.do(t, http.MethodPatch, "/orders/"+orderID+"/status", `{"status":"cancelled"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p, _ = f.store.GetProduct(context.Background(), id)
	assert.Equal(t, 5, p.Stock)

	rec = f.do(t, http.MethodGet, "/orders/customer/ada@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = f.do(t, http.MethodDelete, "/orders/"+orderID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/orders/"+orderID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOutOfStockBody(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 10, 2)

	rec := f.do(t, http.MethodPost, "/cart/items", `{"productId":"`+string(id)+`","quantity":2}`, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := f.store.DecrementStock(context.Background(), id, 1)
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/orders", customer, sess)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "out_of_stock", body["error"])
	unavailable := body["unavailable"].([]any)
	require.Len(t, unavailable, 1)
	line := unavailable[0].(map[string]any)
	assert.Equal(t, float64(2), line["requested"])
	assert.Equal(t, float64(1), line["available"])
}

func TestIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 10, 5)
	f.do(t, http.MethodPost, "/cart/items", `{"productId":"`+string(id)+`"}`, sess)

	headers := map[string]string{SessionHeader: "s-1", idempotency.Header: "abc"}
	first := f.do(t, http.MethodPost, "/orders", customer, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := f.do(t, http.MethodPost, "/orders", customer, headers)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, true, decode(t, second)["replayed"])

	p, _ := f.store.GetProduct(context.Background(), id)
	assert.Equal(t, 4, p.Stock)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 10, 5)

	cases := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		code    int
		kind    string
	}{
		{"missing session", http.MethodGet, "/cart", "", nil, http.StatusBadRequest, "invalid_input"},
		{"unknown field", http.MethodPost, "/cart/items", `{"productId":"` + string(id) + `","qty":1}`, sess, http.StatusBadRequest, "invalid_input"},
		{"empty body", http.MethodPost, "/cart/items", "", sess, http.StatusBadRequest, "invalid_input"},
		{"bad product id", http.MethodGet, "/products/xyz", "", nil, http.StatusBadRequest, "invalid_input"},
		{"unknown product", http.MethodGet, "/products/" + uuid.NewString(), "", nil, http.StatusNotFound, "not_found"},
		{"empty cart checkout", http.MethodPost, "/orders", customer, sess, http.StatusBadRequest, "empty_cart"},
		{"missing customer", http.MethodPost, "/orders", `{}`, sess, http.StatusBadRequest, "invalid_input"},
		{"bad status", http.MethodPatch, "/orders/" + uuid.NewString() + "/status", `{"status":"lost"}`, nil, http.StatusBadRequest, "invalid_input"},
		{"bad order id", http.MethodGet, "/orders/123", "", nil, http.StatusBadRequest, "invalid_input"},
		{"too much stock", http.MethodPost, "/cart/items", `{"productId":"` + string(id) + `","quantity":6}`, sess, http.StatusBadRequest, "insufficient_stock"},
		{"bad price filter", http.MethodGet, "/products?minPrice=cheap", "", nil, http.StatusBadRequest, "invalid_input"},
		{"quantity overflow", http.MethodPost, "/cart/items", `{"productId":"` + string(id) + `","quantity":9223372036854775807}`, sess, http.StatusBadRequest, "invalid_input"},
		{"sub-cent price", http.MethodPost, "/products", `{"name":"Lamp","price":"1.005","stock":1}`, nil, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.body, tc.headers)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, decode(t, rec)["error"])
		})
	}
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/products", `{"name":"Lamp","price":"19.99","stock":4,"category":"home"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/products?category=home&maxPrice=20", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Lamp", list[0]["name"])

	rec = f.do(t, http.MethodGet, "/products?category=garden", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shop_shop_service_http_requests_total")
}
