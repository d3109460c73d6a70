// Package httpapi exposes the shop services over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/service"
	"github.com/nazeru/tx-lab-shop-go/pkg/idempotency"
	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
	"github.com/nazeru/tx-lab-shop-go/pkg/metrics"
)

const (
	SessionHeader = "X-Session-ID"
	maxBodyBytes  = 1 << 20
	serviceName   = "shop-service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Catalog  *service.Catalog
	Carts    *service.Carts
	Checkout *service.Checkout
	Orders   *service.Orders

	Health  Pinger
	Metrics *metrics.ServerMetrics
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
	Timeout        time.Duration
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		var handler http.Handler = s.withTimeout(h)
		if s.Metrics != nil {
			handler = s.Metrics.Wrap(name, handler)
		}
		mux.Handle(pattern, handler)
	}

	route("GET /health", "health", s.health)

	route("GET /products", "list_products", s.listProducts)
	route("GET /products/{id}", "get_product", s.getProduct)
	route("POST /products", "create_product", s.createProduct)

	route("GET /cart", "get_cart", s.getCart)
	route("POST /cart/items", "add_item", s.addItem)
	route("PUT /cart/items/{productId}", "set_quantity", s.setQuantity)
	route("DELETE /cart/items/{productId}", "remove_item", s.removeItem)
	route("DELETE /cart", "clear_cart", s.clearCart)

	route("POST /orders", "place_order", s.placeOrder)
	route("GET /orders", "list_orders", s.listOrders)
	route("GET /orders/{id}", "get_order", s.getOrder)
	route("GET /orders/customer/{email}", "list_customer_orders", s.listCustomerOrders)
	route("PATCH /orders/{id}/status", "set_status", s.setStatus)
	route("DELETE /orders/{id}", "delete_order", s.deleteOrder)

	if s.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.MetricsHandler)
	}
	return mux
}

func (s *Server) withTimeout(h http.HandlerFunc) http.Handler {
	if s.Timeout <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := s.Catalog.ListProducts(r.Context(), service.ProductQuery{
		Category: q.Get("category"),
		MinPrice: q.Get("minPrice"),
		MaxPrice: q.Get("maxPrice"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.Catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in service.CreateProductInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := s.Catalog.CreateProduct(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.Carts.GetCart(r.Context(), r.Header.Get(SessionHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var in service.AddItemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	view, err := s.Carts.AddItem(r.Context(), r.Header.Get(SessionHeader), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) setQuantity(w http.ResponseWriter, r *http.Request) {
	var in service.SetQuantityInput
	if !decodeJSON(w, r, &in) {
		return
	}
	view, err := s.Carts.SetQuantity(r.Context(), r.Header.Get(SessionHeader), r.PathValue("productId"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	view, err := s.Carts.RemoveItem(r.Context(), r.Header.Get(SessionHeader), r.PathValue("productId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.Carts.ClearCart(r.Context(), r.Header.Get(SessionHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in service.PlaceOrderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := s.Checkout.PlaceOrder(r.Context(), r.Header.Get(SessionHeader), in, idempotency.Key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.Orders.ListOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.Orders.ListOrdersByCustomerEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var in service.SetStatusInput
	if !decodeJSON(w, r, &in) {
		return
	}
	o, err := s.Orders.SetStatus(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.Orders.DeleteOrder(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "order deleted"})
}

// decodeJSON writes a 400 and returns false when the body is not a single valid object
// of the expected shape.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid json"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, domain.Invalidf("%s", msg))
		return false
	}
	if dec.More() {
		writeError(w, domain.Invalidf("request body must contain a single JSON object"))
		return false
	}
	return true
}

type errorBody struct {
	Error       domain.Kind       `json:"error"`
	Message     string            `json:"message"`
	Unavailable []domain.Shortage `json:"unavailable,omitempty"`
}

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindInvalidInput, domain.KindEmptyCart, domain.KindOutOfStock, domain.KindInsufficientStock:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = &domain.Error{Kind: domain.KindUnexpected, Msg: "internal error", Err: err}
	}
	code := statusFor(de.Kind)
	body := errorBody{Error: de.Kind, Message: de.Msg, Unavailable: de.Unavailable}
	if code == http.StatusInternalServerError {
		logging.Log(logging.Err(serviceName, "http", err))
		body.Message = "internal error"
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
			body.Message = "request timed out"
		}
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
