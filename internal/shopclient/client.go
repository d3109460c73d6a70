// Package shopclient is a small HTTP client for the shop API, used by the bench
// runner and the console.
package shopclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// APIError carries the decoded error body of a non-2xx response.
type APIError struct {
	Status      int               `json:"-"`
	Kind        string            `json:"error"`
	Message     string            `json:"message"`
	Unavailable []json.RawMessage `json:"unavailable,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Kind, e.Message)
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category,omitempty"`
}

type CartSummary struct {
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type Cart struct {
	Items []struct {
		ProductID string `json:"productId"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Summary CartSummary `json:"summary"`
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Receipt struct {
	OrderID     string          `json:"orderId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
}

type PlaceOrderResult struct {
	Receipt  Receipt `json:"receipt"`
	Replayed bool    `json:"replayed"`
}

func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	return out, c.do(ctx, http.MethodGet, "/products", "", "", nil, &out)
}

func (c *Client) CreateProduct(ctx context.Context, name string, price decimal.Decimal, stock int) (Product, error) {
	var out Product
	body := map[string]any{"name": name, "price": price, "stock": stock}
	return out, c.do(ctx, http.MethodPost, "/products", "", "", body, &out)
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	var out Product
	return out, c.do(ctx, http.MethodGet, "/products/"+id, "", "", nil, &out)
}

func (c *Client) GetCart(ctx context.Context, session string) (Cart, error) {
	var out Cart
	return out, c.do(ctx, http.MethodGet, "/cart", session, "", nil, &out)
}

func (c *Client) AddItem(ctx context.Context, session, productID string, qty int) (Cart, error) {
	var out Cart
	body := map[string]any{"productId": productID, "quantity": qty}
	return out, c.do(ctx, http.MethodPost, "/cart/items", session, "", body, &out)
}

func (c *Client) PlaceOrder(ctx context.Context, session, idemKey string, cust Customer) (PlaceOrderResult, error) {
	var out PlaceOrderResult
	body := map[string]any{"customer": cust}
	return out, c.do(ctx, http.MethodPost, "/orders", session, idemKey, body, &out)
}

func (c *Client) do(ctx context.Context, method, path, session, idemKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("X-Session-ID", session)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = string(data)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
