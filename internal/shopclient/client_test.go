package shopclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsHeadersAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "s-1", r.Header.Get("X-Session-ID"))
		assert.Equal(t, "k-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"receipt":{"orderId":"o-1","totalAmount":"30","status":"confirmed"}}`))
	}))
	defer ts.Close()

	c := New(ts.URL+"/", ts.Client())
	res, err := c.PlaceOrder(context.Background(), "s-1", "k-1", Customer{Name: "Ada", Email: "ada@example.com", Address: "x"})
	require.NoError(t, err)
	assert.Equal(t, "o-1", res.Receipt.OrderID)
	assert.True(t, decimal.NewFromInt(30).Equal(res.Receipt.TotalAmount))
	assert.False(t, res.Replayed)
}

func TestClientReturnsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"out_of_stock","message":"some items are unavailable","unavailable":[{"productId":"p"}]}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).GetCart(context.Background(), "s-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "out_of_stock", apiErr.Kind)
	assert.Len(t, apiErr.Unavailable, 1)
}

func TestClientKeepsRawBodyOnUndecodableError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).ListProducts(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Contains(t, apiErr.Message, "bad gateway")
}
