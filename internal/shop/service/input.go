package service

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
)

const maxSessionLen = 128

func parseSession(s string) (domain.SessionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Invalidf("session id is required")
	}
	if len(s) > maxSessionLen {
		return "", domain.Invalidf("session id is too long")
	}
	return domain.SessionID(s), nil
}

func parseProductID(s string) (domain.ProductID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Invalidf("product ID is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", domain.Invalidf("invalid product ID format")
	}
	return domain.ProductID(u.String()), nil
}

func parseOrderID(s string) (domain.OrderID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", domain.Invalidf("invalid order ID format")
	}
	return domain.OrderID(u.String()), nil
}

// MaxLineQuantity bounds a single cart line.
const MaxLineQuantity = 1_000_000

type AddItemInput struct {
	ProductID string `json:"productId"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

func (in AddItemInput) parse() (domain.ProductID, int, error) {
	id, err := parseProductID(in.ProductID)
	if err != nil {
		return "", 0, err
	}
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if qty <= 0 {
		return "", 0, domain.Invalidf("quantity must be at least 1")
	}
	if qty > MaxLineQuantity {
		return "", 0, domain.Invalidf("quantity must not exceed %d", MaxLineQuantity)
	}
	return id, qty, nil
}

type SetQuantityInput struct {
	Quantity *int `json:"quantity"`
}

func (in SetQuantityInput) parse() (int, error) {
	if in.Quantity == nil {
		return 0, domain.Invalidf("quantity is required")
	}
	if *in.Quantity < 0 {
		return 0, domain.Invalidf("quantity cannot be negative")
	}
	if *in.Quantity > MaxLineQuantity {
		return 0, domain.Invalidf("quantity must not exceed %d", MaxLineQuantity)
	}
	return *in.Quantity, nil
}

type PlaceOrderInput struct {
	Customer *domain.Customer `json:"customer"`
}

func (in PlaceOrderInput) parse() (domain.Customer, error) {
	if in.Customer == nil {
		return domain.Customer{}, domain.Invalidf("customer information (name, email, address) is required")
	}
	c := domain.Customer{
		Name:    strings.TrimSpace(in.Customer.Name),
		Email:   strings.TrimSpace(in.Customer.Email),
		Address: strings.TrimSpace(in.Customer.Address),
	}
	if err := c.Validate(); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

type SetStatusInput struct {
	Status string `json:"status"`
}

type CreateProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

// ProductQuery carries the raw list filter as received from the query string.
type ProductQuery struct {
	Category string
	MinPrice string
	MaxPrice string
}

func (q ProductQuery) parse() (domain.ProductFilter, error) {
	f := domain.ProductFilter{Category: strings.TrimSpace(q.Category)}
	if q.MinPrice != "" {
		d, err := decimal.NewFromString(q.MinPrice)
		if err != nil {
			return f, domain.Invalidf("minPrice must be a number")
		}
		f.MinPrice = &d
	}
	if q.MaxPrice != "" {
		d, err := decimal.NewFromString(q.MaxPrice)
		if err != nil {
			return f, domain.Invalidf("maxPrice must be a number")
		}
		f.MaxPrice = &d
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return f, domain.Invalidf("minPrice must not exceed maxPrice")
	}
	return f, nil
}
