package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProductID string

type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category,omitempty"`
	Image       string          `json:"image,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Bounds of the products table columns.
var MaxPrice = decimal.RequireFromString("9999999999.99")

const MaxStock = math.MaxInt32

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Invalidf("name is required")
	}
	if p.Price.IsNegative() {
		return Invalidf("price should be positive")
	}
	if !p.Price.Equal(p.Price.Truncate(2)) {
		return Invalidf("price must have at most 2 decimal places")
	}
	if p.Price.GreaterThan(MaxPrice) {
		return Invalidf("price must not exceed %s", MaxPrice.String())
	}
	if p.Stock < 0 {
		return Invalidf("stock should not be negative")
	}
	if p.Stock > MaxStock {
		return Invalidf("stock must not exceed %d", MaxStock)
	}
	return nil
}

// ProductFilter bounds are inclusive; nil means unbounded.
type ProductFilter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

func (f ProductFilter) Match(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}
