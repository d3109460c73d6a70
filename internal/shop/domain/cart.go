package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionID identifies the shopper a cart belongs to.
type SessionID string

type CartLine struct {
	ProductID ProductID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// Cart holds at most one line per product, in insertion order.
type Cart struct {
	SessionID SessionID  `json:"sessionId"`
	Lines     []CartLine `json:"items"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Cart) find(id ProductID) int {
	for i, l := range c.Lines {
		if l.ProductID == id {
			return i
		}
	}
	return -1
}

// Quantity returns the quantity already in the cart for the product, 0 if absent.
func (c *Cart) Quantity(id ProductID) int {
	if i := c.find(id); i >= 0 {
		return c.Lines[i].Quantity
	}
	return 0
}

func (c *Cart) Has(id ProductID) bool {
	return c.find(id) >= 0
}

// Add creates the line or increments an existing one.
func (c *Cart) Add(id ProductID, qty int) {
	if i := c.find(id); i >= 0 {
		c.Lines[i].Quantity += qty
		return
	}
	c.Lines = append(c.Lines, CartLine{ProductID: id, Quantity: qty})
}

// Set replaces the quantity of an existing line. It reports false when the line is absent.
func (c *Cart) Set(id ProductID, qty int) bool {
	i := c.find(id)
	if i < 0 {
		return false
	}
	c.Lines[i].Quantity = qty
	return true
}

// Remove deletes the line and reports whether it was present.
func (c *Cart) Remove(id ProductID) bool {
	i := c.find(id)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

func (c *Cart) Clear() {
	c.Lines = []CartLine{}
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c Cart) Clone() Cart {
	out := c
	out.Lines = append([]CartLine(nil), c.Lines...)
	return out
}

// CartItemView is a cart line resolved against the current catalog.
type CartItemView struct {
	ProductID ProductID       `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Available bool            `json:"available"`
}

type CartSummary struct {
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type CartView struct {
	SessionID SessionID      `json:"sessionId"`
	Items     []CartItemView `json:"items"`
	Summary   CartSummary    `json:"summary"`
}

// NewCartView prices every line at the product's current price. Lines whose product
// no longer exists count towards TotalItems but not towards TotalPrice.
func NewCartView(cart Cart, products map[ProductID]Product) CartView {
	view := CartView{
		SessionID: cart.SessionID,
		Items:     make([]CartItemView, 0, len(cart.Lines)),
		Summary:   CartSummary{TotalPrice: decimal.Zero},
	}
	for _, l := range cart.Lines {
		item := CartItemView{ProductID: l.ProductID, Quantity: l.Quantity, Price: decimal.Zero, LineTotal: decimal.Zero}
		if p, ok := products[l.ProductID]; ok {
			item.Name = p.Name
			item.Price = p.Price
			item.LineTotal = p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			item.Available = true
			view.Summary.TotalPrice = view.Summary.TotalPrice.Add(item.LineTotal)
		}
		view.Summary.TotalItems += l.Quantity
		view.Items = append(view.Items, item)
	}
	return view
}
