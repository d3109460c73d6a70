package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderID string

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus accepts only the exact lower-case status names.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	names := make([]string, 0, len(orderStatuses))
	for _, st := range orderStatuses {
		names = append(names, string(st))
	}
	return "", Invalidf("status must be one of: %s", strings.Join(names, ", "))
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Email) == "" || strings.TrimSpace(c.Address) == "" {
		return Invalidf("customer information (name, email, address) is required")
	}
	return nil
}

// OrderLine is a snapshot taken at checkout; Name and UnitPrice do not follow later catalog edits.
type OrderLine struct {
	ProductID ProductID       `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID          OrderID         `json:"id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Customer    Customer        `json:"customer"`
	Lines       []OrderLine     `json:"items"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o Order) TotalItems() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

type ReceiptLine struct {
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Total     decimal.Decimal `json:"total"`
}

type Receipt struct {
	OrderID     OrderID         `json:"orderId"`
	OrderDate   time.Time       `json:"orderDate"`
	Customer    Customer        `json:"customer"`
	Items       []ReceiptLine   `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
}

func (o Order) Receipt() Receipt {
	items := make([]ReceiptLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ReceiptLine{
			Product:   l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     l.Subtotal(),
		})
	}
	return Receipt{
		OrderID:     o.ID,
		OrderDate:   o.CreatedAt,
		Customer:    o.Customer,
		Items:       items,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
	}
}

type OrderFilter struct {
	CustomerEmail string
}
