package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindEmptyCart         Kind = "empty_cart"
	KindOutOfStock        Kind = "out_of_stock"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindUnexpected        Kind = "unexpected"
)

// Shortage describes one cart line that cannot be fulfilled.
type Shortage struct {
	ProductID ProductID `json:"productId"`
	Name      string    `json:"name,omitempty"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Reason    string    `json:"reason"`
}

const (
	ReasonInsufficientStock = "insufficient stock"
	ReasonProductGone       = "product no longer exists"
)

type Error struct {
	Kind        Kind
	Msg         string
	Unavailable []Shortage
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Invalidf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func OutOfStock(lines []Shortage) *Error {
	return &Error{Kind: KindOutOfStock, Msg: "some items are out of stock", Unavailable: lines}
}

func InsufficientStock(s Shortage) *Error {
	return &Error{
		Kind:        KindInsufficientStock,
		Msg:         fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", s.ProductID, s.Requested, s.Available),
		Unavailable: []Shortage{s},
	}
}

var ErrEmptyCart = &Error{Kind: KindEmptyCart, Msg: "cart is empty, add items before placing order"}

// KindOf returns KindUnexpected for anything that is not a *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Wrap converts any error into a *Error, leaving domain errors untouched.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: KindUnexpected, Msg: msg, Err: err}
}
