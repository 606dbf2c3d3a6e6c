package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type OrderStatus string

const (
	Buy       Side        = "BUY"
	Sell      Side        = "SELL"
	Market    OrderType   = "MARKET"
	Limit     OrderType   = "LIMIT"
	Stop      OrderType   = "STOP"
	StopLimit OrderType   = "STOP_LIMIT"
	Pending   OrderStatus = "PENDING"
	Partial   OrderStatus = "PARTIAL"
	Filled    OrderStatus = "FILLED"
	Cancelled OrderStatus = "CANCELLED"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (t OrderType) Valid() bool {
	switch t {
	case Market, Limit, Stop, StopLimit:
		return true
	}
	return false
}

// Order is a resting or historical instruction to trade an asset.
// Quantity is the remaining quantity; it only ever decreases.
type Order struct {
	ID             string              `json:"id"`
	AssetID        string              `json:"assetId"`
	Type           OrderType           `json:"type"`
	Side           Side                `json:"side"`
	Quantity       decimal.Decimal     `json:"quantity"`
	FilledQuantity decimal.Decimal     `json:"filledQuantity"`
	Price          decimal.NullDecimal `json:"price"`
	Status         OrderStatus         `json:"status"`
	TraderID       string              `json:"traderId"`
	CreatedAt      time.Time           `json:"timestamp"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// HasLimitPrice reports whether the order carries a price it can cross at.
func (o *Order) HasLimitPrice() bool {
	return o.Price.Valid
}

func (o *Order) Terminal() bool {
	return o.Status == Filled || o.Status == Cancelled
}

func (o *Order) PartiallyFilled() bool {
	return o.FilledQuantity.GreaterThan(decimal.Zero) && o.Quantity.GreaterThan(decimal.Zero)
}

// Validate checks the order before it is allowed anywhere near a book.
func (o *Order) Validate() error {
	if o.AssetID == "" {
		return fmt.Errorf("%w: asset id required", ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", ErrInvalidOrder, o.Side)
	}
	if !o.Type.Valid() {
		return fmt.Errorf("%w: invalid order type %q", ErrInvalidOrder, o.Type)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidOrder)
	}
	if o.Price.Valid && !o.Price.Decimal.IsPositive() {
		return fmt.Errorf("%w: price must be > 0", ErrInvalidOrder)
	}
	if (o.Type == Limit || o.Type == StopLimit) && !o.Price.Valid {
		return fmt.Errorf("%w: price required for %s orders", ErrInvalidOrder, o.Type)
	}
	return nil
}
