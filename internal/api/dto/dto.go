package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

type RegisterAssetRequest struct {
	ID           string               `json:"id" binding:"required"`
	Symbol       string               `json:"symbol"`
	Name         string               `json:"name"`
	Type         domain.AssetType     `json:"type"`
	Price        decimal.Decimal      `json:"price" binding:"required"`
	Volume       decimal.Decimal      `json:"volume"`
	Volatility   float64              `json:"volatility"`
	Fundamentals *domain.Fundamentals `json:"fundamentals,omitempty"`
}

func (r RegisterAssetRequest) Asset() domain.Asset {
	return domain.Asset{
		ID:           r.ID,
		Symbol:       r.Symbol,
		Name:         r.Name,
		Type:         r.Type,
		Price:        r.Price,
		Volume:       r.Volume,
		Volatility:   r.Volatility,
		Fundamentals: r.Fundamentals,
	}
}

type ApplyPriceRequest struct {
	Price decimal.Decimal `json:"price" binding:"required"`
}

type SubmitOrderRequest struct {
	OrderID  string           `json:"order_id,omitempty"` // for deduplicate
	TraderID string           `json:"trader_id"`
	AssetID  string           `json:"asset_id" binding:"required"`
	Side     domain.Side      `json:"side" binding:"required"`
	Type     domain.OrderType `json:"type" binding:"required"`
	Price    *decimal.Decimal `json:"price,omitempty"` // for limited order
	Quantity decimal.Decimal  `json:"quantity" binding:"required"`
}

func (r SubmitOrderRequest) Order() domain.Order {
	o := domain.Order{
		ID:       r.OrderID,
		AssetID:  r.AssetID,
		TraderID: r.TraderID,
		Side:     r.Side,
		Type:     r.Type,
		Quantity: r.Quantity,
	}
	if r.Price != nil {
		o.Price = decimal.NewNullDecimal(*r.Price)
	}
	return o
}

type SubmitOrderResponse struct {
	OrderID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status,omitempty"`
	Trades    []Trade            `json:"trades"`
	Remaining decimal.Decimal    `json:"remaining"`
	Message   string             `json:"message,omitempty"`
}

type CancelOrderRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	TraderID string `json:"trader_id"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message,omitempty"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type GetTradesResponse struct {
	Trades []Trade `json:"trades"`
}

type GetOrderbookResponse struct {
	AssetID   string    `json:"asset_id"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type GetPriceHistoryResponse struct {
	AssetID string              `json:"asset_id"`
	History []domain.PricePoint `json:"history"`
}

type Order struct {
	ID        string           `json:"id"`
	TraderID  string           `json:"trader_id"`
	AssetID   string           `json:"asset_id"`
	Side      domain.Side      `json:"side"`
	Type      domain.OrderType `json:"type"`
	Price     *decimal.Decimal `json:"price"`
	Remaining decimal.Decimal  `json:"remaining"`
	Filled    decimal.Decimal  `json:"filled"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

type Trade struct {
	ID        string          `json:"id"`
	AssetID   string          `json:"asset_id"`
	BuyOrder  string          `json:"buy_order"`
	SellOrder string          `json:"sell_order"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

func FromOrder(o domain.Order) Order {
	out := Order{
		ID:        o.ID,
		TraderID:  o.TraderID,
		AssetID:   o.AssetID,
		Side:      o.Side,
		Type:      o.Type,
		Remaining: o.Quantity,
		Filled:    o.FilledQuantity,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
	if o.Price.Valid {
		p := o.Price.Decimal
		out.Price = &p
	}
	return out
}

func FromOrders(orders []domain.Order) []Order {
	res := make([]Order, len(orders))
	for i, o := range orders {
		res[i] = FromOrder(o)
	}
	return res
}

func FromTrades(trades []domain.Trade) []Trade {
	res := make([]Trade, len(trades))
	for i, t := range trades {
		res[i] = Trade{
			ID:        t.ID,
			AssetID:   t.AssetID,
			BuyOrder:  t.BuyOrderID,
			SellOrder: t.SellOrderID,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Timestamp: t.Timestamp,
		}
	}
	return res
}

// ValidateOrder rejects malformed requests before they reach the engine.
func ValidateOrder(req *SubmitOrderRequest) error {
	if !req.Side.Valid() {
		return fmt.Errorf("invalid side: %s", req.Side)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("invalid order type: %s", req.Type)
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be > 0")
	}
	needsPrice := req.Type == domain.Limit || req.Type == domain.StopLimit
	if needsPrice && req.Price == nil {
		return fmt.Errorf("price is required for %s orders", req.Type)
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return fmt.Errorf("price must be > 0")
	}
	return nil
}
