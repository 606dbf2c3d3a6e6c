package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Trade struct {
	ID          string          `json:"id"`
	AssetID     string          `json:"assetId"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
}
