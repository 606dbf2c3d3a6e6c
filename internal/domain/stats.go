package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// Mover is an asset ranked by its most recent two-sample price change.
type Mover struct {
	AssetID       string          `json:"assetId"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent float64         `json:"changePercent"`
}

type MarketStats struct {
	TotalMarketCap    decimal.Decimal `json:"totalMarketCap"`
	TotalVolume       decimal.Decimal `json:"totalVolume"`
	AverageVolatility float64         `json:"averageVolatility"`
	TopGainers        []Mover         `json:"topGainers"`
	TopLosers         []Mover         `json:"topLosers"`
}

// ExportDocument is the point-in-time dump consumed by downstream renderers.
type ExportDocument struct {
	GeneratedAt  time.Time               `json:"generatedAt"`
	Assets       []Asset                 `json:"assets"`
	Orders       []Order                 `json:"orders"`
	Trades       []Trade                 `json:"trades"`
	PriceHistory map[string][]PricePoint `json:"priceHistory"`
	Stats        MarketStats             `json:"marketStats"`
}
