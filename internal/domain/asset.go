package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type AssetType string

const (
	Stock     AssetType = "STOCK"
	Bond      AssetType = "BOND"
	Commodity AssetType = "COMMODITY"
	Currency  AssetType = "CURRENCY"
	Crypto    AssetType = "CRYPTO"
)

// Fundamentals nudge the drift of an asset between trades.
type Fundamentals struct {
	PERatio        float64 `json:"peRatio"`
	DividendYield  float64 `json:"dividendYield"`
	BookValue      float64 `json:"bookValue"`
	Revenue        float64 `json:"revenue"`
	EarningsGrowth float64 `json:"earningsGrowth"`
	DebtToEquity   float64 `json:"debtToEquity"`
}

type Asset struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Type         AssetType       `json:"type"`
	Price        decimal.Decimal `json:"currentPrice"`
	Volume       decimal.Decimal `json:"volume"`
	MarketCap    decimal.Decimal `json:"marketCap"`
	Volatility   float64         `json:"volatility"`
	Fundamentals *Fundamentals   `json:"fundamentals,omitempty"`
}

func (a *Asset) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: asset id required", ErrInvalidAsset)
	}
	if !a.Price.IsPositive() {
		return fmt.Errorf("%w: price must be > 0", ErrInvalidAsset)
	}
	if a.Volume.IsNegative() {
		return fmt.Errorf("%w: volume must be >= 0", ErrInvalidAsset)
	}
	if a.Volatility < 0 {
		return fmt.Errorf("%w: volatility must be >= 0", ErrInvalidAsset)
	}
	return nil
}

// RecomputeMarketCap keeps MarketCap = Price × Volume.
func (a *Asset) RecomputeMarketCap() {
	a.MarketCap = a.Price.Mul(a.Volume)
}

func (a Asset) Clone() Asset {
	if a.Fundamentals != nil {
		f := *a.Fundamentals
		a.Fundamentals = &f
	}
	return a
}
