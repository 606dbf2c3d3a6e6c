package port

import (
	"context"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

// EventPublisher fans executed trades out to downstream consumers.
type EventPublisher interface {
	PublishTrades(ctx context.Context, trades []domain.Trade) error
}

// TradeArchive receives trades evicted from the in-memory ledger.
type TradeArchive interface {
	Archive(ctx context.Context, trades []domain.Trade) error
	Load(ctx context.Context, assetID string) ([]domain.Trade, error)
}
