package port

import (
	"context"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

type Repository interface {
	SaveAsset(ctx context.Context, a *domain.Asset) error
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error
	LoadAssets(ctx context.Context) ([]*domain.Asset, error)
	// LoadOrders returns every stored order of an asset oldest first, terminal ones included.
	LoadOrders(ctx context.Context, assetID string) ([]*domain.Order, error)
	LoadRecentTrades(ctx context.Context, assetID string, limit int) ([]*domain.Trade, error)
	BeginTx(ctx context.Context) (Tx, error)
}

type Tx interface {
	SaveAsset(ctx context.Context, a *domain.Asset) error
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
