package port

import (
	"context"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

type Cache interface {
	SetOrderbook(ctx context.Context, assetID string, ob *domain.OrderbookSnapshot) error
	GetOrderbook(ctx context.Context, assetID string) (*domain.OrderbookSnapshot, error)
	Invalidate(ctx context.Context, assetID string) error
}
