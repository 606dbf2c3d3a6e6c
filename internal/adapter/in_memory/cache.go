package in_memory

import (
	"context"
	"sync"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[string]*domain.OrderbookSnapshot
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.OrderbookSnapshot)}
}

func (c *Cache) SetOrderbook(ctx context.Context, assetID string, ob *domain.OrderbookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[assetID] = ob.DeepCopy()
	return nil
}

// GetOrderbook returns nil, nil on a miss.
func (c *Cache) GetOrderbook(ctx context.Context, assetID string) (*domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ob, ok := c.store[assetID]
	if !ok {
		return nil, nil
	}
	return ob.DeepCopy(), nil
}

func (c *Cache) Invalidate(ctx context.Context, assetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, assetID)
	return nil
}
