package in_memory

import (
	"context"
	"sync"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

var _ port.EventPublisher = (*Publisher)(nil)

// Publisher keeps published trades in memory.
type Publisher struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) PublishTrades(ctx context.Context, trades []domain.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, trades...)
	return nil
}

func (p *Publisher) Trades() []domain.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Trade(nil), p.trades...)
}
