package core

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

// Ledger is the chronological trade record. With retain > 0 it keeps only the
// newest retain trades in memory and hands older ones to the archive.
type Ledger struct {
	mu      sync.RWMutex
	trades  []domain.Trade
	retain  int
	archive port.TradeArchive
	logger  *zap.Logger
}

func NewLedger(retain int, archive port.TradeArchive, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{retain: retain, archive: archive, logger: logger}
}

func (l *Ledger) Append(ctx context.Context, trades ...domain.Trade) {
	if len(trades) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trades...)
	if l.retain <= 0 || len(l.trades) <= l.retain {
		return
	}
	overflow := len(l.trades) - l.retain
	evicted := l.trades[:overflow]
	if l.archive != nil {
		if err := l.archive.Archive(ctx, evicted); err != nil {
			// keep everything in memory rather than lose trades
			l.logger.Warn("archive trades", zap.Int("count", overflow), zap.Error(err))
			return
		}
	}
	kept := make([]domain.Trade, l.retain)
	copy(kept, l.trades[overflow:])
	l.trades = kept
}

// Trades returns the in-memory trades oldest first, optionally for one asset.
func (l *Ledger) Trades(assetID string) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		if assetID == "" || t.AssetID == assetID {
			out = append(out, t)
		}
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Archived reads back trades the ledger evicted.
func (l *Ledger) Archived(ctx context.Context, assetID string) ([]domain.Trade, error) {
	if l.archive == nil {
		return nil, nil
	}
	return l.archive.Load(ctx, assetID)
}
