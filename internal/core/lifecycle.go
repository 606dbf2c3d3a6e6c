package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

const DefaultOrderRetention = 24 * time.Hour

type expiryKey struct {
	at      time.Time
	seq     uint64
	orderID string
}

func expiryLess(a, b expiryKey) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.seq < b.seq
}

// ExpiryIndex tracks strictly pending orders by submission time.
type ExpiryIndex struct {
	tree *btree.BTreeG[expiryKey]
	keys map[string]expiryKey
	seq  uint64
}

func NewExpiryIndex() *ExpiryIndex {
	return &ExpiryIndex{
		tree: btree.NewG(bookDegree, expiryLess),
		keys: make(map[string]expiryKey),
	}
}

func (x *ExpiryIndex) Track(o *domain.Order) {
	if _, ok := x.keys[o.ID]; ok {
		return
	}
	x.seq++
	k := expiryKey{at: o.CreatedAt, seq: x.seq, orderID: o.ID}
	x.tree.ReplaceOrInsert(k)
	x.keys[o.ID] = k
}

func (x *ExpiryIndex) Forget(id string) {
	k, ok := x.keys[id]
	if !ok {
		return
	}
	x.tree.Delete(k)
	delete(x.keys, id)
}

// Due returns tracked ids submitted strictly before cutoff, oldest first.
func (x *ExpiryIndex) Due(cutoff time.Time) []string {
	var ids []string
	x.tree.AscendLessThan(expiryKey{at: cutoff}, func(k expiryKey) bool {
		ids = append(ids, k.orderID)
		return true
	})
	return ids
}

func (x *ExpiryIndex) Len() int { return x.tree.Len() }

// LifecycleManager cancels pending orders that outlived the retention window.
// Partially filled orders are never expired.
type LifecycleManager struct {
	dir       *Directory
	retention time.Duration
}

func NewLifecycleManager(dir *Directory, retention time.Duration) *LifecycleManager {
	if retention <= 0 {
		retention = DefaultOrderRetention
	}
	return &LifecycleManager{dir: dir, retention: retention}
}

func (l *LifecycleManager) Retention() time.Duration { return l.retention }

// SweepExpired runs one maintenance pass over every market and returns the
// orders it cancelled. A market whose cancellations cannot be persisted is
// left untouched and reported in the returned error.
func (l *LifecycleManager) SweepExpired(ctx context.Context, now time.Time) ([]domain.Order, error) {
	cutoff := now.Add(-l.retention)
	var (
		expired []domain.Order
		errs    []error
	)
	for _, mk := range l.dir.snapshotMarkets() {
		cancelled, err := l.sweepMarket(ctx, mk, cutoff, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		expired = append(expired, cancelled...)
	}
	if n := len(expired); n > 0 {
		l.dir.logger.Info("expired stale orders", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	if len(errs) > 0 {
		return expired, fmt.Errorf("sweep: %w", errors.Join(errs...))
	}
	return expired, nil
}

func (l *LifecycleManager) sweepMarket(ctx context.Context, mk *market, cutoff, now time.Time) ([]domain.Order, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	var due []*domain.Order
	for _, id := range mk.expiry.Due(cutoff) {
		o, ok := mk.book.Get(id)
		if !ok || o.Status != domain.Pending {
			mk.expiry.Forget(id)
			continue
		}
		due = append(due, o)
	}
	if len(due) == 0 {
		return nil, nil
	}

	post := make([]domain.Order, 0, len(due))
	for _, o := range due {
		cp := *o
		cp.Status = domain.Cancelled
		cp.UpdatedAt = now
		post = append(post, cp)
	}
	if l.dir.repo != nil {
		err := withTx(ctx, l.dir.repo, func(tx port.Tx) error {
			for i := range post {
				if err := tx.SaveOrder(ctx, &post[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			l.dir.logger.Error("persist expired orders", zap.String("asset", mk.asset.ID), zap.Error(err))
			return nil, fmt.Errorf("asset %s: %w", mk.asset.ID, err)
		}
	}

	for _, o := range due {
		mk.book.RemoveByID(o.Side, o.ID)
		mk.expiry.Forget(o.ID)
		o.Status = domain.Cancelled
		o.UpdatedAt = now
	}
	l.dir.metrics.Expired(mk.asset.ID, len(due))
	l.dir.afterBookChange(ctx, mk)
	return post, nil
}
