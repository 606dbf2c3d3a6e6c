package in_memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

var _ port.Repository = (*MemoryRepo)(nil)

var errTxDone = errors.New("transaction already finished")

type MemoryRepo struct {
	mu         sync.Mutex
	assets     map[string]*domain.Asset
	assetOrder []string
	orders     map[string]*domain.Order
	trades     []*domain.Trade
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		assets: make(map[string]*domain.Asset),
		orders: make(map[string]*domain.Order),
	}
}

func (r *MemoryRepo) SaveAsset(ctx context.Context, a *domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveAsset(a)
	return nil
}

func (r *MemoryRepo) saveAsset(a *domain.Asset) {
	if _, ok := r.assets[a.ID]; !ok {
		r.assetOrder = append(r.assetOrder, a.ID)
	}
	cp := a.Clone()
	r.assets[a.ID] = &cp
}

func (r *MemoryRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveOrder(o)
	return nil
}

// saveOrder never overwrites a filled or cancelled order.
func (r *MemoryRepo) saveOrder(o *domain.Order) {
	if prev, ok := r.orders[o.ID]; ok && prev.Terminal() {
		return
	}
	cp := *o
	r.orders[o.ID] = &cp
}

func (r *MemoryRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.trades = append(r.trades, &cp)
	return nil
}

func (r *MemoryRepo) LoadAssets(ctx context.Context) ([]*domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*domain.Asset, 0, len(r.assetOrder))
	for _, id := range r.assetOrder {
		cp := r.assets[id].Clone()
		res = append(res, &cp)
	}
	return res, nil
}

// LoadOrders returns every order of an asset oldest first.
func (r *MemoryRepo) LoadOrders(ctx context.Context, assetID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Order
	for _, o := range r.orders {
		if o.AssetID != assetID {
			continue
		}
		cp := *o
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// LoadRecentTrades returns the newest limit trades of an asset oldest first.
func (r *MemoryRepo) LoadRecentTrades(ctx context.Context, assetID string, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Trade
	for _, t := range r.trades {
		if t.AssetID == assetID {
			cp := *t
			res = append(res, &cp)
		}
	}
	if limit > 0 && len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}

func (r *MemoryRepo) GetOrder(id string) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

func (r *MemoryRepo) TradeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}

func (r *MemoryRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	return &memoryTx{repo: r}, nil
}

// memoryTx buffers writes and applies them together on Commit.
type memoryTx struct {
	repo *MemoryRepo
	ops  []func(*MemoryRepo)
	done bool
}

func (tx *memoryTx) SaveAsset(ctx context.Context, a *domain.Asset) error {
	if tx.done {
		return errTxDone
	}
	cp := a.Clone()
	tx.ops = append(tx.ops, func(r *MemoryRepo) { r.saveAsset(&cp) })
	return nil
}

func (tx *memoryTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	if tx.done {
		return errTxDone
	}
	cp := *o
	tx.ops = append(tx.ops, func(r *MemoryRepo) { r.saveOrder(&cp) })
	return nil
}

func (tx *memoryTx) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if tx.done {
		return errTxDone
	}
	cp := *t
	tx.ops = append(tx.ops, func(r *MemoryRepo) { r.trades = append(r.trades, &cp) })
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, op := range tx.ops {
		op(tx.repo)
	}
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	tx.done = true
	tx.ops = nil
	return nil
}
