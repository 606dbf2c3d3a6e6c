package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/in_memory"
	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

var epoch = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limit(id, asset string, side domain.Side, price, qty string) domain.Order {
	return domain.Order{
		ID:       id,
		AssetID:  asset,
		Type:     domain.Limit,
		Side:     side,
		Price:    decimal.NewNullDecimal(dec(price)),
		Quantity: dec(qty),
		TraderID: "trader-" + id,
	}
}

func marketOrder(id, asset string, side domain.Side, qty string) domain.Order {
	return domain.Order{
		ID:       id,
		AssetID:  asset,
		Type:     domain.Market,
		Side:     side,
		Quantity: dec(qty),
		TraderID: "trader-" + id,
	}
}

func stock(id, price string) domain.Asset {
	return domain.Asset{
		ID:         id,
		Symbol:     id,
		Name:       id,
		Type:       domain.Stock,
		Price:      dec(price),
		Volume:     decimal.Zero,
		Volatility: 0.2,
	}
}

type testEnv struct {
	dir   *Directory
	clock *fakeClock
	repo  *in_memory.MemoryRepo
	cache *in_memory.Cache
}

func newEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		clock: newFakeClock(),
		repo:  in_memory.NewMemoryRepo(),
		cache: in_memory.NewCache(),
	}
	base := []Option{
		WithClock(env.clock),
		WithIDGenerator(seqIDs("id")),
		WithRepository(env.repo),
		WithCache(env.cache),
		WithLogger(zaptest.NewLogger(t)),
	}
	env.dir = NewDirectory(append(base, opts...)...)
	return env
}

func (e *testEnv) register(t *testing.T, assets ...domain.Asset) {
	t.Helper()
	for _, a := range assets {
		_, err := e.dir.RegisterAsset(context.Background(), a)
		require.NoError(t, err)
	}
}

func (e *testEnv) submit(t *testing.T, o domain.Order) *Receipt {
	t.Helper()
	r, err := e.dir.SubmitOrder(context.Background(), o)
	require.NoError(t, err)
	return r
}

func (e *testEnv) book(t *testing.T, asset string) *domain.OrderbookSnapshot {
	t.Helper()
	ob, err := e.dir.GetBook(context.Background(), asset)
	require.NoError(t, err)
	return ob
}

var errInjected = errors.New("injected storage failure")

// failingRepo fails every transactional trade write while fail is set.
type failingRepo struct {
	*in_memory.MemoryRepo
	mu   sync.Mutex
	fail bool
}

func (r *failingRepo) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *failingRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := r.MemoryRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return &failingTx{Tx: tx, fail: r.fail}, nil
}

type failingTx struct {
	port.Tx
	fail bool
}

func (tx *failingTx) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if tx.fail {
		return errInjected
	}
	return tx.Tx.SaveTrade(ctx, t)
}

func (tx *failingTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	if tx.fail && o.Status == domain.Cancelled {
		return errInjected
	}
	return tx.Tx.SaveOrder(ctx, o)
}

func ids(orders []domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
