package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

func TestRestoreRebuildsMarkets(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.register(t, stock("A", "100"), stock("B", "20"))

	env.submit(t, limit("a-bid1", "A", domain.Buy, "99", "5"))
	env.clock.Advance(time.Second)
	env.submit(t, limit("a-bid2", "A", domain.Buy, "99", "5"))
	env.clock.Advance(time.Second)
	env.submit(t, limit("a-ask", "A", domain.Sell, "98", "7"))
	env.clock.Advance(time.Second)
	env.submit(t, limit("b-ask", "B", domain.Sell, "21", "1"))

	restored := NewDirectory(
		WithRepository(env.repo),
		WithClock(env.clock),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, restored.Restore(ctx))

	var assetIDs []string
	for _, a := range restored.ListAssets() {
		assetIDs = append(assetIDs, a.ID)
	}
	assert.Equal(t, []string{"A", "B"}, assetIDs)

	a, err := restored.GetAsset("A")
	require.NoError(t, err)
	assert.True(t, a.Price.Equal(dec("98")))
	assert.True(t, a.Volume.Equal(dec("7")))

	ob, err := restored.GetBook(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"a-bid2"}, ids(ob.Bids))
	assert.True(t, ob.Bids[0].Quantity.Equal(dec("3")))
	assert.Equal(t, domain.Partial, ob.Bids[0].Status)

	hist, err := restored.GetPriceHistory("A", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	trades, err := restored.GetTrades("")
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	// restored resting orders still expire and still deduplicate
	r, err := restored.SubmitOrder(ctx, limit("b-ask", "B", domain.Sell, "21", "1"))
	require.NoError(t, err)
	assert.True(t, r.Duplicate)
	expired, err := restored.SweepExpired(ctx, env.clock.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"b-ask"}, ids(expired))
}

func TestRestoreKeepsTerminalOrders(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.register(t, stock("A", "100"))
	env.submit(t, limit("a1", "A", domain.Sell, "100", "10"))
	env.clock.Advance(time.Second)
	env.submit(t, limit("b1", "A", domain.Buy, "100", "10"))
	env.clock.Advance(time.Second)
	env.submit(t, limit("c1", "A", domain.Buy, "90", "1"))
	ok, err := env.dir.CancelOrder(ctx, "c1", "trader-c1")
	require.NoError(t, err)
	require.True(t, ok)

	restored := NewDirectory(WithRepository(env.repo), WithClock(env.clock))
	require.NoError(t, restored.Restore(ctx))

	b1, err := restored.GetOrder("b1")
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, b1.Status)
	c1, err := restored.GetOrder("c1")
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, c1.Status)

	ob, err := restored.GetBook(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, ob.Bids)
	assert.Empty(t, ob.Asks)

	r, err := restored.SubmitOrder(ctx, limit("b1", "A", domain.Buy, "100", "10"))
	require.NoError(t, err)
	assert.True(t, r.Duplicate)
	assert.Equal(t, domain.Filled, r.Status)
	assert.True(t, r.Remaining.IsZero())

	stored, found := env.repo.GetOrder("b1")
	require.True(t, found)
	assert.Equal(t, domain.Filled, stored.Status)
	assert.True(t, stored.FilledQuantity.Equal(dec("10")))
	assert.Len(t, restored.Snapshot().Orders, 3)
}

func TestRestoreWithoutRepository(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Restore(context.Background()))
	assert.Empty(t, d.ListAssets())
}
