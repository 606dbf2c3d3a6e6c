package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/in_memory"
	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

func TestMatchingScenarioWalkthrough(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	// 1. bid rests, nothing to cross
	r := env.submit(t, limit("bid", "X", domain.Buy, "100", "10"))
	assert.Empty(t, r.Trades)
	assert.Equal(t, domain.Pending, r.Status)
	ob := env.book(t, "X")
	require.Len(t, ob.Bids, 1)
	assert.Empty(t, ob.Asks)
	assert.True(t, ob.Bids[0].Quantity.Equal(dec("10")))

	// 2. crossing ask trades at its own price
	env.clock.Advance(time.Second)
	r = env.submit(t, limit("ask1", "X", domain.Sell, "90", "4"))
	require.Len(t, r.Trades, 1)
	tr := r.Trades[0]
	assert.True(t, tr.Quantity.Equal(dec("4")))
	assert.True(t, tr.Price.Equal(dec("90")))
	assert.Equal(t, "bid", tr.BuyOrderID)
	assert.Equal(t, "ask1", tr.SellOrderID)
	assert.Equal(t, domain.Filled, r.Status)

	bid, err := env.dir.GetOrder("bid")
	require.NoError(t, err)
	assert.Equal(t, domain.Partial, bid.Status)
	assert.True(t, bid.Quantity.Equal(dec("6")))
	assert.True(t, bid.FilledQuantity.Equal(dec("4")))

	ob = env.book(t, "X")
	require.Len(t, ob.Bids, 1)
	assert.Empty(t, ob.Asks)

	a, err := env.dir.GetAsset("X")
	require.NoError(t, err)
	assert.True(t, a.Price.Equal(dec("90")))
	assert.True(t, a.Volume.Equal(dec("4")))
	assert.True(t, a.MarketCap.Equal(dec("360")))

	// 3. second ask clears the book
	env.clock.Advance(time.Second)
	r = env.submit(t, limit("ask2", "X", domain.Sell, "95", "6"))
	require.Len(t, r.Trades, 1)
	assert.True(t, r.Trades[0].Price.Equal(dec("95")))
	assert.True(t, r.Trades[0].Quantity.Equal(dec("6")))

	ob = env.book(t, "X")
	assert.Empty(t, ob.Bids)
	assert.Empty(t, ob.Asks)
	bid, err = env.dir.GetOrder("bid")
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, bid.Status)

	hist, err := env.dir.GetPriceHistory("X", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Price.Equal(dec("90")))
	assert.True(t, hist[1].Price.Equal(dec("95")))

	a, err = env.dir.GetAsset("X")
	require.NoError(t, err)
	assert.True(t, a.Volume.Equal(dec("10")))
	assert.True(t, a.MarketCap.Equal(dec("950")))
}

func TestMatchingPriceIsAlwaysAskPrice(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	env.submit(t, limit("ask", "X", domain.Sell, "98", "5"))
	r := env.submit(t, limit("bid", "X", domain.Buy, "105", "5"))
	require.Len(t, r.Trades, 1)
	assert.True(t, r.Trades[0].Price.Equal(dec("98")), "aggressing bid pays the resting ask")
}

func TestMatchingFIFOAtEqualPrice(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	env.clock.Advance(time.Second)
	env.submit(t, limit("t1", "X", domain.Buy, "100", "3"))
	env.clock.Advance(time.Second)
	env.submit(t, limit("t2", "X", domain.Buy, "100", "3"))
	env.clock.Advance(time.Second)
	r := env.submit(t, limit("ask", "X", domain.Sell, "100", "6"))

	require.Len(t, r.Trades, 2)
	assert.Equal(t, "t1", r.Trades[0].BuyOrderID)
	assert.Equal(t, "t2", r.Trades[1].BuyOrderID)
	assert.Empty(t, env.book(t, "X").Bids)
}

func TestMatchingWalksSeveralLevels(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	env.submit(t, limit("a1", "X", domain.Sell, "101", "2"))
	env.submit(t, limit("a2", "X", domain.Sell, "102", "2"))
	env.submit(t, limit("a3", "X", domain.Sell, "110", "2"))
	r := env.submit(t, limit("bid", "X", domain.Buy, "105", "5"))

	require.Len(t, r.Trades, 2)
	assert.True(t, r.Trades[0].Price.Equal(dec("101")))
	assert.True(t, r.Trades[1].Price.Equal(dec("102")))
	assert.Equal(t, domain.Partial, r.Status)
	assert.True(t, r.Remaining.Equal(dec("1")))

	ob := env.book(t, "X")
	assert.Equal(t, []string{"bid"}, ids(ob.Bids))
	assert.Equal(t, []string{"a3"}, ids(ob.Asks))
}

func TestMarketOrdersNeverCross(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	env.submit(t, marketOrder("mkt", "X", domain.Buy, "5"))
	r := env.submit(t, limit("ask", "X", domain.Sell, "1", "5"))
	assert.Empty(t, r.Trades)

	stop := domain.Order{ID: "stop", AssetID: "X", Type: domain.Stop, Side: domain.Sell, Quantity: dec("1")}
	r = env.submit(t, stop)
	assert.Empty(t, r.Trades)

	ob := env.book(t, "X")
	assert.Equal(t, []string{"mkt"}, ids(ob.Bids))
	assert.Equal(t, []string{"ask", "stop"}, ids(ob.Asks))
}

func TestSubmitRejectsInvalidOrders(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	cases := map[string]domain.Order{
		"zero quantity":     limit("z", "X", domain.Buy, "10", "0"),
		"negative quantity": limit("n", "X", domain.Buy, "10", "-1"),
		"negative price":    limit("p", "X", domain.Buy, "-10", "1"),
		"limit sans price":  {ID: "l", AssetID: "X", Type: domain.Limit, Side: domain.Buy, Quantity: dec("1")},
		"bad type":          {ID: "b", AssetID: "X", Type: domain.OrderType("ICEBERG"), Side: domain.Buy, Quantity: dec("1")},
	}
	for name, o := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.dir.SubmitOrder(context.Background(), o)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
		})
	}
	ob := env.book(t, "X")
	assert.Empty(t, ob.Bids)
}

func TestSubmitUnknownAssetFailsFast(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	_, err := env.dir.SubmitOrder(context.Background(), limit("o", "NOPE", domain.Buy, "10", "1"))
	require.ErrorIs(t, err, domain.ErrAssetNotFound)
	_, err = env.dir.GetOrder("o")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = env.dir.GetBook(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestHistoryCapAfterManyTrades(t *testing.T) {
	env := newEnv(t)
	env.register(t, stock("X", "100"))

	const n = DefaultHistoryCap + 1
	for i := 0; i < n; i++ {
		env.clock.Advance(time.Millisecond)
		price := decimal.NewFromInt(int64(1 + i))
		env.submit(t, limit(fmt.Sprintf("a%d", i), "X", domain.Sell, price.String(), "1"))
		r := env.submit(t, limit(fmt.Sprintf("b%d", i), "X", domain.Buy, price.String(), "1"))
		require.Len(t, r.Trades, 1)
	}

	hist, err := env.dir.GetPriceHistory("X", 0)
	require.NoError(t, err)
	require.Len(t, hist, DefaultHistoryCap)
	assert.True(t, hist[0].Price.Equal(decimal.NewFromInt(2)))
	assert.True(t, hist[len(hist)-1].Price.Equal(decimal.NewFromInt(n)))

	last3, err := env.dir.GetPriceHistory("X", 3)
	require.NoError(t, err)
	require.Len(t, last3, 3)
	assert.True(t, last3[2].Price.Equal(decimal.NewFromInt(n)))
}

func TestCrossDoesNotMutateBook(t *testing.T) {
	ob := NewOrderBook("X")
	require.NoError(t, ob.Insert(resting(limit("b", "X", domain.Buy, "100", "5"), epoch)))
	require.NoError(t, ob.Insert(resting(limit("a", "X", domain.Sell, "99", "3"), epoch)))
	m := NewMatcher(newFakeClock(), seqIDs("t"))

	ex := m.Cross(ob, stock("X", "100"))
	require.Len(t, ex.Trades, 1)
	assert.Len(t, ex.Orders, 2)

	b, _ := ob.Get("b")
	a, _ := ob.Get("a")
	assert.True(t, b.Quantity.Equal(dec("5")))
	assert.True(t, a.Quantity.Equal(dec("3")))
	assert.Equal(t, domain.Pending, a.Status)

	asset := stock("X", "100")
	hist := NewPriceHistory(10)
	m.Commit(ob, &asset, hist, ex)
	assert.True(t, b.Quantity.Equal(dec("2")))
	assert.Equal(t, domain.Partial, b.Status)
	assert.Equal(t, domain.Filled, a.Status)
	assert.Equal(t, 0, ob.Len(domain.Sell))
	assert.True(t, asset.Price.Equal(dec("99")))
	assert.Equal(t, 1, hist.Len())
}

func TestPersistenceFailureLeavesNoEffect(t *testing.T) {
	repo := &failingRepo{MemoryRepo: in_memory.NewMemoryRepo()}
	env := newEnv(t, WithRepository(repo))
	env.register(t, stock("X", "100"))
	env.submit(t, limit("ask", "X", domain.Sell, "100", "5"))

	repo.setFail(true)
	_, err := env.dir.SubmitOrder(context.Background(), limit("bid", "X", domain.Buy, "100", "5"))
	require.ErrorIs(t, err, errInjected)

	ob := env.book(t, "X")
	assert.Empty(t, ob.Bids)
	require.Len(t, ob.Asks, 1)
	assert.True(t, ob.Asks[0].Quantity.Equal(dec("5")))
	assert.Equal(t, domain.Pending, ob.Asks[0].Status)

	a, err := env.dir.GetAsset("X")
	require.NoError(t, err)
	assert.True(t, a.Volume.IsZero())
	hist, err := env.dir.GetPriceHistory("X", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
	trades, err := env.dir.GetTrades("X")
	require.NoError(t, err)
	assert.Empty(t, trades)
	_, err = env.dir.GetOrder("bid")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	// the same id can be retried once storage recovers
	repo.setFail(false)
	r := env.submit(t, limit("bid", "X", domain.Buy, "100", "5"))
	require.Len(t, r.Trades, 1)
	assert.Equal(t, 1, repo.TradeCount())
}
