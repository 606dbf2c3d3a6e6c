package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

type propRun struct {
	dir      *Directory
	clock    *fakeClock
	original map[string]decimal.Decimal
	prices   map[string]decimal.Decimal
	trades   []domain.Trade
}

func newPropRun(historyCap int) *propRun {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock), WithIDGenerator(seqIDs("p")), WithHistoryCap(historyCap))
	if _, err := d.RegisterAsset(context.Background(), stock("X", "100")); err != nil {
		panic(err)
	}
	return &propRun{
		dir:      d,
		clock:    clock,
		original: make(map[string]decimal.Decimal),
		prices:   make(map[string]decimal.Decimal),
	}
}

func (p *propRun) step(t *rapid.T, i int) *Receipt {
	side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
	price := decimal.NewFromInt(int64(rapid.IntRange(95, 105).Draw(t, "price")))
	qty := decimal.NewFromInt(int64(rapid.IntRange(1, 10).Draw(t, "qty")))
	p.clock.Advance(time.Duration(rapid.IntRange(0, 2).Draw(t, "gap")) * time.Millisecond)

	id := fmt.Sprintf("o%d", i)
	o := limit(id, "X", side, price.String(), qty.String())
	before := p.resting()
	r, err := p.dir.SubmitOrder(context.Background(), o)
	if err != nil {
		t.Fatalf("submit %s: %v", id, err)
	}
	p.original[id] = qty
	p.prices[id] = price
	if len(r.Trades) > before+1 {
		t.Fatalf("%d trades from a book of %d resting orders", len(r.Trades), before+1)
	}
	p.trades = append(p.trades, r.Trades...)
	return r
}

func (p *propRun) resting() int {
	ob, err := p.dir.GetBook(context.Background(), "X")
	if err != nil {
		panic(err)
	}
	return len(ob.Bids) + len(ob.Asks)
}

func checkBookOrdering(t *rapid.T, ob *domain.OrderbookSnapshot) {
	for i := 1; i < len(ob.Bids); i++ {
		prev, cur := ob.Bids[i-1], ob.Bids[i]
		c := prev.Price.Decimal.Cmp(cur.Price.Decimal)
		if c < 0 || (c == 0 && cur.CreatedAt.Before(prev.CreatedAt)) {
			t.Fatalf("bids out of order at %d: %s then %s", i, prev.ID, cur.ID)
		}
	}
	for i := 1; i < len(ob.Asks); i++ {
		prev, cur := ob.Asks[i-1], ob.Asks[i]
		c := prev.Price.Decimal.Cmp(cur.Price.Decimal)
		if c > 0 || (c == 0 && cur.CreatedAt.Before(prev.CreatedAt)) {
			t.Fatalf("asks out of order at %d: %s then %s", i, prev.ID, cur.ID)
		}
	}
	if len(ob.Bids) > 0 && len(ob.Asks) > 0 {
		if !ob.Bids[0].Price.Decimal.LessThan(ob.Asks[0].Price.Decimal) {
			t.Fatalf("book left crossed: bid %s >= ask %s", ob.Bids[0].Price.Decimal, ob.Asks[0].Price.Decimal)
		}
	}
	for _, o := range append(append([]domain.Order{}, ob.Bids...), ob.Asks...) {
		if !o.Quantity.IsPositive() || o.Terminal() {
			t.Fatalf("order %s resting with quantity %s status %s", o.ID, o.Quantity, o.Status)
		}
	}
}

func TestPropertyBookStaysOrderedAndUncrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		run := newPropRun(DefaultHistoryCap)
		n := rapid.IntRange(1, 60).Draw(t, "orders")
		for i := 0; i < n; i++ {
			run.step(t, i)
			ob, err := run.dir.GetBook(context.Background(), "X")
			if err != nil {
				t.Fatal(err)
			}
			checkBookOrdering(t, ob)
		}
	})
}

func TestPropertyTradesAtAskPriceAndConserveQuantity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		run := newPropRun(DefaultHistoryCap)
		n := rapid.IntRange(1, 60).Draw(t, "orders")
		for i := 0; i < n; i++ {
			run.step(t, i)
		}

		filled := make(map[string]decimal.Decimal)
		for _, tr := range run.trades {
			if !tr.Price.Equal(run.prices[tr.SellOrderID]) {
				t.Fatalf("trade %s at %s, ask %s quoted %s", tr.ID, tr.Price, tr.SellOrderID, run.prices[tr.SellOrderID])
			}
			if run.prices[tr.BuyOrderID].LessThan(tr.Price) {
				t.Fatalf("trade %s above bid limit", tr.ID)
			}
			if !tr.Quantity.IsPositive() {
				t.Fatalf("trade %s has quantity %s", tr.ID, tr.Quantity)
			}
			filled[tr.BuyOrderID] = filled[tr.BuyOrderID].Add(tr.Quantity)
			filled[tr.SellOrderID] = filled[tr.SellOrderID].Add(tr.Quantity)
		}

		for id, qty := range run.original {
			o, err := run.dir.GetOrder(id)
			if err != nil {
				t.Fatal(err)
			}
			if !o.FilledQuantity.Equal(filled[id]) {
				t.Fatalf("order %s filled %s, trades say %s", id, o.FilledQuantity, filled[id])
			}
			if !o.FilledQuantity.Add(o.Quantity).Equal(qty) {
				t.Fatalf("order %s: filled %s + remaining %s != %s", id, o.FilledQuantity, o.Quantity, qty)
			}
			switch {
			case o.Quantity.IsZero() && o.Status != domain.Filled,
				o.Quantity.IsPositive() && o.FilledQuantity.IsPositive() && o.Status != domain.Partial,
				o.FilledQuantity.IsZero() && o.Status != domain.Pending:
				t.Fatalf("order %s has status %s with filled %s remaining %s", id, o.Status, o.FilledQuantity, o.Quantity)
			}
		}
	})
}

func TestPropertyHistoryIsBoundedSuffix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "cap")
		run := newPropRun(capacity)
		n := rapid.IntRange(1, 80).Draw(t, "orders")
		for i := 0; i < n; i++ {
			run.step(t, i)
		}

		hist, err := run.dir.GetPriceHistory("X", 0)
		if err != nil {
			t.Fatal(err)
		}
		want := run.trades
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		if len(hist) != len(want) {
			t.Fatalf("history has %d samples, want %d", len(hist), len(want))
		}
		for i := range hist {
			if !hist[i].Price.Equal(want[i].Price) || !hist[i].Timestamp.Equal(want[i].Timestamp) {
				t.Fatalf("sample %d is %s, want %s", i, hist[i].Price, want[i].Price)
			}
		}
	})
}

func TestPropertySweepIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		run := newPropRun(DefaultHistoryCap)
		n := rapid.IntRange(1, 30).Draw(t, "orders")
		for i := 0; i < n; i++ {
			run.step(t, i)
			run.clock.Advance(time.Duration(rapid.IntRange(0, 6).Draw(t, "hours")) * time.Hour)
		}
		now := run.clock.Now().Add(time.Duration(rapid.IntRange(0, 48).Draw(t, "later")) * time.Hour)
		ctx := context.Background()
		if _, err := run.dir.SweepExpired(ctx, now); err != nil {
			t.Fatal(err)
		}
		before := run.dir.Snapshot()
		again, err := run.dir.SweepExpired(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != 0 {
			t.Fatalf("second sweep expired %d orders", len(again))
		}
		after := run.dir.Snapshot()
		if len(before.Orders) != len(after.Orders) {
			t.Fatal("order table changed")
		}
		prev := make(map[string]domain.Order, len(before.Orders))
		for _, o := range before.Orders {
			prev[o.ID] = o
		}
		for _, o := range after.Orders {
			p, ok := prev[o.ID]
			if !ok || p.Status != o.Status || !p.Quantity.Equal(o.Quantity) {
				t.Fatalf("order %s changed on second sweep", o.ID)
			}
		}
		ob, err := run.dir.GetBook(ctx, "X")
		if err != nil {
			t.Fatal(err)
		}
		checkBookOrdering(t, ob)
		for _, o := range append(append([]domain.Order{}, ob.Bids...), ob.Asks...) {
			if o.Status == domain.Pending && o.CreatedAt.Before(now.Add(-DefaultOrderRetention)) {
				t.Fatalf("stale pending order %s survived the sweep", o.ID)
			}
		}
	})
}
