package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

// Execution is the outcome of crossing a book: the trades it produces and the
// post-trade state of every order and asset they touch. Computing it does not
// mutate the book.
type Execution struct {
	Trades []domain.Trade
	Orders []domain.Order
	Asset  domain.Asset

	fills []fill
}

type fill struct {
	bid, ask *domain.Order
	qty      decimal.Decimal
}

// Matcher is the continuous double auction. Trades always execute at the
// best ask's price, whichever side arrived last.
type Matcher struct {
	clock Clock
	newID func() string
}

func NewMatcher(clock Clock, newID func() string) *Matcher {
	if clock == nil {
		clock = RealClock{}
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Matcher{clock: clock, newID: newID}
}

// Submit inserts o and crosses the book until it is quiescent. persist, when
// set, sees the full execution before anything is applied; an error from it
// pulls o back out and leaves the book, asset and history untouched.
func (m *Matcher) Submit(ob *OrderBook, asset *domain.Asset, history *PriceHistory, o *domain.Order, persist func(Execution) error) ([]domain.Trade, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := ob.Insert(o); err != nil {
		return nil, err
	}
	ex := m.Cross(ob, *asset)
	ex.Orders = mergeOrder(ex.Orders, *o)
	if persist != nil {
		if err := persist(ex); err != nil {
			ob.RemoveByID(o.Side, o.ID)
			return nil, err
		}
	}
	m.Commit(ob, asset, history, ex)
	return ex.Trades, nil
}

func crosses(bid, ask *domain.Order) bool {
	if !bid.HasLimitPrice() || !ask.HasLimitPrice() {
		return false
	}
	return bid.Price.Decimal.GreaterThanOrEqual(ask.Price.Decimal)
}

// Cross walks both sides best first and plans every trade the book would
// produce. Each trade exhausts at least one order, so a book of N orders
// yields at most N trades.
func (m *Matcher) Cross(ob *OrderBook, asset domain.Asset) Execution {
	ex := Execution{Asset: asset.Clone()}
	bestBid, okBid := ob.PeekBest(domain.Buy)
	bestAsk, okAsk := ob.PeekBest(domain.Sell)
	if !okBid || !okAsk || !crosses(bestBid, bestAsk) {
		return ex
	}

	// Only bids at or above the best ask and asks at or below the best bid
	// can ever trade in this pass.
	var bids, asks []*domain.Order
	ob.Walk(domain.Buy, func(o *domain.Order) bool {
		if !crosses(o, bestAsk) {
			return false
		}
		bids = append(bids, o)
		return true
	})
	ob.Walk(domain.Sell, func(o *domain.Order) bool {
		if !crosses(bestBid, o) {
			return false
		}
		asks = append(asks, o)
		return true
	})

	post := make(map[string]*domain.Order)
	state := func(o *domain.Order) *domain.Order {
		if p, ok := post[o.ID]; ok {
			return p
		}
		cp := *o
		post[o.ID] = &cp
		return &cp
	}

	var touched []string
	i, j := 0, 0
	for i < len(bids) && j < len(asks) {
		bid, ask := bids[i], asks[j]
		if !crosses(bid, ask) {
			break
		}
		b, a := state(bid), state(ask)
		touched = appendOnce(touched, b.ID)
		touched = appendOnce(touched, a.ID)

		qty := decimal.Min(b.Quantity, a.Quantity)
		price := ask.Price.Decimal
		now := m.clock.Now()
		ex.Trades = append(ex.Trades, domain.Trade{
			ID:          m.newID(),
			AssetID:     ob.AssetID,
			BuyOrderID:  bid.ID,
			SellOrderID: ask.ID,
			Quantity:    qty,
			Price:       price,
			Timestamp:   now,
		})
		ex.fills = append(ex.fills, fill{bid: bid, ask: ask, qty: qty})

		decrement(b, qty, now)
		decrement(a, qty, now)
		if b.Quantity.IsZero() {
			i++
		}
		if a.Quantity.IsZero() {
			j++
		}

		ex.Asset.Price = price
		ex.Asset.Volume = ex.Asset.Volume.Add(qty)
		ex.Asset.RecomputeMarketCap()
	}

	for _, id := range touched {
		ex.Orders = append(ex.Orders, *post[id])
	}
	return ex
}

// Commit applies an execution produced by Cross on the same, unchanged book.
func (m *Matcher) Commit(ob *OrderBook, asset *domain.Asset, history *PriceHistory, ex Execution) {
	for k, f := range ex.fills {
		tr := ex.Trades[k]
		decrement(f.bid, f.qty, tr.Timestamp)
		decrement(f.ask, f.qty, tr.Timestamp)
		// A filled order is the best of its side by construction.
		if f.bid.Quantity.IsZero() {
			ob.PopBest(domain.Buy)
		}
		if f.ask.Quantity.IsZero() {
			ob.PopBest(domain.Sell)
		}
		asset.Price = tr.Price
		asset.Volume = asset.Volume.Add(tr.Quantity)
		asset.RecomputeMarketCap()
		if history != nil {
			history.Record(tr.Timestamp, tr.Price)
		}
	}
}

func decrement(o *domain.Order, qty decimal.Decimal, now time.Time) {
	o.Quantity = o.Quantity.Sub(qty)
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.UpdatedAt = now
	if o.Quantity.IsZero() {
		o.Status = domain.Filled
	} else {
		o.Status = domain.Partial
	}
}

func appendOnce(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// mergeOrder makes sure the submitted order's own state is part of the
// execution even when it did not trade.
func mergeOrder(orders []domain.Order, o domain.Order) []domain.Order {
	for _, existing := range orders {
		if existing.ID == o.ID {
			return orders
		}
	}
	return append([]domain.Order{o}, orders...)
}
