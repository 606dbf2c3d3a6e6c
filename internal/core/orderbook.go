package core

import (
	"fmt"
	"time"

	"github.com/google/btree"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

const bookDegree = 32

type bookEntry struct {
	order *domain.Order
	seq   uint64
}

// priorityLess orders a side best first. Bids by descending price, asks by
// ascending price, FIFO within a price. Orders without a limit price sort
// behind every priced order.
func priorityLess(side domain.Side) btree.LessFunc[bookEntry] {
	return func(a, b bookEntry) bool {
		ap, bp := a.order.Price, b.order.Price
		if ap.Valid != bp.Valid {
			return ap.Valid
		}
		if ap.Valid {
			if c := ap.Decimal.Cmp(bp.Decimal); c != 0 {
				if side == domain.Buy {
					return c > 0
				}
				return c < 0
			}
		}
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.Before(b.order.CreatedAt)
		}
		return a.seq < b.seq
	}
}

type bookSide struct {
	tree  *btree.BTreeG[bookEntry]
	index map[string]bookEntry
}

func newBookSide(side domain.Side) *bookSide {
	return &bookSide{
		tree:  btree.NewG(bookDegree, priorityLess(side)),
		index: make(map[string]bookEntry),
	}
}

// OrderBook holds the resting orders of one asset. It is not safe for
// concurrent use; the owning market serializes access.
type OrderBook struct {
	AssetID string
	bids    *bookSide
	asks    *bookSide
	seq     uint64
}

func NewOrderBook(assetID string) *OrderBook {
	return &OrderBook{
		AssetID: assetID,
		bids:    newBookSide(domain.Buy),
		asks:    newBookSide(domain.Sell),
	}
}

func (ob *OrderBook) side(s domain.Side) *bookSide {
	if s == domain.Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert places o behind every order of equal or better priority.
func (ob *OrderBook) Insert(o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", domain.ErrInvalidOrder)
	}
	if o.AssetID != ob.AssetID {
		return fmt.Errorf("%w: order for %q routed to book %q", domain.ErrInvalidOrder, o.AssetID, ob.AssetID)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0", domain.ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", domain.ErrInvalidOrder, o.Side)
	}
	if _, ok := ob.Get(o.ID); ok {
		return fmt.Errorf("%w: order %s already resting", domain.ErrInvalidOrder, o.ID)
	}
	ob.seq++
	e := bookEntry{order: o, seq: ob.seq}
	s := ob.side(o.Side)
	s.tree.ReplaceOrInsert(e)
	s.index[o.ID] = e
	return nil
}

// RemoveByID drops a resting order. Absent ids are a no-op.
func (ob *OrderBook) RemoveByID(side domain.Side, id string) (*domain.Order, bool) {
	s := ob.side(side)
	e, ok := s.index[id]
	if !ok {
		return nil, false
	}
	s.tree.Delete(e)
	delete(s.index, id)
	return e.order, true
}

func (ob *OrderBook) PeekBest(side domain.Side) (*domain.Order, bool) {
	e, ok := ob.side(side).tree.Min()
	if !ok {
		return nil, false
	}
	return e.order, true
}

func (ob *OrderBook) PopBest(side domain.Side) (*domain.Order, bool) {
	s := ob.side(side)
	e, ok := s.tree.DeleteMin()
	if !ok {
		return nil, false
	}
	delete(s.index, e.order.ID)
	return e.order, true
}

func (ob *OrderBook) Get(id string) (*domain.Order, bool) {
	if e, ok := ob.bids.index[id]; ok {
		return e.order, true
	}
	if e, ok := ob.asks.index[id]; ok {
		return e.order, true
	}
	return nil, false
}

func (ob *OrderBook) Len(side domain.Side) int {
	return ob.side(side).tree.Len()
}

// Walk visits a side in priority order until fn returns false.
func (ob *OrderBook) Walk(side domain.Side, fn func(o *domain.Order) bool) {
	ob.side(side).tree.Ascend(func(e bookEntry) bool {
		return fn(e.order)
	})
}

// Snapshot copies both sides in priority order.
func (ob *OrderBook) Snapshot(ts time.Time) *domain.OrderbookSnapshot {
	snap := &domain.OrderbookSnapshot{
		AssetID:   ob.AssetID,
		Bids:      make([]domain.Order, 0, ob.bids.tree.Len()),
		Asks:      make([]domain.Order, 0, ob.asks.tree.Len()),
		Timestamp: ts,
	}
	ob.Walk(domain.Buy, func(o *domain.Order) bool {
		snap.Bids = append(snap.Bids, *o)
		return true
	})
	ob.Walk(domain.Sell, func(o *domain.Order) bool {
		snap.Asks = append(snap.Asks, *o)
		return true
	})
	return snap
}
