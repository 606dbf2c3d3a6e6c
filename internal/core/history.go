package core

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

const DefaultHistoryCap = 1000

// PriceHistory is an append-only series of trade prices that evicts its
// oldest sample once it holds more than cap samples.
type PriceHistory struct {
	cap    int
	points []domain.PricePoint
}

func NewPriceHistory(capacity int) *PriceHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &PriceHistory{cap: capacity}
}

func (h *PriceHistory) Record(ts time.Time, price decimal.Decimal) {
	p := domain.PricePoint{Timestamp: ts, Price: price}
	if len(h.points) < h.cap {
		h.points = append(h.points, p)
		return
	}
	copy(h.points, h.points[1:])
	h.points[len(h.points)-1] = p
}

// Recent returns the last n samples oldest first; n <= 0 returns them all.
func (h *PriceHistory) Recent(n int) []domain.PricePoint {
	if n <= 0 || n > len(h.points) {
		n = len(h.points)
	}
	out := make([]domain.PricePoint, n)
	copy(out, h.points[len(h.points)-n:])
	return out
}

func (h *PriceHistory) Len() int { return len(h.points) }

func (h *PriceHistory) Cap() int { return h.cap }

// LastTwo returns the two most recent samples.
func (h *PriceHistory) LastTwo() (prev, last domain.PricePoint, ok bool) {
	n := len(h.points)
	if n < 2 {
		return prev, last, false
	}
	return h.points[n-2], h.points[n-1], true
}
