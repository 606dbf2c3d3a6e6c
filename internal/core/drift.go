package core

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

const (
	minDriftPrice = 0.01
	maxBias       = 0.05
)

var minPrice = decimal.NewFromFloat(minDriftPrice)

// Drifter nudges asset prices between trades with a volatility-scaled shock
// and a small fundamentals bias. Its random source is injected so runs are
// reproducible.
type Drifter struct {
	dir  *Directory
	step float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDrifter builds a drifter whose ticks each cover step of a trading day.
func NewDrifter(dir *Directory, src rand.Source, step float64) *Drifter {
	if step <= 0 {
		step = 1
	}
	return &Drifter{dir: dir, step: step, rng: rand.New(src)}
}

// Tick moves every registered asset once.
func (d *Drifter) Tick(ctx context.Context) error {
	var errs []error
	for _, a := range d.dir.ListAssets() {
		if _, err := d.dir.updatePrice(ctx, a.ID, d.next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Drifter) next(a domain.Asset) decimal.Decimal {
	d.mu.Lock()
	z := d.rng.NormFloat64()
	d.mu.Unlock()

	shock := z * a.Volatility * math.Sqrt(d.step)
	bias := fundamentalsBias(a.Fundamentals) * d.step
	p := a.Price.InexactFloat64() * (1 + bias + shock)
	if math.IsInf(p, 0) {
		return a.Price
	}
	if p < minDriftPrice || math.IsNaN(p) {
		return minPrice
	}
	return decimal.NewFromFloat(p).Round(4)
}

// fundamentalsBias is a per-day drift in [-maxBias, maxBias]: growth and
// dividends pull up, leverage and rich valuations pull down.
func fundamentalsBias(f *domain.Fundamentals) float64 {
	if f == nil {
		return 0
	}
	bias := 0.01*f.EarningsGrowth + 0.1*f.DividendYield
	if f.DebtToEquity > 1 {
		bias -= 0.005 * (f.DebtToEquity - 1)
	}
	if f.PERatio > 0 {
		bias -= 0.0005 * (f.PERatio - 15)
	}
	return math.Max(-maxBias, math.Min(maxBias, bias))
}
