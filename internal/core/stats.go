package core

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

const topMovers = 5

type moverSample struct {
	asset      domain.Asset
	prev, last domain.PricePoint
	ok         bool
}

// GetMarketStats aggregates every registered asset.
func (d *Directory) GetMarketStats() domain.MarketStats {
	markets := d.snapshotMarkets()
	samples := make([]moverSample, 0, len(markets))
	for _, mk := range markets {
		mk.mu.Lock()
		s := moverSample{asset: mk.asset.Clone()}
		s.prev, s.last, s.ok = mk.history.LastTwo()
		mk.mu.Unlock()
		samples = append(samples, s)
	}
	return computeStats(samples)
}

// computeStats ranks movers by their last two-sample price change. Equal
// changes keep registration order.
func computeStats(samples []moverSample) domain.MarketStats {
	stats := domain.MarketStats{
		TotalMarketCap: decimal.Zero,
		TotalVolume:    decimal.Zero,
		TopGainers:     []domain.Mover{},
		TopLosers:      []domain.Mover{},
	}
	if len(samples) == 0 {
		return stats
	}

	var volatility float64
	movers := make([]domain.Mover, 0, len(samples))
	for _, s := range samples {
		stats.TotalMarketCap = stats.TotalMarketCap.Add(s.asset.MarketCap)
		stats.TotalVolume = stats.TotalVolume.Add(s.asset.Volume)
		volatility += s.asset.Volatility

		m := domain.Mover{AssetID: s.asset.ID, Symbol: s.asset.Symbol, Price: s.asset.Price, Change: decimal.Zero}
		if s.ok {
			m.Change = s.last.Price.Sub(s.prev.Price)
			if s.prev.Price.IsPositive() {
				m.ChangePercent = m.Change.Div(s.prev.Price).Mul(decimal.NewFromInt(100)).InexactFloat64()
			}
		}
		movers = append(movers, m)
	}
	stats.AverageVolatility = volatility / float64(len(samples))

	gainers := append([]domain.Mover(nil), movers...)
	sort.SliceStable(gainers, func(i, j int) bool {
		return gainers[i].Change.GreaterThan(gainers[j].Change)
	})
	losers := append([]domain.Mover(nil), movers...)
	sort.SliceStable(losers, func(i, j int) bool {
		return losers[i].Change.LessThan(losers[j].Change)
	})
	stats.TopGainers = head(gainers, topMovers)
	stats.TopLosers = head(losers, topMovers)
	return stats
}

func head(m []domain.Mover, n int) []domain.Mover {
	if len(m) > n {
		return m[:n]
	}
	return m
}
