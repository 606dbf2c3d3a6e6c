package core

import (
	"encoding/json"
	"sort"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

// Snapshot dumps assets, orders, trades, price histories and stats. Each
// asset is captured atomically; assets are captured one after another.
func (d *Directory) Snapshot() domain.ExportDocument {
	markets := d.snapshotMarkets()
	doc := domain.ExportDocument{
		GeneratedAt:  d.clock.Now(),
		Assets:       make([]domain.Asset, 0, len(markets)),
		Orders:       []domain.Order{},
		PriceHistory: make(map[string][]domain.PricePoint, len(markets)),
	}
	samples := make([]moverSample, 0, len(markets))
	for _, mk := range markets {
		mk.mu.Lock()
		a := mk.asset.Clone()
		doc.Assets = append(doc.Assets, a)
		for _, o := range mk.orders {
			doc.Orders = append(doc.Orders, *o)
		}
		hist := mk.history.Recent(0)
		doc.PriceHistory[a.ID] = hist
		s := moverSample{asset: a}
		s.prev, s.last, s.ok = mk.history.LastTwo()
		mk.mu.Unlock()
		samples = append(samples, s)
	}
	sort.SliceStable(doc.Orders, func(i, j int) bool {
		return doc.Orders[i].CreatedAt.Before(doc.Orders[j].CreatedAt)
	})
	doc.Trades = d.ledger.Trades("")
	doc.Stats = computeStats(samples)
	return doc
}

func (d *Directory) ExportSnapshot() ([]byte, error) {
	return json.MarshalIndent(d.Snapshot(), "", "  ")
}
