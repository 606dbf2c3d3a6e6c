package core

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

// Restore reloads assets, orders and recent trade prices from the repository.
// Open orders go back into their books; filled and cancelled orders stay
// queryable and keep their ids reserved. Only the last history-cap trades of
// each asset are reloaded into the ledger, so an unbounded ledger starts
// shorter after a restart. It is meant to run once before the directory
// serves traffic.
func (d *Directory) Restore(ctx context.Context) error {
	if d.repo == nil {
		return nil
	}
	assets, err := d.repo.LoadAssets(ctx)
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}

	var restoredOrders, resting int
	var trades []domain.Trade
	for _, a := range assets {
		d.mu.Lock()
		if _, exists := d.markets[a.ID]; exists {
			d.mu.Unlock()
			continue
		}
		mk := d.newMarket(a.Clone())
		d.markets[a.ID] = mk
		d.registry = append(d.registry, mk)
		d.mu.Unlock()

		orders, err := d.repo.LoadOrders(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load orders %s: %w", a.ID, err)
		}
		recent, err := d.repo.LoadRecentTrades(ctx, a.ID, mk.history.Cap())
		if err != nil {
			return fmt.Errorf("load trades %s: %w", a.ID, err)
		}
		sort.SliceStable(orders, func(i, j int) bool {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		})

		mk.mu.Lock()
		for _, o := range orders {
			if !o.Terminal() && o.Quantity.IsPositive() {
				if err := mk.book.Insert(o); err != nil {
					mk.mu.Unlock()
					return fmt.Errorf("restore order %s: %w", o.ID, err)
				}
				if o.Status == domain.Pending {
					mk.expiry.Track(o)
				}
				resting++
			}
			d.mu.Lock()
			d.orders[o.ID] = o
			d.mu.Unlock()
			mk.orders = append(mk.orders, o)
		}
		for _, t := range recent {
			mk.history.Record(t.Timestamp, t.Price)
			trades = append(trades, *t)
		}
		d.afterBookChange(ctx, mk)
		mk.mu.Unlock()
		restoredOrders += len(orders)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
	d.ledger.Append(ctx, trades...)
	d.logger.Info("directory restored",
		zap.Int("assets", len(assets)),
		zap.Int("orders", restoredOrders),
		zap.Int("resting", resting),
		zap.Int("trades", len(trades)))
	return nil
}
