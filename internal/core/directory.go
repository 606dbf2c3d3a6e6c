package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/metrics"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

// market is everything owned by one asset. mu serializes every mutation of
// the asset, its book, history and expiry index.
type market struct {
	mu      sync.Mutex
	asset   domain.Asset
	book    *OrderBook
	history *PriceHistory
	expiry  *ExpiryIndex
	orders  []*domain.Order
}

// Receipt acknowledges an accepted order.
type Receipt struct {
	OrderID   string
	Status    domain.OrderStatus
	Remaining decimal.Decimal
	Trades    []domain.Trade
	Duplicate bool
}

type Option func(*Directory)

func WithRepository(r port.Repository) Option { return func(d *Directory) { d.repo = r } }
func WithCache(c port.Cache) Option           { return func(d *Directory) { d.cache = c } }
func WithPublisher(p port.EventPublisher) Option {
	return func(d *Directory) { d.publisher = p }
}
func WithArchive(a port.TradeArchive) Option  { return func(d *Directory) { d.archive = a } }
func WithMetrics(m *metrics.Metrics) Option   { return func(d *Directory) { d.metrics = m } }
func WithLogger(l *zap.Logger) Option         { return func(d *Directory) { d.logger = l } }
func WithClock(c Clock) Option                { return func(d *Directory) { d.clock = c } }
func WithIDGenerator(f func() string) Option  { return func(d *Directory) { d.newID = f } }
func WithHistoryCap(n int) Option             { return func(d *Directory) { d.historyCap = n } }
func WithTradeRetention(n int) Option         { return func(d *Directory) { d.tradeRetention = n } }
func WithOrderRetention(r time.Duration) Option {
	return func(d *Directory) { d.orderRetention = r }
}

// Directory maps asset ids to their markets and is the entry point for every
// operation. Operations on one asset run one at a time; different assets
// proceed in parallel.
type Directory struct {
	mu       sync.RWMutex
	markets  map[string]*market
	registry []*market
	orders   map[string]*domain.Order

	matcher   *Matcher
	lifecycle *LifecycleManager
	ledger    *Ledger

	repo      port.Repository
	cache     port.Cache
	publisher port.EventPublisher
	archive   port.TradeArchive
	metrics   *metrics.Metrics
	logger    *zap.Logger
	clock     Clock
	newID     func() string

	historyCap     int
	tradeRetention int
	orderRetention time.Duration
}

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		markets:    make(map[string]*market),
		orders:     make(map[string]*domain.Order),
		clock:      RealClock{},
		newID:      uuid.NewString,
		historyCap: DefaultHistoryCap,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.matcher = NewMatcher(d.clock, d.newID)
	d.lifecycle = NewLifecycleManager(d, d.orderRetention)
	d.ledger = NewLedger(d.tradeRetention, d.archive, d.logger)
	return d
}

func (d *Directory) Lifecycle() *LifecycleManager { return d.lifecycle }

func (d *Directory) newMarket(a domain.Asset) *market {
	return &market{
		asset:   a,
		book:    NewOrderBook(a.ID),
		history: NewPriceHistory(d.historyCap),
		expiry:  NewExpiryIndex(),
	}
}

func (d *Directory) market(assetID string) (*market, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mk, ok := d.markets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, assetID)
	}
	return mk, nil
}

func (d *Directory) snapshotMarkets() []*market {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*market, len(d.registry))
	copy(out, d.registry)
	return out
}

// RegisterAsset allocates an empty book and history for a. Re-registering an
// id is rejected with ErrAssetExists.
func (d *Directory) RegisterAsset(ctx context.Context, a domain.Asset) (domain.Asset, error) {
	if err := a.Validate(); err != nil {
		return domain.Asset{}, err
	}
	a = a.Clone()
	if a.Symbol == "" {
		a.Symbol = a.ID
	}
	if a.Type == "" {
		a.Type = domain.Stock
	}
	a.RecomputeMarketCap()

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.markets[a.ID]; ok {
		return domain.Asset{}, fmt.Errorf("%w: %s", domain.ErrAssetExists, a.ID)
	}
	if d.repo != nil {
		if err := d.repo.SaveAsset(ctx, &a); err != nil {
			return domain.Asset{}, fmt.Errorf("save asset %s: %w", a.ID, err)
		}
	}
	mk := d.newMarket(a)
	d.markets[a.ID] = mk
	d.registry = append(d.registry, mk)
	d.logger.Info("asset registered", zap.String("asset", a.ID), zap.String("symbol", a.Symbol), zap.String("price", a.Price.String()))
	return a.Clone(), nil
}

func (d *Directory) GetAsset(assetID string) (domain.Asset, error) {
	mk, err := d.market(assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.asset.Clone(), nil
}

// ListAssets returns every asset in registration order.
func (d *Directory) ListAssets() []domain.Asset {
	markets := d.snapshotMarkets()
	out := make([]domain.Asset, 0, len(markets))
	for _, mk := range markets {
		mk.mu.Lock()
		out = append(out, mk.asset.Clone())
		mk.mu.Unlock()
	}
	return out
}

// SubmitOrder validates o, rests it in its asset's book and crosses the book.
// A caller-supplied id that was already accepted is acknowledged without
// matching again.
func (d *Directory) SubmitOrder(ctx context.Context, o domain.Order) (*Receipt, error) {
	o.Status = domain.Pending
	o.FilledQuantity = decimal.Zero
	if err := o.Validate(); err != nil {
		d.reject(o, err)
		return nil, err
	}
	mk, err := d.market(o.AssetID)
	if err != nil {
		d.reject(o, err)
		return nil, err
	}

	mk.mu.Lock()
	receipt, err := d.submitLocked(ctx, mk, &o)
	mk.mu.Unlock()
	if err != nil {
		d.reject(o, err)
		return nil, err
	}
	if receipt.Duplicate {
		// the stored order may live in another asset's market
		prev, err := d.GetOrder(receipt.OrderID)
		if err != nil {
			return nil, err
		}
		receipt.Status = prev.Status
		receipt.Remaining = prev.Quantity
		return receipt, nil
	}
	d.publish(ctx, receipt.Trades)
	return receipt, nil
}

func (d *Directory) submitLocked(ctx context.Context, mk *market, o *domain.Order) (*Receipt, error) {
	now := d.clock.Now()
	if o.ID == "" {
		o.ID = d.newID()
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	d.mu.Lock()
	if _, exists := d.orders[o.ID]; exists {
		d.mu.Unlock()
		return &Receipt{OrderID: o.ID, Duplicate: true}, nil
	}
	d.orders[o.ID] = o
	d.mu.Unlock()

	trades, err := d.matcher.Submit(mk.book, &mk.asset, mk.history, o, d.persistExecution(ctx))
	if err != nil {
		d.mu.Lock()
		delete(d.orders, o.ID)
		d.mu.Unlock()
		return nil, err
	}

	mk.orders = append(mk.orders, o)
	if o.Status == domain.Pending {
		mk.expiry.Track(o)
	}
	for _, t := range trades {
		mk.expiry.Forget(t.BuyOrderID)
		mk.expiry.Forget(t.SellOrderID)
		d.metrics.TradeExecuted(t.AssetID, t.Quantity)
		d.logger.Debug("trade executed",
			zap.String("asset", t.AssetID),
			zap.String("trade", t.ID),
			zap.String("price", t.Price.String()),
			zap.String("quantity", t.Quantity.String()))
	}
	d.ledger.Append(ctx, trades...)
	d.metrics.OrderSubmitted(o.AssetID, string(o.Side))
	d.afterBookChange(ctx, mk)

	return &Receipt{
		OrderID:   o.ID,
		Status:    o.Status,
		Remaining: o.Quantity,
		Trades:    trades,
	}, nil
}

func (d *Directory) persistExecution(ctx context.Context) func(Execution) error {
	if d.repo == nil {
		return nil
	}
	return func(ex Execution) error {
		return withTx(ctx, d.repo, func(tx port.Tx) error {
			for i := range ex.Orders {
				if err := tx.SaveOrder(ctx, &ex.Orders[i]); err != nil {
					return fmt.Errorf("save order %s: %w", ex.Orders[i].ID, err)
				}
			}
			for i := range ex.Trades {
				if err := tx.SaveTrade(ctx, &ex.Trades[i]); err != nil {
					return fmt.Errorf("save trade %s: %w", ex.Trades[i].ID, err)
				}
			}
			if len(ex.Trades) > 0 {
				if err := tx.SaveAsset(ctx, &ex.Asset); err != nil {
					return fmt.Errorf("save asset %s: %w", ex.Asset.ID, err)
				}
			}
			return nil
		})
	}
}

func (d *Directory) reject(o domain.Order, err error) {
	reason := "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		reason = "invalid_order"
	case errors.Is(err, domain.ErrAssetNotFound):
		reason = "asset_not_found"
	}
	d.metrics.OrderRejected(reason)
	d.logger.Debug("order rejected", zap.String("asset", o.AssetID), zap.String("reason", reason), zap.Error(err))
}

func (d *Directory) publish(ctx context.Context, trades []domain.Trade) {
	if d.publisher == nil || len(trades) == 0 {
		return
	}
	if err := d.publisher.PublishTrades(ctx, trades); err != nil {
		d.logger.Warn("publish trades", zap.Int("count", len(trades)), zap.Error(err))
	}
}

// afterBookChange refreshes derived views of a book. Callers hold mk.mu.
func (d *Directory) afterBookChange(ctx context.Context, mk *market) {
	d.metrics.Depth(mk.asset.ID, mk.book.Len(domain.Buy), mk.book.Len(domain.Sell))
	if d.cache == nil {
		return
	}
	snap := mk.book.Snapshot(d.clock.Now())
	if err := d.cache.SetOrderbook(ctx, mk.asset.ID, snap); err != nil {
		d.logger.Warn("cache orderbook", zap.String("asset", mk.asset.ID), zap.Error(err))
		_ = d.cache.Invalidate(ctx, mk.asset.ID)
	}
}

// CancelOrder cancels a pending order. Unknown, filled or already cancelled
// ids are a no-op and report false. Partially filled orders cannot be
// cancelled.
func (d *Directory) CancelOrder(ctx context.Context, orderID, traderID string) (bool, error) {
	d.mu.RLock()
	o, ok := d.orders[orderID]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	mk, err := d.market(o.AssetID)
	if err != nil {
		return false, nil
	}

	mk.mu.Lock()
	defer mk.mu.Unlock()
	if traderID != "" && o.TraderID != traderID {
		return false, nil
	}
	switch o.Status {
	case domain.Filled, domain.Cancelled:
		return false, nil
	case domain.Partial:
		return false, fmt.Errorf("%w: order %s is partially filled", domain.ErrInvalidOrder, orderID)
	}

	now := d.clock.Now()
	post := *o
	post.Status = domain.Cancelled
	post.UpdatedAt = now
	if d.repo != nil {
		err := withTx(ctx, d.repo, func(tx port.Tx) error {
			return tx.SaveOrder(ctx, &post)
		})
		if err != nil {
			return false, fmt.Errorf("cancel order %s: %w", orderID, err)
		}
	}
	mk.book.RemoveByID(o.Side, o.ID)
	mk.expiry.Forget(o.ID)
	o.Status = domain.Cancelled
	o.UpdatedAt = now
	d.afterBookChange(ctx, mk)
	return true, nil
}

func (d *Directory) GetOrder(orderID string) (domain.Order, error) {
	d.mu.RLock()
	o, ok := d.orders[orderID]
	d.mu.RUnlock()
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	mk, err := d.market(o.AssetID)
	if err != nil {
		return domain.Order{}, err
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return *o, nil
}

// GetBook returns the priority-ordered book, from the cache when it has one.
func (d *Directory) GetBook(ctx context.Context, assetID string) (*domain.OrderbookSnapshot, error) {
	mk, err := d.market(assetID)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		if ob, err := d.cache.GetOrderbook(ctx, assetID); err == nil && ob != nil {
			return ob, nil
		}
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	snap := mk.book.Snapshot(d.clock.Now())
	if d.cache != nil {
		if err := d.cache.SetOrderbook(ctx, assetID, snap.DeepCopy()); err != nil {
			d.logger.Warn("cache orderbook", zap.String("asset", assetID), zap.Error(err))
		}
	}
	return snap, nil
}

// GetTrades returns the in-memory ledger oldest first. An empty assetID
// returns every asset's trades.
func (d *Directory) GetTrades(assetID string) ([]domain.Trade, error) {
	if assetID != "" {
		if _, err := d.market(assetID); err != nil {
			return nil, err
		}
	}
	return d.ledger.Trades(assetID), nil
}

func (d *Directory) ArchivedTrades(ctx context.Context, assetID string) ([]domain.Trade, error) {
	return d.ledger.Archived(ctx, assetID)
}

// GetPriceHistory returns up to limit samples oldest first; limit <= 0 returns all.
func (d *Directory) GetPriceHistory(assetID string, limit int) ([]domain.PricePoint, error) {
	mk, err := d.market(assetID)
	if err != nil {
		return nil, err
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.history.Recent(limit), nil
}

// ApplyPrice sets an asset's live price between trades. It is serialized with
// order submission on the same asset.
func (d *Directory) ApplyPrice(ctx context.Context, assetID string, price decimal.Decimal) (domain.Asset, error) {
	return d.updatePrice(ctx, assetID, func(domain.Asset) decimal.Decimal { return price })
}

func (d *Directory) updatePrice(ctx context.Context, assetID string, next func(domain.Asset) decimal.Decimal) (domain.Asset, error) {
	mk, err := d.market(assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()

	price := next(mk.asset.Clone())
	if !price.IsPositive() {
		return domain.Asset{}, fmt.Errorf("%w: %s for %s", domain.ErrInvalidPrice, price, assetID)
	}
	post := mk.asset.Clone()
	post.Price = price
	post.RecomputeMarketCap()
	if d.repo != nil {
		if err := d.repo.SaveAsset(ctx, &post); err != nil {
			return domain.Asset{}, fmt.Errorf("save asset %s: %w", assetID, err)
		}
	}
	mk.asset = post
	return post.Clone(), nil
}

// SweepExpired cancels pending orders older than the retention window.
func (d *Directory) SweepExpired(ctx context.Context, now time.Time) ([]domain.Order, error) {
	return d.lifecycle.SweepExpired(ctx, now)
}
