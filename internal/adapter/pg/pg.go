package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
  id            TEXT PRIMARY KEY,
  symbol        TEXT NOT NULL,
  name          TEXT NOT NULL,
  type          TEXT NOT NULL,
  price         NUMERIC NOT NULL,
  volume        NUMERIC NOT NULL,
  market_cap    NUMERIC NOT NULL,
  volatility    DOUBLE PRECISION NOT NULL,
  fundamentals  JSONB,
  registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS orders (
  id              TEXT PRIMARY KEY,
  asset_id        TEXT NOT NULL REFERENCES assets(id),
  type            TEXT NOT NULL,
  side            TEXT NOT NULL,
  quantity        NUMERIC NOT NULL,
  filled_quantity NUMERIC NOT NULL,
  price           NUMERIC,
  status          TEXT NOT NULL,
  trader_id       TEXT NOT NULL,
  created_at      TIMESTAMPTZ NOT NULL,
  updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_open_idx ON orders(asset_id, created_at) WHERE status IN ('PENDING', 'PARTIAL');
CREATE TABLE IF NOT EXISTS trades (
  id            TEXT PRIMARY KEY,
  asset_id      TEXT NOT NULL REFERENCES assets(id),
  buy_order_id  TEXT NOT NULL,
  sell_order_id TEXT NOT NULL,
  quantity      NUMERIC NOT NULL,
  price         NUMERIC NOT NULL,
  ts            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_asset_ts_idx ON trades(asset_id, ts);
`

const (
	upsertAsset = `
INSERT INTO assets(id, symbol, name, type, price, volume, market_cap, volatility, fundamentals)
VALUES($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  symbol = EXCLUDED.symbol,
  name = EXCLUDED.name,
  type = EXCLUDED.type,
  price = EXCLUDED.price,
  volume = EXCLUDED.volume,
  market_cap = EXCLUDED.market_cap,
  volatility = EXCLUDED.volatility,
  fundamentals = EXCLUDED.fundamentals
`
	upsertOrder = `
INSERT INTO orders(id, asset_id, type, side, quantity, filled_quantity, price, status, trader_id, created_at, updated_at)
VALUES($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  quantity = EXCLUDED.quantity,
  filled_quantity = EXCLUDED.filled_quantity,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at
WHERE orders.status NOT IN ('FILLED', 'CANCELLED')
`
	insertTrade = `
INSERT INTO trades(id, asset_id, buy_order_id, sell_order_id, quantity, price, ts)
VALUES($1,$2,$3,$4,$5::numeric,$6::numeric,$7)
ON CONFLICT (id) DO NOTHING
`
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (p *PgRepo) SaveAsset(ctx context.Context, a *domain.Asset) error {
	return saveAsset(ctx, p.pool, a)
}

func (p *PgRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	return saveOrder(ctx, p.pool, o)
}

func (p *PgRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	return saveTrade(ctx, p.pool, t)
}

func saveAsset(ctx context.Context, db execer, a *domain.Asset) error {
	if a == nil {
		return errors.New("nil asset")
	}
	var fundamentals []byte
	if a.Fundamentals != nil {
		b, err := json.Marshal(a.Fundamentals)
		if err != nil {
			return err
		}
		fundamentals = b
	}
	_, err := db.Exec(ctx, upsertAsset, a.ID, a.Symbol, a.Name, string(a.Type),
		a.Price.String(), a.Volume.String(), a.MarketCap.String(), a.Volatility, fundamentals)
	return err
}

func saveOrder(ctx context.Context, db execer, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	var price *string
	if o.Price.Valid {
		s := o.Price.Decimal.String()
		price = &s
	}
	_, err := db.Exec(ctx, upsertOrder, o.ID, o.AssetID, string(o.Type), string(o.Side),
		o.Quantity.String(), o.FilledQuantity.String(), price, string(o.Status), o.TraderID,
		o.CreatedAt, o.UpdatedAt)
	return err
}

func saveTrade(ctx context.Context, db execer, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	_, err := db.Exec(ctx, insertTrade, t.ID, t.AssetID, t.BuyOrderID, t.SellOrderID,
		t.Quantity.String(), t.Price.String(), t.Timestamp)
	return err
}

// LoadAssets returns assets in registration order.
func (p *PgRepo) LoadAssets(ctx context.Context) ([]*domain.Asset, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, symbol, name, type, price::text, volume::text, market_cap::text, volatility, fundamentals
FROM assets
ORDER BY registered_at ASC, id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Asset
	for rows.Next() {
		var (
			a                    domain.Asset
			typ, price, vol, cap string
			fundamentals         []byte
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &typ, &price, &vol, &cap, &a.Volatility, &fundamentals); err != nil {
			return nil, err
		}
		a.Type = domain.AssetType(typ)
		if a.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("asset %s price: %w", a.ID, err)
		}
		if a.Volume, err = decimal.NewFromString(vol); err != nil {
			return nil, fmt.Errorf("asset %s volume: %w", a.ID, err)
		}
		if a.MarketCap, err = decimal.NewFromString(cap); err != nil {
			return nil, fmt.Errorf("asset %s market cap: %w", a.ID, err)
		}
		if len(fundamentals) > 0 {
			var f domain.Fundamentals
			if err := json.Unmarshal(fundamentals, &f); err != nil {
				return nil, fmt.Errorf("asset %s fundamentals: %w", a.ID, err)
			}
			a.Fundamentals = &f
		}
		res = append(res, &a)
	}
	return res, rows.Err()
}

// LoadOrders returns every order of an asset ordered by created_at ASC (FIFO)
func (p *PgRepo) LoadOrders(ctx context.Context, assetID string) ([]*domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, asset_id, type, side, quantity::text, filled_quantity::text, price::text, status, trader_id, created_at, updated_at
FROM orders
WHERE asset_id = $1
ORDER BY created_at ASC, id ASC
`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		var (
			o                 domain.Order
			typ, side, status string
			qty, filled       string
			price             *string
		)
		if err := rows.Scan(&o.ID, &o.AssetID, &typ, &side, &qty, &filled, &price, &status, &o.TraderID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Type = domain.OrderType(typ)
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		if o.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("order %s quantity: %w", o.ID, err)
		}
		if o.FilledQuantity, err = decimal.NewFromString(filled); err != nil {
			return nil, fmt.Errorf("order %s filled quantity: %w", o.ID, err)
		}
		if price != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("order %s price: %w", o.ID, err)
			}
			o.Price = decimal.NewNullDecimal(d)
		}
		res = append(res, &o)
	}
	return res, rows.Err()
}

// LoadRecentTrades returns the newest limit trades oldest first.
func (p *PgRepo) LoadRecentTrades(ctx context.Context, assetID string, limit int) ([]*domain.Trade, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, asset_id, buy_order_id, sell_order_id, quantity::text, price::text, ts FROM (
  SELECT * FROM trades WHERE asset_id = $1 ORDER BY ts DESC LIMIT $2
) recent
ORDER BY ts ASC
`, assetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Trade
	for rows.Next() {
		var (
			t          domain.Trade
			qty, price string
		)
		if err := rows.Scan(&t.ID, &t.AssetID, &t.BuyOrderID, &t.SellOrderID, &qty, &price, &t.Timestamp); err != nil {
			return nil, err
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("trade %s quantity: %w", t.ID, err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		res = append(res, &t)
	}
	return res, rows.Err()
}

func (p *PgRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SaveAsset(ctx context.Context, a *domain.Asset) error { return saveAsset(ctx, t.tx, a) }
func (t *pgTx) SaveOrder(ctx context.Context, o *domain.Order) error { return saveOrder(ctx, t.tx, o) }
func (t *pgTx) SaveTrade(ctx context.Context, tr *domain.Trade) error {
	return saveTrade(ctx, t.tx, tr)
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
