package pebble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

var _ port.TradeArchive = (*Archive)(nil)

// Archive stores trades evicted from the in-memory ledger, ordered by
// asset then execution time.
type Archive struct {
	db *pebble.DB
}

// Open opens (or creates) an archive at dir.
func Open(dir string) (*Archive, error) {
	return open(dir, &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
		MaxOpenFiles: 500,
	})
}

// OpenInMemory opens an archive backed by an in-memory filesystem.
func OpenInMemory() (*Archive, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(dir string, opts *pebble.Options) (*Archive, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble archive at %q: %w", dir, err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Archive writes all trades in one synced batch.
func (a *Archive) Archive(_ context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	b := a.db.NewBatch()
	defer b.Close()
	for _, t := range trades {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trade %s: %w", t.ID, err)
		}
		if err := b.Set(tradeKey(t), data, nil); err != nil {
			return fmt.Errorf("failed to stage trade %s: %w", t.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit archive batch: %w", err)
	}
	return nil
}

// Load returns every archived trade for an asset, oldest first.
func (a *Archive) Load(ctx context.Context, assetID string) ([]domain.Trade, error) {
	prefix := tradePrefix(assetID)
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []domain.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var t domain.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("failed to decode archived trade %q: %w", iter.Key(), err)
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}

// Asset ids may contain '/', so the asset segment ends with a NUL byte.
func tradePrefix(assetID string) []byte {
	return []byte("trade/" + assetID + "\x00")
}

func tradeKey(t domain.Trade) []byte {
	return []byte(fmt.Sprintf("trade/%s\x00%020d/%s", t.AssetID, t.Timestamp.UnixNano(), t.ID))
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
