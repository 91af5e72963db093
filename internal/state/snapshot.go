package state

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
)

// Snapshot captures positions of one source at a point in time.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	Source    string          `json:"source"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	Symbol     string          `json:"symbol"`
	StrategyID string          `json:"strategyId,omitempty"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
}

func (e PositionEntry) position() schema.Position {
	return schema.Position{StrategyID: e.StrategyID, Quantity: e.Qty, EntryPrice: e.Price, MarketPrice: e.Price}
}

// Snapshot builds a snapshot from the current book.
func (b *Book) Snapshot(source string) Snapshot {
	positions, _ := b.Positions(context.Background())
	return SnapshotOf(source, positions)
}

// SnapshotOf builds a snapshot from positions, sorted by symbol.
func SnapshotOf(source string, positions map[string]schema.Position) Snapshot {
	entries := make([]PositionEntry, 0, len(positions))
	for sym, p := range positions {
		entries = append(entries, PositionEntry{
			Symbol:     sym,
			StrategyID: p.StrategyID,
			Qty:        p.Quantity,
			Price:      p.Mark(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Source:    source,
		Positions: entries,
	}
}

// Map returns the snapshot positions keyed by symbol.
func (s Snapshot) Map() map[string]schema.Position {
	out := make(map[string]schema.Position, len(s.Positions))
	for _, e := range s.Positions {
		p := out[e.Symbol]
		if p.Quantity == 0 {
			out[e.Symbol] = e.position()
			continue
		}
		p.Quantity += e.Qty
		out[e.Symbol] = p
	}
	return out
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, path)
	}
	return snap, nil
}

// FileSource reads positions from a snapshot file on every call.
type FileSource string

func (f FileSource) Positions(ctx context.Context) (map[string]schema.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := ReadSnapshot(string(f))
	if err != nil {
		return nil, err
	}
	return snap.Map(), nil
}
