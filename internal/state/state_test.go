package state

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/reconcile"
	"tradecore/pkg/exception"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyFill(t *testing.T) {
	b := NewBook()

	qty, err := b.ApplyFill(Fill{StrategyID: "ma", Symbol: "AAPL", Side: SideBuy, Qty: 10, Price: d("100")})
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)

	qty, err = b.ApplyFill(Fill{StrategyID: "ma", Symbol: "AAPL", Side: SideBuy, Qty: 30, Price: d("120")})
	require.NoError(t, err)
	assert.Equal(t, int64(40), qty)
	assert.True(t, d("115").Equal(b.Position("AAPL").EntryPrice))

	qty, err = b.ApplyFill(Fill{Symbol: "AAPL", Side: SideSell, Qty: 15, Price: d("130")})
	require.NoError(t, err)
	assert.Equal(t, int64(25), qty)
	assert.True(t, d("115").Equal(b.Position("AAPL").EntryPrice))
	assert.True(t, d("130").Equal(b.Position("AAPL").MarketPrice))

	_, err = b.ApplyFill(Fill{Symbol: "AAPL", Side: SideSell, Qty: 26, Price: d("130")})
	assert.ErrorIs(t, err, exception.ErrNegativeQuantity)

	qty, err = b.ApplyFill(Fill{Symbol: "AAPL", Side: SideSell, Qty: 25, Price: d("130")})
	require.NoError(t, err)
	assert.Zero(t, qty)
	assert.Zero(t, b.Count())
}

func TestApplyFillInvalid(t *testing.T) {
	b := NewBook()
	tests := []Fill{
		{Symbol: "AAPL", Side: SideBuy, Qty: 0, Price: d("1")},
		{Symbol: "AAPL", Side: SideUnknown, Qty: 1, Price: d("1")},
	}
	for i, f := range tests {
		if _, err := b.ApplyFill(f); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestSnapshotRoundTripFile(t *testing.T) {
	b := NewBook()
	_, err := b.ApplyFill(Fill{StrategyID: "ma", Symbol: "MSFT", Side: SideBuy, Qty: 3, Price: d("400")})
	require.NoError(t, err)
	_, err = b.ApplyFill(Fill{StrategyID: "ma", Symbol: "AAPL", Side: SideBuy, Qty: 5, Price: d("150")})
	require.NoError(t, err)

	snap := b.Snapshot("ledger")
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "AAPL", snap.Positions[0].Symbol)

	path := filepath.Join(t.TempDir(), "snap", "ledger.json")
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "ledger", got.Source)

	restored := got.Map()
	assert.Equal(t, int64(3), restored["MSFT"].Quantity)
	assert.True(t, d("150").Equal(restored["AAPL"].EntryPrice))
}

func TestFileSourceReconcile(t *testing.T) {
	dir := t.TempDir()
	brokerPath := filepath.Join(dir, "broker.json")
	ledgerPath := filepath.Join(dir, "ledger.json")

	require.NoError(t, WriteSnapshot(brokerPath, Snapshot{Source: "broker", Positions: []PositionEntry{
		{Symbol: "AAPL", Qty: 100, Price: d("150")},
	}}))
	require.NoError(t, WriteSnapshot(ledgerPath, Snapshot{Source: "ledger"}))

	svc := reconcile.NewService(FileSource(brokerPath), FileSource(ledgerPath), nil, nil)
	report, err := svc.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	assert.True(t, report.Major)

	_, err = FileSource(filepath.Join(dir, "missing.json")).Positions(t.Context())
	assert.Error(t, err)
}
