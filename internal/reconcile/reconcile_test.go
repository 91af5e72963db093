package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/errors"
	"tradecore/internal/halt"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReconcileExtraAtBroker(t *testing.T) {
	report, err := Reconcile(map[string]int64{"AAPL": 100}, map[string]int64{}, map[string]decimal.Decimal{"AAPL": d("150")})
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)

	got := report.Discrepancies[0]
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, schema.DiscrepancyExtraAtBroker, got.Kind)
	assert.Equal(t, int64(100), got.QuantityDifference())
	assert.True(t, d("15000").Equal(got.ValueDifference))
	assert.True(t, report.Major)
}

func TestReconcileKinds(t *testing.T) {
	broker := map[string]int64{"AAPL": 10, "MSFT": 5, "NVDA": 3, "TSLA": 0}
	ledger := map[string]int64{"MSFT": 5, "NVDA": 4, "GOOG": 2, "TSLA": 0}
	prices := map[string]decimal.Decimal{"AAPL": d("1.5"), "NVDA": d("20"), "GOOG": d("7.25")}

	report, err := Reconcile(broker, ledger, prices)
	require.NoError(t, err)

	kinds := map[string]schema.DiscrepancyKind{}
	var symbols []string
	for _, dis := range report.Discrepancies {
		kinds[dis.Symbol] = dis.Kind
		symbols = append(symbols, dis.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "GOOG", "NVDA"}, symbols)
	assert.Equal(t, schema.DiscrepancyExtraAtBroker, kinds["AAPL"])
	assert.Equal(t, schema.DiscrepancyMissingAtBroker, kinds["GOOG"])
	assert.Equal(t, schema.DiscrepancyQuantityMismatch, kinds["NVDA"])

	// 10 x 1.5 + 2 x 7.25 + 1 x 20
	assert.True(t, d("49.5").Equal(report.TotalValueDifference), report.TotalValueDifference.String())
	assert.False(t, report.Major)
}

func TestReconcileThreshold(t *testing.T) {
	tests := []struct {
		name  string
		price string
		major bool
	}{
		{"major", "271.59", true},
		{"exactly threshold", "100", false},
		{"just above", "100.01", true},
		{"small", "3.50", false},
	}
	for _, tc := range tests {
		report, err := Reconcile(map[string]int64{"AAPL": 1}, nil, map[string]decimal.Decimal{"AAPL": d(tc.price)})
		if err != nil {
			t.Fatalf("%s: unexpected error: %+v", tc.name, err)
		}
		if report.Major != tc.major {
			t.Fatalf("%s: major = %v, want %v (total %s)", tc.name, report.Major, tc.major, report.TotalValueDifference)
		}
	}
}

func TestMajorThresholdIsFixed(t *testing.T) {
	th := MajorThreshold()
	assert.True(t, th.Equal(d("100")), th.String())

	report, err := Reconcile(map[string]int64{"AAPL": 1}, nil, map[string]decimal.Decimal{"AAPL": d("500")})
	require.NoError(t, err)
	assert.True(t, report.Major)
}

func TestReconcileClean(t *testing.T) {
	report, err := Reconcile(map[string]int64{"AAPL": 7}, map[string]int64{"AAPL": 7}, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.True(t, report.TotalValueDifference.IsZero())
	assert.False(t, report.Major)
}

func TestReconcileErrors(t *testing.T) {
	_, err := Reconcile(map[string]int64{"AAPL": 1}, nil, nil)
	assert.ErrorIs(t, err, exception.ErrMissingPrice)

	_, err = Reconcile(map[string]int64{"AAPL": 1}, nil, map[string]decimal.Decimal{"AAPL": decimal.Zero})
	assert.ErrorIs(t, err, exception.ErrMissingPrice)

	_, err = Reconcile(nil, map[string]int64{"AAPL": -1}, map[string]decimal.Decimal{"AAPL": d("1")})
	assert.ErrorIs(t, err, exception.ErrNegativeQuantity)
}

type fakeLedger struct {
	mu        sync.Mutex
	open      map[string]int64
	recovered map[string]decimal.Decimal
	closed    []string
	fail      error
}

func newFakeLedger(open map[string]int64) *fakeLedger {
	if open == nil {
		open = map[string]int64{}
	}
	return &fakeLedger{open: open, recovered: map[string]decimal.Decimal{}}
}

func (f *fakeLedger) CreateRecoveredTrade(_ context.Context, symbol string, qty int64, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.open[symbol] += qty
	f.recovered[symbol] = price
	return nil
}

func (f *fakeLedger) CloseUnknownExit(_ context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	if f.open[symbol] == 0 {
		return 0, nil
	}
	delete(f.open, symbol)
	f.closed = append(f.closed, symbol)
	return 1, nil
}

func (f *fakeLedger) Positions(context.Context) (map[string]schema.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]schema.Position, len(f.open))
	for sym, qty := range f.open {
		out[sym] = schema.Position{Quantity: qty, EntryPrice: d("1")}
	}
	return out, nil
}

func TestRecoverExtraAtBroker(t *testing.T) {
	ledger := newFakeLedger(nil)
	report, err := Reconcile(map[string]int64{"AAPL": 100}, ledger.open, map[string]decimal.Decimal{"AAPL": d("150")})
	require.NoError(t, err)

	rec, err := Recover(t.Context(), ledger, report)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, rec.Recovered)
	assert.Equal(t, int64(100), ledger.open["AAPL"])
	assert.True(t, d("150").Equal(ledger.recovered["AAPL"]))

	after, err := Reconcile(map[string]int64{"AAPL": 100}, ledger.open, nil)
	require.NoError(t, err)
	assert.True(t, after.Clean())
}

func TestRecoverPolicy(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"GOOG": 2, "NVDA": 4})
	report, err := Reconcile(
		map[string]int64{"AAPL": 1, "NVDA": 3},
		map[string]int64{"GOOG": 2, "NVDA": 4},
		map[string]decimal.Decimal{"AAPL": d("10"), "GOOG": d("10"), "NVDA": d("10")},
	)
	require.NoError(t, err)

	rec, err := Recover(t.Context(), ledger, report)
	assert.ErrorIs(t, err, exception.ErrManualReview)
	assert.Equal(t, []string{"AAPL"}, rec.Recovered)
	assert.Equal(t, []string{"GOOG"}, rec.Closed)
	assert.Equal(t, []string{"NVDA"}, rec.ManualReview)
	assert.Equal(t, int64(4), ledger.open["NVDA"], "mismatch must not be touched")
	assert.Equal(t, []string{"GOOG"}, ledger.closed)
}

func TestRecoverOneErrors(t *testing.T) {
	ledger := newFakeLedger(nil)
	err := RecoverOne(t.Context(), ledger, schema.Discrepancy{Symbol: "GOOG", LedgerQuantity: 2, Kind: schema.DiscrepancyMissingAtBroker})
	assert.ErrorIs(t, err, exception.ErrNoOpenTrade)

	boom := errors.New("db down")
	ledger.fail = boom
	_, err = Recover(t.Context(), ledger, Report{Discrepancies: []schema.Discrepancy{
		{Symbol: "AAPL", BrokerQuantity: 1, Kind: schema.DiscrepancyExtraAtBroker, Price: d("1")},
	}})
	assert.ErrorIs(t, err, boom)
}

func TestServiceHaltsOnMajor(t *testing.T) {
	broker := SourceFunc(func(context.Context) (map[string]schema.Position, error) {
		return map[string]schema.Position{"AAPL": {Quantity: 1, MarketPrice: d("271.59")}}, nil
	})
	ledger := newFakeLedger(nil)
	flag := halt.New()
	m := obs.NewMetrics()

	svc := NewService(broker, ledger, flag, m)
	report, err := svc.Run(t.Context())
	require.NoError(t, err)
	assert.True(t, report.Major)
	assert.True(t, d("271.59").Equal(report.TotalValueDifference))
	assert.True(t, flag.Halted())
	assert.Contains(t, flag.State().Reason, "$271.59")

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ReconcileRuns)
	assert.Equal(t, uint64(1), snap.MajorPasses)
	assert.Equal(t, uint64(1), snap.Discrepancies)
}

func TestServiceMinorDoesNotHalt(t *testing.T) {
	broker := SourceFunc(func(context.Context) (map[string]schema.Position, error) {
		return map[string]schema.Position{"AAPL": {Quantity: 3, MarketPrice: d("10")}}, nil
	})
	ledger := newFakeLedger(map[string]int64{"AAPL": 2})
	flag := halt.New()

	report, err := NewService(broker, ledger, flag, nil).Run(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, schema.DiscrepancyQuantityMismatch, report.Discrepancies[0].Kind)
	assert.False(t, flag.Halted())
}

func TestServiceSourceError(t *testing.T) {
	boom := errors.New("broker offline")
	broker := SourceFunc(func(context.Context) (map[string]schema.Position, error) { return nil, boom })
	_, err := NewService(broker, newFakeLedger(nil), nil, nil).Run(t.Context())
	assert.ErrorIs(t, err, boom)
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	broker := SourceFunc(func(context.Context) (map[string]schema.Position, error) { return nil, nil })

	var reports int
	svc := NewService(broker, newFakeLedger(nil), nil, nil)
	err := svc.Watch(ctx, 1<<40, func(Report) {
		reports++
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, reports)
}

func TestPrices(t *testing.T) {
	broker := map[string]schema.Position{"AAPL": {Quantity: 1, MarketPrice: d("10")}}
	ledger := map[string]schema.Position{
		"AAPL": {Quantity: 1, EntryPrice: d("9")},
		"GOOG": {Quantity: 1, EntryPrice: d("7")},
	}
	prices := Prices(broker, ledger)
	assert.True(t, d("10").Equal(prices["AAPL"]))
	assert.True(t, d("7").Equal(prices["GOOG"]))
}
