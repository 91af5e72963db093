package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/backtest"
	"tradecore/internal/halt"
	"tradecore/internal/losslimit"
	"tradecore/internal/metrics"
	"tradecore/internal/reconcile"
	"tradecore/internal/schema"
	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newRepo(t *testing.T) *Repository {
	t.Helper()
	c, err := conn.New(conn.Option{Driver: conn.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	repo := NewRepository(c.DB())
	require.NoError(t, repo.Migrate(t.Context()))
	return repo
}

func TestOpenCloseTrade(t *testing.T) {
	repo := newRepo(t)
	ctx := t.Context()

	tr, err := repo.OpenTrade(ctx, "ma", "AAPL", 10, d("150"), t0)
	require.NoError(t, err)
	assert.NotZero(t, tr.ID)
	assert.Equal(t, StatusOpen, tr.Status)

	closed, err := repo.CloseTrade(ctx, tr.ID, d("145"), t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.NetPnL)
	assert.True(t, d("-50").Equal(*closed.NetPnL))

	out := closed.Outcome()
	assert.Equal(t, "ma", out.StrategyID)
	assert.True(t, out.NetPnL.IsNegative())

	_, err = repo.CloseTrade(ctx, tr.ID, d("145"), t0)
	assert.ErrorIs(t, err, exception.ErrNoOpenTrade)

	_, err = repo.OpenTrade(ctx, "ma", "AAPL", 0, d("150"), t0)
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestPositions(t *testing.T) {
	repo := newRepo(t)
	ctx := t.Context()

	_, err := repo.OpenTrade(ctx, "ma", "AAPL", 10, d("100"), t0)
	require.NoError(t, err)
	_, err = repo.OpenTrade(ctx, "ma", "AAPL", 30, d("120"), t0)
	require.NoError(t, err)
	msft, err := repo.OpenTrade(ctx, "ma", "MSFT", 5, d("400"), t0)
	require.NoError(t, err)
	_, err = repo.CloseTrade(ctx, msft.ID, d("410"), t0)
	require.NoError(t, err)

	pos, err := repo.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, int64(40), pos["AAPL"].Quantity)
	assert.Equal(t, "ma", pos["AAPL"].StrategyID)
	assert.True(t, d("115").Equal(pos["AAPL"].EntryPrice), pos["AAPL"].EntryPrice.String())
	assert.True(t, d("120").Equal(pos["AAPL"].MarketPrice))

	book, err := repo.Book(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, book.Count())
	snap := book.Snapshot("ledger")
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, int64(40), snap.Positions[0].Qty)
	assert.Equal(t, "ma", snap.Positions[0].StrategyID)
}

func TestHaltStore(t *testing.T) {
	repo := newRepo(t)

	st, err := repo.LoadHalt()
	require.NoError(t, err)
	assert.False(t, st.Halted)

	flag := halt.New()
	require.NoError(t, flag.Attach(repo))
	flag.Halt("major position discrepancy: $15000.00 across 1 symbols")

	restored := halt.New()
	require.NoError(t, restored.Attach(repo))
	assert.True(t, restored.Halted())
	assert.Equal(t, "major position discrepancy: $15000.00 across 1 symbols", restored.State().Reason)
	assert.False(t, restored.State().Since.IsZero())

	restored.Resume()
	st, err = repo.LoadHalt()
	require.NoError(t, err)
	assert.Equal(t, halt.State{}, st)

	flag.Halt("ignored while the first flag is still halted")
	st, err = repo.LoadHalt()
	require.NoError(t, err)
	assert.False(t, st.Halted)
}

func TestRecoveryAgainstLedger(t *testing.T) {
	repo := newRepo(t)
	ctx := t.Context()

	_, err := repo.OpenTrade(ctx, "ma", "GOOG", 2, d("170"), t0)
	require.NoError(t, err)

	ledgerPos, err := repo.Positions(ctx)
	require.NoError(t, err)
	report, err := reconcile.Reconcile(
		map[string]int64{"AAPL": 100},
		reconcile.Quantities(ledgerPos),
		map[string]decimal.Decimal{"AAPL": d("150"), "GOOG": d("170")},
	)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 2)

	rec, err := reconcile.Recover(ctx, repo, report)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, rec.Recovered)
	assert.Equal(t, []string{"GOOG"}, rec.Closed)

	open, err := repo.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "AAPL", open[0].Symbol)
	assert.True(t, open[0].Recovered)
	assert.Equal(t, RecoveredStrategyID, open[0].StrategyID)

	var goog Trade
	require.NoError(t, repo.db.Where("symbol = ?", "GOOG").First(&goog).Error)
	assert.Equal(t, StatusClosed, goog.Status)
	assert.True(t, goog.ExitPriceUnknown)
	assert.Nil(t, goog.ExitPrice)
}

func TestSaveBacktest(t *testing.T) {
	repo := newRepo(t)
	sharpe := 1.25
	res := backtest.Result{
		Symbol:        "AAPL",
		Strategy:      "ma_crossover_rsi",
		Start:         t0,
		End:           t0.AddDate(0, 0, 2),
		BarsProcessed: 3,
		Config:        backtest.DefaultConfig(),
		Trades: []schema.BacktestTrade{{
			Number: 1, EntryTime: t0.AddDate(0, 0, 1), EntryPrice: d("150.15"),
			ExitTime: t0.AddDate(0, 0, 2), ExitPrice: d("159.84"), Quantity: 632,
			NetPnL: d("6122.08"), IsWinner: true, ExitReason: schema.ExitReasonSignal,
		}},
		EquityCurve: []schema.EquityPoint{
			{Time: t0, Equity: d("100000"), Cash: d("100000"), PositionValue: decimal.Zero},
			{Time: t0.AddDate(0, 0, 1), Equity: d("99800"), Cash: d("5104.2"), PositionValue: d("94695.8"), DrawdownPct: -0.2},
			{Time: t0.AddDate(0, 0, 2), Equity: d("106122.08"), Cash: d("106122.08"), PositionValue: decimal.Zero},
		},
		Report: metrics.Report{TotalReturnPct: 6.12208, SharpeRatio: &sharpe},
	}

	id, err := repo.SaveBacktest(t.Context(), res)
	require.NoError(t, err)

	run, err := repo.Backtest(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", run.Symbol)
	assert.Equal(t, schema.SchemaVersion, run.SchemaVersion)
	assert.True(t, d("106122.08").Equal(run.FinalEquity))
	require.NotNil(t, run.SharpeRatio)
	assert.InDelta(t, 1.25, *run.SharpeRatio, 1e-9)
	assert.Nil(t, run.ProfitFactor)
	require.Len(t, run.Trades, 1)
	assert.Equal(t, int64(632), run.Trades[0].Quantity)
	require.Len(t, run.Equity, 3)
	assert.InDelta(t, -0.2, run.Equity[1].DrawdownPct, 1e-9)
	assert.Contains(t, run.Report, "totalReturnPct")
}

func TestLossStateStore(t *testing.T) {
	repo := newRepo(t)

	det := losslimit.NewDetector(losslimit.WithStore(repo))
	for _, pnl := range []string{"-50", "-30", "-10"} {
		det.RecordOutcome("ma", d(pnl))
	}
	det.RecordOutcome("breakout", d("-5"))

	states, err := repo.LoadLossStates()
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, schema.LossStreakState{StrategyID: "breakout", ConsecutiveLosses: 1}, states[0])
	assert.Equal(t, schema.LossStreakState{StrategyID: "ma", ConsecutiveLosses: 3, Paused: true}, states[1])

	restored := losslimit.NewDetector(losslimit.WithStore(repo))
	require.NoError(t, restored.Restore())
	assert.True(t, restored.Status("ma").Paused)
}

func TestMigrateIdempotent(t *testing.T) {
	repo := newRepo(t)
	assert.NoError(t, repo.Migrate(context.Background()))
}
