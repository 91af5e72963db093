package backtest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
	"tradecore/internal/strategy"
	"tradecore/pkg/exception"
)

func TestRunBatch(t *testing.T) {
	e := newEngine(t, nil)
	ma, err := strategy.NewMACrossoverRSI(strategy.MACrossoverRSIConfig{EMAFast: 5, EMASlow: 12, RSIPeriod: 7, RSIThreshold: 75})
	require.NoError(t, err)

	jobs := []Job{
		{Symbol: "WAVE", Bars: waveBars(200), Strategy: ma},
		{Symbol: "EMPTY", Bars: nil, Strategy: ma},
		{Symbol: "FLAT", Bars: trendBars(20), Strategy: strategy.Hold{}},
		{Symbol: "WAVE2", Bars: waveBars(250), Strategy: ma},
	}
	results, err := e.RunBatch(t.Context(), jobs, 3)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	for i, r := range results {
		assert.Equal(t, jobs[i].Symbol, r.Symbol)
	}
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, exception.ErrInsufficientData)
	assert.NoError(t, results[2].Err)
	assert.Len(t, results[3].Result.EquityCurve, 250)

	// a batch must agree with sequential runs
	single, err := e.Run(t.Context(), "WAVE", waveBars(200), ma)
	require.NoError(t, err)
	assert.True(t, single.FinalEquity().Equal(results[0].Result.FinalEquity()))
}

func TestRunBatchCanceled(t *testing.T) {
	e := newEngine(t, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := e.RunBatch(ctx, []Job{{Symbol: "FLAT", Bars: trendBars(5), Strategy: strategy.Hold{}}}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSV(t *testing.T) {
	strat := &scripted{signals: map[int]schema.SignalKind{1: schema.SignalBuy, 3: schema.SignalSell}}
	res, err := newEngine(t, nil).Run(t.Context(), "AAPL", scenarioBars(), strat)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, res.Trades))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "number,entry_time"))
	assert.Contains(t, lines[1], "150.15")
	assert.Contains(t, lines[1], "6122.08")
	assert.True(t, strings.HasSuffix(lines[1], "true,SIGNAL"))

	buf.Reset()
	require.NoError(t, WriteEquityCSV(&buf, res.EquityCurve))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 6)
}
