// Package backtest simulates a strategy over historical bars.
//
// # Execution model
//
// A signal computed at the close of bar i is executed at the open of bar
// i+1, never at a close. The first bar never executes anything. Buys fill
// at open x (1+slippage), sells at open x (1-slippage), and every order pays
// a flat commission. Every bar produces exactly one equity point valued at
// its close.
//
// # Bar order
//
//  1. protective exit (stop loss, take profit) against the bar's low/high
//  2. pending signal at the bar's open
//  3. forced close at the last bar's close
//  4. equity point
//  5. signal for the next bar
package backtest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/internal/metrics"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/internal/strategy"
	"tradecore/pkg/exception"
)

// Result is the outcome of one run.
type Result struct {
	Symbol        string                 `json:"symbol"`
	Strategy      string                 `json:"strategy"`
	Start         time.Time              `json:"start"`
	End           time.Time              `json:"end"`
	BarsProcessed int                    `json:"barsProcessed"`
	Config        Config                 `json:"config"`
	Trades        []schema.BacktestTrade `json:"trades"`
	EquityCurve   []schema.EquityPoint   `json:"equityCurve"`
	Report        metrics.Report         `json:"report"`
	Duration      time.Duration          `json:"duration"`
}

// FinalEquity returns the equity at the last point.
func (r Result) FinalEquity() decimal.Decimal {
	if len(r.EquityCurve) == 0 {
		return r.Config.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Equity
}

// Engine runs backtests. It holds no per-run state; one engine may run many
// backtests concurrently.
type Engine struct {
	cfg     Config
	metrics *obs.Metrics
}

// NewEngine validates cfg and creates an engine.
func NewEngine(cfg Config, m *obs.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, metrics: m}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run simulates strat over bars. It fails with exception.ErrInsufficientData
// when bars is empty or shorter than the strategy warm-up; no partial result
// is returned on error.
func (e *Engine) Run(ctx context.Context, symbol string, bars []schema.Bar, strat strategy.Strategy) (Result, error) {
	start := time.Now()
	res, err := e.run(ctx, symbol, bars, strat)
	res.Duration = time.Since(start)
	e.metrics.ObserveBacktest(res.Duration, err)
	if err != nil {
		logs.Errorf("backtest: %s failed, err: %+v", symbol, err)
		return Result{}, err
	}
	logs.Infof("backtest: %s %s, %d bars, %d trades, return %.2f%%", symbol, res.Strategy, res.BarsProcessed, len(res.Trades), res.Report.TotalReturnPct)
	return res, nil
}

func (e *Engine) run(ctx context.Context, symbol string, bars []schema.Bar, strat strategy.Strategy) (Result, error) {
	if strat == nil {
		return Result{}, exception.ErrNilStrategy
	}
	warmUp := strat.WarmUpBars()
	if len(bars) == 0 || len(bars) < warmUp {
		return Result{}, errors.Wrapf(exception.ErrInsufficientData, "%s: %d bars, %s needs %d", symbol, len(bars), strat.Name(), warmUp)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return Result{}, errors.Wrapf(exception.ErrBarsOutOfOrder, "%s: bar %d at %s", symbol, i, bars[i].Time.Format(time.DateOnly))
		}
	}

	s := newSimulator(e.cfg)
	pending := schema.Signal{Kind: schema.SignalHold}
	last := len(bars) - 1
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if i > 0 {
			if s.protectiveExit(bar) {
				pending = schema.HoldSignal(bar.Time, "protective exit")
			}
			s.execute(pending, bar)
		}
		if i == last && s.open != nil {
			s.exit(bar.Close, bar.Time, schema.ExitReasonEndOfTest)
		}
		s.mark(bar)

		if i == last {
			break
		}
		if i+1 < warmUp {
			pending = schema.HoldSignal(bar.Time, "warm-up")
			continue
		}
		history := bars[: i+1 : i+1]
		pending = strat.GenerateSignal(history, s.open != nil)
	}

	return Result{
		Symbol:        symbol,
		Strategy:      strat.Name(),
		Start:         bars[0].Time,
		End:           bars[last].Time,
		BarsProcessed: len(bars),
		Config:        e.cfg,
		Trades:        s.trades,
		EquityCurve:   s.curve,
		Report:        metrics.Compute(e.cfg.InitialCapital, s.trades, s.curve, e.cfg.Metrics),
	}, nil
}
