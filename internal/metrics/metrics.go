// Package metrics computes performance statistics over a backtest's trades
// and equity curve. All functions are pure. Ratios that are undefined for the
// input (zero variance, no losing trades, no trades) are nil, never 0 or Inf.
package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// TradingDaysPerYear annualizes daily Sharpe.
const TradingDaysPerYear = 252

const (
	daysPerYear = 365.25
	// stdev below this is floating point noise over identical returns
	zeroStdev = 1e-12
)

var hundred = decimal.NewFromInt(100)

// Options controls classification choices that callers must make explicitly.
type Options struct {
	// BreakevenIsWin counts net_pnl == 0 trades as winners in win rate and
	// streak statistics. By default they count as losses.
	BreakevenIsWin bool `json:"breakevenIsWin"`
}

// Drawdown describes the deepest peak-to-trough fall of an equity curve.
type Drawdown struct {
	Pct   float64
	Value decimal.Decimal
	// RecoveryBars is the number of points from the trough until equity
	// regains the prior peak. Nil when it never recovers.
	RecoveryBars *int
}

// Report aggregates every metric of one backtest.
type Report struct {
	InitialCapital       decimal.Decimal `json:"initialCapital"`
	FinalEquity          decimal.Decimal `json:"finalEquity"`
	TotalReturnPct       float64         `json:"totalReturnPct"`
	AnnualizedReturnPct  float64         `json:"annualizedReturnPct"`
	SharpeRatio          *float64        `json:"sharpeRatio"`
	MaxDrawdownPct       float64         `json:"maxDrawdownPct"`
	MaxDrawdownValue     decimal.Decimal `json:"maxDrawdownValue"`
	RecoveryBars         *int            `json:"recoveryBars"`
	WinRatePct           *float64        `json:"winRatePct"`
	ProfitFactor         *float64        `json:"profitFactor"`
	TotalTrades          int             `json:"totalTrades"`
	WinningTrades        int             `json:"winningTrades"`
	LosingTrades         int             `json:"losingTrades"`
	AvgWin               decimal.Decimal `json:"avgWin"`
	AvgLoss              decimal.Decimal `json:"avgLoss"`
	LargestWin           decimal.Decimal `json:"largestWin"`
	LargestLoss          decimal.Decimal `json:"largestLoss"`
	MaxConsecutiveWins   int             `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int             `json:"maxConsecutiveLosses"`
}

// Compute builds a full report.
func Compute(initial decimal.Decimal, trades []schema.BacktestTrade, curve []schema.EquityPoint, opts Options) Report {
	final := initial
	if len(curve) > 0 {
		final = curve[len(curve)-1].Equity
	}
	dd := MaxDrawdown(curve)
	wins, losses := Streaks(trades, opts)
	avg := AvgWinLoss(trades, opts)

	r := Report{
		InitialCapital:       initial,
		FinalEquity:          final,
		TotalReturnPct:       TotalReturnPct(initial, final),
		AnnualizedReturnPct:  AnnualizedReturnPct(initial, curve),
		SharpeRatio:          Sharpe(DailyReturns(curve)),
		MaxDrawdownPct:       dd.Pct,
		MaxDrawdownValue:     dd.Value,
		RecoveryBars:         dd.RecoveryBars,
		WinRatePct:           WinRate(trades, opts),
		ProfitFactor:         ProfitFactor(trades),
		TotalTrades:          len(trades),
		AvgWin:               avg.AvgWin,
		AvgLoss:              avg.AvgLoss,
		LargestWin:           avg.LargestWin,
		LargestLoss:          avg.LargestLoss,
		MaxConsecutiveWins:   wins,
		MaxConsecutiveLosses: losses,
	}
	for _, t := range trades {
		if IsWin(t, opts) {
			r.WinningTrades++
		} else {
			r.LosingTrades++
		}
	}
	return r
}

// TotalReturnPct returns (final/initial - 1) x 100.
func TotalReturnPct(initial, final decimal.Decimal) float64 {
	if !initial.IsPositive() {
		return 0
	}
	return final.Div(initial).Sub(decimal.NewFromInt(1)).Mul(hundred).InexactFloat64()
}

// AnnualizedReturnPct compounds the total return over the calendar span of
// the curve. Spans shorter than a day report the total return.
func AnnualizedReturnPct(initial decimal.Decimal, curve []schema.EquityPoint) float64 {
	if len(curve) == 0 || !initial.IsPositive() {
		return 0
	}
	final := curve[len(curve)-1].Equity
	total := TotalReturnPct(initial, final)
	days := curve[len(curve)-1].Time.Sub(curve[0].Time).Hours() / 24
	if days < 1 || !final.IsPositive() {
		return total
	}
	ratio := final.Div(initial).InexactFloat64()
	return (math.Pow(ratio, daysPerYear/days) - 1) * 100
}

// DailyReturns returns simple point-to-point returns of the curve.
func DailyReturns(curve []schema.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		out = append(out, curve[i].Equity.Div(prev).Sub(decimal.NewFromInt(1)).InexactFloat64())
	}
	return out
}

// Sharpe returns mean/stdev x sqrt(252) with a zero risk-free rate.
// Stdev is the sample standard deviation.
func Sharpe(returns []float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std < zeroStdev || math.IsNaN(std) {
		return nil
	}
	v := mean / std * math.Sqrt(TradingDaysPerYear)
	return &v
}

// MaxDrawdown returns |min drawdown| of the curve with its value and recovery.
func MaxDrawdown(curve []schema.EquityPoint) Drawdown {
	if len(curve) == 0 {
		return Drawdown{Value: decimal.Zero}
	}

	peak := curve[0].Equity
	troughIdx := -1
	var troughPeak decimal.Decimal
	minPct := 0.0
	maxValue := decimal.Zero
	for i, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if p.DrawdownPct < minPct {
			minPct = p.DrawdownPct
			troughIdx = i
			troughPeak = peak
		}
		if v := peak.Sub(p.Equity); v.GreaterThan(maxValue) {
			maxValue = v
		}
	}

	dd := Drawdown{Pct: math.Abs(minPct), Value: maxValue}
	if troughIdx < 0 {
		return dd
	}
	for i := troughIdx + 1; i < len(curve); i++ {
		if curve[i].Equity.GreaterThanOrEqual(troughPeak) {
			n := i - troughIdx
			dd.RecoveryBars = &n
			break
		}
	}
	return dd
}

// IsWin classifies a trade under opts.
func IsWin(t schema.BacktestTrade, opts Options) bool {
	if t.NetPnL.IsZero() {
		return opts.BreakevenIsWin
	}
	return t.NetPnL.IsPositive()
}

// WinRate returns winners/total x 100, nil with no trades.
func WinRate(trades []schema.BacktestTrade, opts Options) *float64 {
	if len(trades) == 0 {
		return nil
	}
	var wins int
	for _, t := range trades {
		if IsWin(t, opts) {
			wins++
		}
	}
	v := float64(wins) / float64(len(trades)) * 100
	return &v
}

// ProfitFactor returns gross profit / |gross loss|, nil when there is no loss.
func ProfitFactor(trades []schema.BacktestTrade) *float64 {
	profit, loss := decimal.Zero, decimal.Zero
	for _, t := range trades {
		switch {
		case t.NetPnL.IsPositive():
			profit = profit.Add(t.NetPnL)
		case t.NetPnL.IsNegative():
			loss = loss.Add(t.NetPnL.Abs())
		}
	}
	if loss.IsZero() {
		return nil
	}
	v := profit.Div(loss).InexactFloat64()
	return &v
}

// WinLoss summarizes the size of winning and losing trades.
// AvgLoss and LargestLoss are negative or zero.
type WinLoss struct {
	AvgWin      decimal.Decimal
	AvgLoss     decimal.Decimal
	LargestWin  decimal.Decimal
	LargestLoss decimal.Decimal
}

// AvgWinLoss returns average and extreme trade P&L for each side.
func AvgWinLoss(trades []schema.BacktestTrade, opts Options) WinLoss {
	out := WinLoss{AvgWin: decimal.Zero, AvgLoss: decimal.Zero, LargestWin: decimal.Zero, LargestLoss: decimal.Zero}
	var winSum, lossSum decimal.Decimal
	var wins, losses int64
	for _, t := range trades {
		if IsWin(t, opts) {
			wins++
			winSum = winSum.Add(t.NetPnL)
			if t.NetPnL.GreaterThan(out.LargestWin) {
				out.LargestWin = t.NetPnL
			}
			continue
		}
		losses++
		lossSum = lossSum.Add(t.NetPnL)
		if t.NetPnL.LessThan(out.LargestLoss) {
			out.LargestLoss = t.NetPnL
		}
	}
	if wins > 0 {
		out.AvgWin = winSum.Div(decimal.NewFromInt(wins))
	}
	if losses > 0 {
		out.AvgLoss = lossSum.Div(decimal.NewFromInt(losses))
	}
	return out
}

// Streaks returns the longest runs of consecutive wins and losses.
func Streaks(trades []schema.BacktestTrade, opts Options) (maxWins, maxLosses int) {
	var wins, losses int
	for _, t := range trades {
		if IsWin(t, opts) {
			wins++
			losses = 0
			maxWins = max(maxWins, wins)
			continue
		}
		losses++
		wins = 0
		maxLosses = max(maxLosses, losses)
	}
	return maxWins, maxLosses
}
