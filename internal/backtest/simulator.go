package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/metrics"
	"tradecore/internal/schema"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

type openPosition struct {
	qty        decimal.Decimal
	quantity   int64
	entryQuote decimal.Decimal
	entryFill  decimal.Decimal
	entryTime  time.Time
	reason     string
	indicators map[string]float64
}

// simulator is the accumulator of a single run.
type simulator struct {
	cfg  Config
	cash decimal.Decimal
	peak decimal.Decimal
	open *openPosition

	trades []schema.BacktestTrade
	curve  []schema.EquityPoint
}

func newSimulator(cfg Config) *simulator {
	return &simulator{
		cfg:  cfg,
		cash: cfg.InitialCapital,
		peak: cfg.InitialCapital,
	}
}

func (s *simulator) execute(sig schema.Signal, bar schema.Bar) {
	switch {
	case sig.Kind == schema.SignalBuy && s.open == nil:
		s.enter(bar.Open, bar.Time, sig)
	case sig.Kind == schema.SignalSell && s.open != nil:
		s.exit(bar.Open, bar.Time, schema.ExitReasonSignal)
	}
}

// enter buys floor(cash x size% / slipped price) shares at quote.
func (s *simulator) enter(quote decimal.Decimal, at time.Time, sig schema.Signal) {
	if !quote.IsPositive() {
		return
	}
	fill := quote.Mul(one.Add(s.cfg.SlippagePct))
	budget := s.cash.Mul(s.cfg.PositionSizePct)
	quantity := budget.Div(fill).Floor().IntPart()
	if quantity <= 0 {
		return
	}
	qty := decimal.NewFromInt(quantity)
	cost := fill.Mul(qty).Add(s.cfg.Commission)
	if cost.GreaterThan(s.cash) {
		return
	}

	s.cash = s.cash.Sub(cost)
	s.open = &openPosition{
		qty:        qty,
		quantity:   quantity,
		entryQuote: quote,
		entryFill:  fill,
		entryTime:  at,
		reason:     sig.Reason,
		indicators: sig.Indicators,
	}
}

// exit sells the open position at quote and records the trade.
func (s *simulator) exit(quote decimal.Decimal, at time.Time, reason string) {
	p := s.open
	if p == nil {
		return
	}
	fill := quote.Mul(one.Sub(s.cfg.SlippagePct))
	s.cash = s.cash.Add(fill.Mul(p.qty)).Sub(s.cfg.Commission)

	gross := quote.Sub(p.entryQuote).Mul(p.qty)
	commission := s.cfg.Commission.Mul(decimal.NewFromInt(2))
	slippage := p.entryQuote.Add(quote).Mul(p.qty).Mul(s.cfg.SlippagePct)
	net := gross.Sub(commission).Sub(slippage)

	trade := schema.BacktestTrade{
		Number:          len(s.trades) + 1,
		EntryTime:       p.entryTime,
		EntryPrice:      p.entryFill,
		ExitTime:        at,
		ExitPrice:       fill,
		Quantity:        p.quantity,
		GrossPnL:        gross,
		Commission:      commission,
		SlippageCost:    slippage,
		NetPnL:          net,
		ReturnPct:       fill.Div(p.entryFill).Sub(one).Mul(hundred).InexactFloat64(),
		HoldingDays:     int(at.Sub(p.entryTime).Hours() / 24),
		EntryReason:     p.reason,
		ExitReason:      reason,
		EntryIndicators: p.indicators,
	}
	trade.IsWinner = metrics.IsWin(trade, s.cfg.Metrics)
	s.trades = append(s.trades, trade)
	s.open = nil
}

// protectiveExit closes the position when the bar touches the stop or the
// target. A bar that gaps through a level fills at the open.
func (s *simulator) protectiveExit(bar schema.Bar) bool {
	p := s.open
	if p == nil {
		return false
	}
	if s.cfg.StopLossPct.IsPositive() {
		stop := p.entryFill.Mul(one.Sub(s.cfg.StopLossPct))
		if bar.Low.LessThanOrEqual(stop) {
			s.exit(decimal.Min(stop, bar.Open), bar.Time, schema.ExitReasonStopLoss)
			return true
		}
	}
	if s.cfg.TakeProfitPct.IsPositive() {
		target := p.entryFill.Mul(one.Add(s.cfg.TakeProfitPct))
		if bar.High.GreaterThanOrEqual(target) {
			s.exit(decimal.Max(target, bar.Open), bar.Time, schema.ExitReasonTakeProfit)
			return true
		}
	}
	return false
}

// mark appends the equity point at the bar close.
func (s *simulator) mark(bar schema.Bar) {
	positionValue := decimal.Zero
	if s.open != nil {
		positionValue = bar.Close.Mul(s.open.qty)
	}
	equity := s.cash.Add(positionValue)
	if equity.GreaterThan(s.peak) {
		s.peak = equity
	}
	var dd float64
	if s.peak.IsPositive() {
		dd = equity.Sub(s.peak).Div(s.peak).Mul(hundred).InexactFloat64()
	}
	s.curve = append(s.curve, schema.EquityPoint{
		Time:          bar.Time,
		Equity:        equity,
		Cash:          s.cash,
		PositionValue: positionValue,
		DrawdownPct:   dd,
	})
}
