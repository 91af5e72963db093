package strategy

import (
	"tradecore/internal/schema"
)

// IndicatorKind names a technical series a strategy reads.
type IndicatorKind string

const (
	IndicatorEMA IndicatorKind = "ema"
	IndicatorRSI IndicatorKind = "rsi"
)

// IndicatorSpec declares one indicator a strategy needs.
type IndicatorSpec struct {
	Name   string
	Kind   IndicatorKind
	Period int
}

// Strategy turns a bar history into a signal for the next bar.
//
// GenerateSignal receives only bars up to and including the current one.
// Implementations must be deterministic and must not retain history.
type Strategy interface {
	Name() string
	WarmUpBars() int
	RequiredIndicators() []IndicatorSpec
	GenerateSignal(history []schema.Bar, inPosition bool) schema.Signal
}

// Hold never trades.
type Hold struct{}

func (Hold) Name() string { return KindHold }

func (Hold) WarmUpBars() int { return 1 }

func (Hold) RequiredIndicators() []IndicatorSpec { return nil }

func (Hold) GenerateSignal(history []schema.Bar, _ bool) schema.Signal {
	if len(history) == 0 {
		return schema.Signal{Kind: schema.SignalHold}
	}
	return schema.HoldSignal(history[len(history)-1].Time, "HOLD: passive strategy")
}
