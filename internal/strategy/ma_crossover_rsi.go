package strategy

import (
	"fmt"
	"math"

	"tradecore/internal/errors"
	"tradecore/internal/indicator"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// MACrossoverRSIConfig holds the typed parameters of the crossover strategy.
//
//   - EMAFast in [2,200], EMASlow in [3,400], EMAFast < EMASlow
//   - RSIPeriod in [2,100]
//   - RSIThreshold in (0,100]
type MACrossoverRSIConfig struct {
	EMAFast      int     `json:"emaFast"`
	EMASlow      int     `json:"emaSlow"`
	RSIPeriod    int     `json:"rsiPeriod"`
	RSIThreshold float64 `json:"rsiThreshold"`
}

// DefaultMACrossoverRSIConfig returns EMA 20/50 with RSI(14) at 70.
func DefaultMACrossoverRSIConfig() MACrossoverRSIConfig {
	return MACrossoverRSIConfig{
		EMAFast:      20,
		EMASlow:      50,
		RSIPeriod:    14,
		RSIThreshold: 70,
	}
}

// Validate checks parameter ranges.
func (c MACrossoverRSIConfig) Validate() error {
	switch {
	case c.EMAFast < 2 || c.EMAFast > 200:
		return errors.Wrapf(exception.ErrInvalidStrategyParams, "emaFast %d out of [2,200]", c.EMAFast)
	case c.EMASlow < 3 || c.EMASlow > 400:
		return errors.Wrapf(exception.ErrInvalidStrategyParams, "emaSlow %d out of [3,400]", c.EMASlow)
	case c.EMAFast >= c.EMASlow:
		return errors.Wrapf(exception.ErrInvalidStrategyParams, "emaFast %d must be less than emaSlow %d", c.EMAFast, c.EMASlow)
	case c.RSIPeriod < 2 || c.RSIPeriod > 100:
		return errors.Wrapf(exception.ErrInvalidStrategyParams, "rsiPeriod %d out of [2,100]", c.RSIPeriod)
	case !(c.RSIThreshold > 0 && c.RSIThreshold <= 100):
		return errors.Wrapf(exception.ErrInvalidStrategyParams, "rsiThreshold %v out of (0,100]", c.RSIThreshold)
	}
	return nil
}

// MACrossoverRSI buys on a bullish EMA crossover while RSI is below the
// threshold, and sells on a bearish crossover or when RSI is above it.
type MACrossoverRSI struct {
	cfg MACrossoverRSIConfig

	fastName string
	slowName string
	rsiName  string
}

// NewMACrossoverRSI validates cfg and builds the strategy.
func NewMACrossoverRSI(cfg MACrossoverRSIConfig) (*MACrossoverRSI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MACrossoverRSI{
		cfg:      cfg,
		fastName: fmt.Sprintf("ema_%d", cfg.EMAFast),
		slowName: fmt.Sprintf("ema_%d", cfg.EMASlow),
		rsiName:  fmt.Sprintf("rsi_%d", cfg.RSIPeriod),
	}, nil
}

func (s *MACrossoverRSI) Name() string { return KindMACrossoverRSI }

// Config returns the parameters the strategy was built with.
func (s *MACrossoverRSI) Config() MACrossoverRSIConfig { return s.cfg }

// WarmUpBars covers the slowest indicator plus one bar to detect a crossover.
func (s *MACrossoverRSI) WarmUpBars() int {
	return indicator.WarmUp([]int{s.cfg.EMAFast, s.cfg.EMASlow}, []int{s.cfg.RSIPeriod}) + 1
}

func (s *MACrossoverRSI) RequiredIndicators() []IndicatorSpec {
	return []IndicatorSpec{
		{Name: s.fastName, Kind: IndicatorEMA, Period: s.cfg.EMAFast},
		{Name: s.slowName, Kind: IndicatorEMA, Period: s.cfg.EMASlow},
		{Name: s.rsiName, Kind: IndicatorRSI, Period: s.cfg.RSIPeriod},
	}
}

func (s *MACrossoverRSI) GenerateSignal(history []schema.Bar, inPosition bool) schema.Signal {
	if len(history) < 2 {
		if len(history) == 0 {
			return schema.Signal{Kind: schema.SignalHold}
		}
		return schema.HoldSignal(history[0].Time, "HOLD: need two bars to detect crossover")
	}

	last := len(history) - 1
	now := history[last].Time
	closes := indicator.Closes(history)
	fast := indicator.EMA(closes, s.cfg.EMAFast)
	slow := indicator.EMA(closes, s.cfg.EMASlow)
	rsi := indicator.RSI(closes, s.cfg.RSIPeriod)

	curFast, curSlow, curRSI := fast[last], slow[last], rsi[last]
	prevFast, prevSlow := fast[last-1], slow[last-1]
	if anyNaN(curFast, curSlow, curRSI, prevFast, prevSlow) {
		return schema.HoldSignal(now, "HOLD: indicators still warming up")
	}

	values := map[string]float64{
		s.fastName: curFast,
		s.slowName: curSlow,
		s.rsiName:  curRSI,
		"close":    closes[last],
	}
	bullish := prevFast <= prevSlow && curFast > curSlow
	bearish := prevFast >= prevSlow && curFast < curSlow

	switch {
	case !inPosition && bullish && curRSI < s.cfg.RSIThreshold:
		return schema.Signal{
			Kind:       schema.SignalBuy,
			Time:       now,
			Reason:     fmt.Sprintf("BUY: EMA%d crossed above EMA%d with RSI(%.1f) < %v", s.cfg.EMAFast, s.cfg.EMASlow, curRSI, s.cfg.RSIThreshold),
			Indicators: values,
		}
	case inPosition && bearish:
		return schema.Signal{
			Kind:       schema.SignalSell,
			Time:       now,
			Reason:     fmt.Sprintf("SELL: EMA%d crossed below EMA%d", s.cfg.EMAFast, s.cfg.EMASlow),
			Indicators: values,
		}
	case inPosition && curRSI > s.cfg.RSIThreshold:
		return schema.Signal{
			Kind:       schema.SignalSell,
			Time:       now,
			Reason:     fmt.Sprintf("SELL: overbought RSI(%.1f) > %v", curRSI, s.cfg.RSIThreshold),
			Indicators: values,
		}
	}

	return schema.Signal{
		Kind:       schema.SignalHold,
		Time:       now,
		Reason:     "HOLD: no trading conditions met",
		Indicators: values,
	}
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
