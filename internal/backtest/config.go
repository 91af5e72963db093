package backtest

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/metrics"
	"tradecore/pkg/exception"
)

// Config defines the simulation costs and sizing.
// StopLossPct and TakeProfitPct are disabled when zero.
type Config struct {
	InitialCapital  decimal.Decimal `json:"initialCapital"`
	SlippagePct     decimal.Decimal `json:"slippagePct"`
	Commission      decimal.Decimal `json:"commission"`
	PositionSizePct decimal.Decimal `json:"positionSizePct"`
	StopLossPct     decimal.Decimal `json:"stopLossPct"`
	TakeProfitPct   decimal.Decimal `json:"takeProfitPct"`
	Metrics         metrics.Options `json:"metrics"`
}

// DefaultConfig returns $100,000 capital, 0.1% slippage, $1 per order and 95% of cash per entry.
func DefaultConfig() Config {
	return Config{
		InitialCapital:  decimal.NewFromInt(100_000),
		SlippagePct:     decimal.RequireFromString("0.001"),
		Commission:      decimal.NewFromInt(1),
		PositionSizePct: decimal.RequireFromString("0.95"),
	}
}

// Validate checks the config ranges.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	switch {
	case !c.InitialCapital.IsPositive():
		return errors.Wrapf(exception.ErrInvalidBacktestConfig, "initial capital %s must be > 0", c.InitialCapital)
	case c.SlippagePct.IsNegative() || c.SlippagePct.GreaterThanOrEqual(one):
		return errors.Wrapf(exception.ErrInvalidBacktestConfig, "slippage %s out of [0,1)", c.SlippagePct)
	case c.Commission.IsNegative():
		return errors.Wrapf(exception.ErrInvalidBacktestConfig, "commission %s must be >= 0", c.Commission)
	case !c.PositionSizePct.IsPositive() || c.PositionSizePct.GreaterThan(one):
		return errors.Wrapf(exception.ErrInvalidBacktestConfig, "position size %s out of (0,1]", c.PositionSizePct)
	case c.StopLossPct.IsNegative() || c.StopLossPct.GreaterThanOrEqual(one):
		return errors.Wrapf(exception.ErrInvalidBacktestConfig, "stop loss %s out of [0,1)", c.StopLossPct)
	case c.TakeProfitPct.IsNegative():
		return errors.Wrapf(exception.ErrInvalidBacktestConfig, "take profit %s must be >= 0", c.TakeProfitPct)
	}
	return nil
}
