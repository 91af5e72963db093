// Package sizing computes how many shares a trade may buy under fixed-fractional risk.
package sizing

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// System-wide limits. They are not configurable per call or per strategy.
const (
	RiskPercent        = 0.02
	MaxPositionPercent = 0.20
)

// CapReasonMaxPosition marks a result reduced to the position size limit.
const CapReasonMaxPosition = "MAX_POSITION_SIZE"

var (
	riskFraction     = decimal.NewFromFloat(RiskPercent)
	maxPositionRatio = decimal.NewFromFloat(MaxPositionPercent)
	hundred          = decimal.NewFromInt(100)
)

// Size returns the share quantity for a trade entering at entry with a
// protective stop at stop.
//
//	risk_per_share = |entry - stop|
//	raw            = floor(value x 2% / risk_per_share)
//	max            = floor(value x 20% / entry)
//	quantity       = min(raw, max)
//
// value is the net liquidation value of portfolio. A zero quantity is a
// valid result; the caller decides whether to skip the trade.
func Size(entry, stop decimal.Decimal, portfolio schema.PortfolioSnapshot) (schema.PositionSizeResult, error) {
	if !entry.IsPositive() || !stop.IsPositive() {
		return schema.PositionSizeResult{}, errors.Wrapf(exception.ErrInvalidInput, "entry %s stop %s must be > 0", entry, stop)
	}
	if entry.Equal(stop) {
		return schema.PositionSizeResult{}, errors.Wrapf(exception.ErrInvalidInput, "stop equals entry %s", entry)
	}

	value := portfolio.Value()
	riskPerShare := entry.Sub(stop).Abs()

	raw := floorQuantity(value.Mul(riskFraction).Div(riskPerShare))
	maxQty := floorQuantity(value.Mul(maxPositionRatio).Div(entry))

	result := schema.PositionSizeResult{Quantity: raw}
	if raw > maxQty {
		result.Quantity = maxQty
		result.Capped = true
		result.CapReason = CapReasonMaxPosition
	}

	qty := decimal.NewFromInt(result.Quantity)
	result.PositionValue = qty.Mul(entry)
	result.RiskAmount = qty.Mul(riskPerShare)
	result.RiskPercent = decimal.Zero
	result.PositionPercent = decimal.Zero
	if value.IsPositive() {
		result.RiskPercent = result.RiskAmount.Div(value).Mul(hundred)
		result.PositionPercent = result.PositionValue.Div(value).Mul(hundred)
	}
	return result, nil
}

// MaxQuantity is the largest quantity the position size limit allows at entry.
func MaxQuantity(entry decimal.Decimal, portfolio schema.PortfolioSnapshot) int64 {
	if !entry.IsPositive() {
		return 0
	}
	return floorQuantity(portfolio.Value().Mul(maxPositionRatio).Div(entry))
}

func floorQuantity(d decimal.Decimal) int64 {
	if !d.IsPositive() {
		return 0
	}
	return d.Floor().IntPart()
}
