package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a holding inside a portfolio snapshot.
type Position struct {
	StrategyID  string          `json:"strategyId"`
	Quantity    int64           `json:"quantity"`
	EntryPrice  decimal.Decimal `json:"entryPrice"`
	MarketPrice decimal.Decimal `json:"marketPrice"`
}

// Mark returns the price used to value the position.
// The entry price is used when no market price is known.
func (p Position) Mark() decimal.Decimal {
	if p.MarketPrice.IsPositive() {
		return p.MarketPrice
	}
	return p.EntryPrice
}

// MarketValue returns quantity x mark.
func (p Position) MarketValue() decimal.Decimal {
	return p.Mark().Mul(decimal.NewFromInt(p.Quantity))
}

// CostBasis returns quantity x entry price.
func (p Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// PortfolioSnapshot is a read-only view of the account handed to sizing and risk.
type PortfolioSnapshot struct {
	Cash        decimal.Decimal     `json:"cash"`
	BuyingPower decimal.Decimal     `json:"buyingPower"`
	Positions   map[string]Position `json:"positions"`
}

// Value returns the net liquidation value: cash plus market value of positions.
func (p PortfolioSnapshot) Value() decimal.Decimal {
	total := p.Cash
	for _, pos := range p.Positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

// Holds reports whether the strategy already has an open position in symbol.
func (p PortfolioSnapshot) Holds(strategyID, symbol string) bool {
	pos, ok := p.Positions[symbol]
	return ok && pos.Quantity > 0 && pos.StrategyID == strategyID
}

// StrategyAllocation returns the capital committed to a strategy at entry prices.
func (p PortfolioSnapshot) StrategyAllocation(strategyID string) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		if pos.StrategyID != strategyID || pos.Quantity <= 0 {
			continue
		}
		total = total.Add(pos.CostBasis())
	}
	return total
}

// PositionSizeResult is the output of the position sizer.
type PositionSizeResult struct {
	Quantity        int64           `json:"quantity"`
	PositionValue   decimal.Decimal `json:"positionValue"`
	RiskAmount      decimal.Decimal `json:"riskAmount"`
	RiskPercent     decimal.Decimal `json:"riskPercent"`
	PositionPercent decimal.Decimal `json:"positionPercent"`
	Capped          bool            `json:"capped"`
	CapReason       string          `json:"capReason,omitempty"`
}

// RiskRule identifies the validation rule that rejected a trade.
type RiskRule uint16

const (
	RuleNone RiskRule = iota
	RuleTradingHalted
	RuleDailyLossLimit
	RuleDuplicatePosition
	RulePositionSizeLimit
	RuleSufficientCapital
	RuleStrategyAllocation
)

func (r RiskRule) String() string {
	switch r {
	case RuleTradingHalted:
		return "trading_halted"
	case RuleDailyLossLimit:
		return "daily_loss_limit"
	case RuleDuplicatePosition:
		return "duplicate_position"
	case RulePositionSizeLimit:
		return "position_size_limit"
	case RuleSufficientCapital:
		return "sufficient_capital"
	case RuleStrategyAllocation:
		return "strategy_allocation"
	default:
		return "none"
	}
}

// ValidationResult is one decision per trade attempt.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	FailedRule RiskRule `json:"failedRule"`
	Reason     string   `json:"reason,omitempty"`
}

// LossStreakState is the loss tracking state of one strategy.
type LossStreakState struct {
	StrategyID        string `json:"strategyId"`
	ConsecutiveLosses int    `json:"consecutiveLosses"`
	Paused            bool   `json:"paused"`
}

// TradeOutcome is a closed trade reported to the loss detector.
type TradeOutcome struct {
	StrategyID string          `json:"strategyId"`
	Symbol     string          `json:"symbol"`
	NetPnL     decimal.Decimal `json:"netPnl"`
	ClosedAt   time.Time       `json:"closedAt"`
}
