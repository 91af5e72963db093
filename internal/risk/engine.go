// Package risk gates every order with a fixed, ordered set of capital
// preservation rules.
//
// Callers must hold the portfolio record locked from Validate until the order
// is submitted, so that two evaluations for one strategy cannot both pass the
// allocation check against the same capital.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/halt"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/internal/sizing"
)

// MaxStrategyAllocationPercent caps the capital committed to one strategy.
const MaxStrategyAllocationPercent = 0.50

var (
	maxPositionRatio   = decimal.NewFromFloat(sizing.MaxPositionPercent)
	maxAllocationRatio = decimal.NewFromFloat(MaxStrategyAllocationPercent)
	hundred            = decimal.NewFromInt(100)
)

// LossStatus reports the loss streak state of a strategy.
type LossStatus interface {
	Status(strategyID string) schema.LossStreakState
}

// Manager validates trades. It holds no per-trade state and is safe for
// concurrent use.
type Manager struct {
	halted  *halt.Flag
	losses  LossStatus
	metrics *obs.Metrics
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLossStatus wires the loss detector used by Evaluate.
func WithLossStatus(s LossStatus) Option {
	return func(m *Manager) { m.losses = s }
}

// WithMetrics records decisions into metrics.
func WithMetrics(metrics *obs.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a manager reading the shared halt flag.
func NewManager(halted *halt.Flag, opts ...Option) *Manager {
	m := &Manager{halted: halted}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate runs the rules in order and stops at the first failure:
// trading halted, daily loss limit, duplicate position, position size limit,
// sufficient capital, strategy allocation.
func (m *Manager) Validate(strategyID, symbol string, size schema.PositionSizeResult, portfolio schema.PortfolioSnapshot, loss schema.LossStreakState) schema.ValidationResult {
	start := time.Now()
	result := m.validate(strategyID, symbol, size, portfolio, loss)
	m.metrics.ObserveValidation(result.FailedRule, time.Since(start))
	if !result.Valid {
		logs.Errorf("risk: reject strategy %s symbol %s, rule: %s, reason: %s", strategyID, symbol, result.FailedRule, result.Reason)
	}
	return result
}

func (m *Manager) validate(strategyID, symbol string, size schema.PositionSizeResult, portfolio schema.PortfolioSnapshot, loss schema.LossStreakState) schema.ValidationResult {
	if m.halted.Halted() {
		return reject(schema.RuleTradingHalted, "trading halted: "+m.halted.State().Reason)
	}

	if loss.Paused {
		return reject(schema.RuleDailyLossLimit, fmt.Sprintf("strategy %s paused after %d consecutive losses", strategyID, loss.ConsecutiveLosses))
	}

	if pos, ok := portfolio.Positions[symbol]; ok && portfolio.Holds(strategyID, symbol) {
		return reject(schema.RuleDuplicatePosition, fmt.Sprintf("duplicate position: already holding %d %s", pos.Quantity, symbol))
	}

	value := portfolio.Value()
	if !value.IsPositive() {
		return reject(schema.RulePositionSizeLimit, fmt.Sprintf("portfolio value %s is not positive", value.StringFixed(2)))
	}

	if size.PositionValue.GreaterThan(value.Mul(maxPositionRatio)) {
		return reject(schema.RulePositionSizeLimit, fmt.Sprintf("position size exceeds 20%% limit: %s%% ($%s / $%s)",
			percent(size.PositionValue, value), size.PositionValue.StringFixed(2), value.StringFixed(2)))
	}

	if size.PositionValue.GreaterThan(portfolio.BuyingPower) {
		return reject(schema.RuleSufficientCapital, fmt.Sprintf("insufficient capital: need $%s, have $%s",
			size.PositionValue.StringFixed(2), portfolio.BuyingPower.StringFixed(2)))
	}

	allocation := portfolio.StrategyAllocation(strategyID).Add(size.PositionValue)
	if allocation.GreaterThan(value.Mul(maxAllocationRatio)) {
		return reject(schema.RuleStrategyAllocation, fmt.Sprintf("strategy allocation exceeds 50%% limit: %s%% ($%s / $%s)",
			percent(allocation, value), allocation.StringFixed(2), value.StringFixed(2)))
	}

	return schema.ValidationResult{Valid: true, FailedRule: schema.RuleNone}
}

// Request is a trade candidate before sizing.
type Request struct {
	StrategyID string
	Symbol     string
	EntryPrice decimal.Decimal
	StopPrice  decimal.Decimal
	Portfolio  schema.PortfolioSnapshot
}

// Decision is the sizing and validation outcome of a Request.
type Decision struct {
	Sizing     schema.PositionSizeResult
	Validation schema.ValidationResult
}

// Approved reports whether an order should be submitted.
func (d Decision) Approved() bool {
	return d.Validation.Valid && d.Sizing.Quantity > 0
}

// Evaluate sizes the request and validates it against the current loss state.
// Degenerate prices fail sizing and are returned as an error before any rule runs.
func (m *Manager) Evaluate(req Request) (Decision, error) {
	size, err := sizing.Size(req.EntryPrice, req.StopPrice, req.Portfolio)
	if err != nil {
		return Decision{}, err
	}
	loss := schema.LossStreakState{StrategyID: req.StrategyID}
	if m.losses != nil {
		loss = m.losses.Status(req.StrategyID)
	}
	return Decision{
		Sizing:     size,
		Validation: m.Validate(req.StrategyID, req.Symbol, size, req.Portfolio, loss),
	}, nil
}

func reject(rule schema.RiskRule, reason string) schema.ValidationResult {
	return schema.ValidationResult{Valid: false, FailedRule: rule, Reason: reason}
}

func percent(part, whole decimal.Decimal) string {
	return part.Div(whole).Mul(hundred).StringFixed(1)
}
