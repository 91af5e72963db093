package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/halt"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func basePortfolio() schema.PortfolioSnapshot {
	return schema.PortfolioSnapshot{
		Cash:        d("100000"),
		BuyingPower: d("100000"),
		Positions:   map[string]schema.Position{},
	}
}

func sized(value string) schema.PositionSizeResult {
	return schema.PositionSizeResult{Quantity: 1, PositionValue: d(value)}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc      string
		halted    bool
		size      schema.PositionSizeResult
		portfolio func() schema.PortfolioSnapshot
		loss      schema.LossStreakState
		want      schema.RiskRule
	}{
		{
			desc:      "all rules pass",
			size:      sized("19950"),
			portfolio: basePortfolio,
			want:      schema.RuleNone,
		},
		{
			desc:      "halted wins over everything",
			halted:    true,
			size:      sized("90000"),
			portfolio: basePortfolio,
			loss:      schema.LossStreakState{Paused: true},
			want:      schema.RuleTradingHalted,
		},
		{
			desc: "paused reported before duplicate",
			size: sized("19950"),
			portfolio: func() schema.PortfolioSnapshot {
				p := basePortfolio()
				p.Positions["AAPL"] = schema.Position{StrategyID: "s1", Quantity: 10, EntryPrice: d("150")}
				return p
			},
			loss: schema.LossStreakState{StrategyID: "s1", ConsecutiveLosses: 3, Paused: true},
			want: schema.RuleDailyLossLimit,
		},
		{
			desc: "duplicate position",
			size: sized("19950"),
			portfolio: func() schema.PortfolioSnapshot {
				p := basePortfolio()
				p.Positions["AAPL"] = schema.Position{StrategyID: "s1", Quantity: 10, EntryPrice: d("150")}
				return p
			},
			want: schema.RuleDuplicatePosition,
		},
		{
			desc: "same symbol held by another strategy",
			size: sized("10000"),
			portfolio: func() schema.PortfolioSnapshot {
				p := basePortfolio()
				p.Cash = d("98500")
				p.Positions["AAPL"] = schema.Position{StrategyID: "s2", Quantity: 10, EntryPrice: d("150")}
				return p
			},
			want: schema.RuleNone,
		},
		{
			desc:      "position above 20 percent",
			size:      sized("20000.01"),
			portfolio: basePortfolio,
			want:      schema.RulePositionSizeLimit,
		},
		{
			desc:      "position at exactly 20 percent",
			size:      sized("20000"),
			portfolio: basePortfolio,
			want:      schema.RuleNone,
		},
		{
			desc: "insufficient buying power",
			size: sized("19950"),
			portfolio: func() schema.PortfolioSnapshot {
				p := basePortfolio()
				p.BuyingPower = d("10000")
				return p
			},
			want: schema.RuleSufficientCapital,
		},
		{
			desc: "strategy allocation above 50 percent",
			size: sized("19950"),
			portfolio: func() schema.PortfolioSnapshot {
				p := basePortfolio()
				p.Cash = d("60000")
				p.BuyingPower = d("60000")
				p.Positions["MSFT"] = schema.Position{StrategyID: "s1", Quantity: 100, EntryPrice: d("400"), MarketPrice: d("400")}
				return p
			},
			want: schema.RuleStrategyAllocation,
		},
		{
			desc: "other strategies do not count toward allocation",
			size: sized("19950"),
			portfolio: func() schema.PortfolioSnapshot {
				p := basePortfolio()
				p.Cash = d("60000")
				p.BuyingPower = d("60000")
				p.Positions["MSFT"] = schema.Position{StrategyID: "s2", Quantity: 100, EntryPrice: d("400"), MarketPrice: d("400")}
				return p
			},
			want: schema.RuleNone,
		},
		{
			desc: "empty portfolio",
			size: sized("1"),
			portfolio: func() schema.PortfolioSnapshot {
				return schema.PortfolioSnapshot{}
			},
			want: schema.RulePositionSizeLimit,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			flag := halt.New()
			if tc.halted {
				flag.Halt("major discrepancy")
			}
			m := NewManager(flag)

			res := m.Validate("s1", "AAPL", tc.size, tc.portfolio(), tc.loss)
			if res.FailedRule != tc.want {
				t.Fatalf("rule mismatch: got %s want %s (%s)", res.FailedRule, tc.want, res.Reason)
			}
			assert.Equal(t, tc.want == schema.RuleNone, res.Valid)
			if !res.Valid {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestValidateReasonMentionsNumbers(t *testing.T) {
	m := NewManager(halt.New())
	res := m.Validate("s1", "AAPL", sized("25000"), basePortfolio(), schema.LossStreakState{})
	require.False(t, res.Valid)
	assert.Equal(t, "position size exceeds 20% limit: 25.0% ($25000.00 / $100000.00)", res.Reason)
}

type fixedLoss map[string]schema.LossStreakState

func (f fixedLoss) Status(id string) schema.LossStreakState { return f[id] }

func TestEvaluate(t *testing.T) {
	metrics := obs.NewMetrics()
	m := NewManager(halt.New(),
		WithLossStatus(fixedLoss{"paused": {StrategyID: "paused", ConsecutiveLosses: 3, Paused: true}}),
		WithMetrics(metrics),
	)

	dec, err := m.Evaluate(Request{StrategyID: "s1", Symbol: "AAPL", EntryPrice: d("150"), StopPrice: d("145"), Portfolio: basePortfolio()})
	require.NoError(t, err)
	assert.True(t, dec.Approved())
	assert.Equal(t, int64(133), dec.Sizing.Quantity)

	dec, err = m.Evaluate(Request{StrategyID: "paused", Symbol: "AAPL", EntryPrice: d("150"), StopPrice: d("145"), Portfolio: basePortfolio()})
	require.NoError(t, err)
	assert.False(t, dec.Approved())
	assert.Equal(t, schema.RuleDailyLossLimit, dec.Validation.FailedRule)

	_, err = m.Evaluate(Request{StrategyID: "s1", Symbol: "AAPL", EntryPrice: d("150"), StopPrice: d("150"), Portfolio: basePortfolio()})
	assert.ErrorIs(t, err, exception.ErrInvalidInput)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.RiskRuleCounts[schema.RuleNone])
	assert.Equal(t, uint64(1), snap.RiskRuleCounts[schema.RuleDailyLossLimit])
	assert.Equal(t, uint64(2), snap.RiskEvalLatency.Count)
}

func TestEvaluateZeroQuantityNotApproved(t *testing.T) {
	m := NewManager(halt.New())
	p := schema.PortfolioSnapshot{Cash: d("1000"), BuyingPower: d("1000")}
	dec, err := m.Evaluate(Request{StrategyID: "s1", Symbol: "BRK.A", EntryPrice: d("600000"), StopPrice: d("590000"), Portfolio: p})
	require.NoError(t, err)
	assert.Zero(t, dec.Sizing.Quantity)
	assert.False(t, dec.Approved())
}
