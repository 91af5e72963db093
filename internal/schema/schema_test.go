package schema

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPortfolioSnapshot(t *testing.T) {
	p := PortfolioSnapshot{
		Cash:        d("10000"),
		BuyingPower: d("10000"),
		Positions: map[string]Position{
			"AAPL": {StrategyID: "ma", Quantity: 10, EntryPrice: d("150"), MarketPrice: d("160")},
			"MSFT": {StrategyID: "ma", Quantity: 5, EntryPrice: d("400")},
			"NVDA": {StrategyID: "breakout", Quantity: 2, EntryPrice: d("800"), MarketPrice: d("900")},
			"TSLA": {StrategyID: "ma", Quantity: 0, EntryPrice: d("200")},
		},
	}

	// 10000 + 1600 + 2000 + 1800
	assert.True(t, d("15400").Equal(p.Value()), p.Value().String())
	assert.True(t, p.Holds("ma", "AAPL"))
	assert.False(t, p.Holds("breakout", "AAPL"))
	assert.False(t, p.Holds("ma", "TSLA"))
	assert.False(t, p.Holds("ma", "GOOG"))
	// entry prices, not marks: 1500 + 2000
	assert.True(t, d("3500").Equal(p.StrategyAllocation("ma")))
	assert.True(t, p.StrategyAllocation("none").IsZero())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "BUY", SignalBuy.String())
	assert.Equal(t, "HOLD", SignalKind(99).String())
	assert.Equal(t, "strategy_allocation", RuleStrategyAllocation.String())
	assert.Equal(t, "none", RuleNone.String())
	assert.Equal(t, "quantity_mismatch", DiscrepancyQuantityMismatch.String())
	assert.Equal(t, int64(-3), Discrepancy{BrokerQuantity: 2, LedgerQuantity: 5}.QuantityDifference())
}
