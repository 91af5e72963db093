package bus

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

func TestQueue(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryPublish(schema.TradeOutcome{StrategyID: "s1", NetPnL: decimal.NewFromInt(-50)}))
	require.NoError(t, q.TryPublish(schema.TradeOutcome{StrategyID: "s1", NetPnL: decimal.NewFromInt(-30)}))
	assert.ErrorIs(t, q.TryPublish(schema.TradeOutcome{StrategyID: "s1"}), ErrQueueFull)

	q.Close()
	assert.ErrorIs(t, q.TryPublish(schema.TradeOutcome{StrategyID: "s1"}), ErrQueueClosed)

	var got []string
	q.Run(t.Context(), func(o schema.TradeOutcome) {
		got = append(got, o.NetPnL.String())
	})
	assert.Equal(t, []string{"-50", "-30"}, got)
}

func TestQueueCloseTwice(t *testing.T) {
	q := NewQueue(0)
	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(schema.TradeOutcome{}), ErrQueueClosed)
}
