package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"tradecore/internal/schema"
)

// WriteTradesCSV writes one row per closed trade.
func WriteTradesCSV(w io.Writer, trades []schema.BacktestTrade) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"number", "entry_time", "entry_price", "exit_time", "exit_price", "quantity",
		"gross_pnl", "commission", "slippage_cost", "net_pnl", "return_pct", "holding_days",
		"is_winner", "exit_reason",
	})
	for _, t := range trades {
		_ = cw.Write([]string{
			strconv.Itoa(t.Number),
			t.EntryTime.Format(time.RFC3339), t.EntryPrice.String(),
			t.ExitTime.Format(time.RFC3339), t.ExitPrice.String(),
			strconv.FormatInt(t.Quantity, 10),
			t.GrossPnL.String(), t.Commission.String(), t.SlippageCost.String(), t.NetPnL.String(),
			formatF(t.ReturnPct), strconv.Itoa(t.HoldingDays),
			strconv.FormatBool(t.IsWinner), t.ExitReason,
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes one row per equity point.
func WriteEquityCSV(w io.Writer, curve []schema.EquityPoint) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"time", "equity", "cash", "position_value", "drawdown_pct"})
	for _, p := range curve {
		_ = cw.Write([]string{
			p.Time.Format(time.RFC3339), p.Equity.String(), p.Cash.String(),
			p.PositionValue.String(), formatF(p.DrawdownPct),
		})
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
