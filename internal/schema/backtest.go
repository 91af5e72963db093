package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exit reasons recorded on simulated trades.
const (
	ExitReasonSignal     = "SIGNAL"
	ExitReasonStopLoss   = "STOP_LOSS"
	ExitReasonTakeProfit = "TAKE_PROFIT"
	ExitReasonEndOfTest  = "END_OF_BACKTEST"
)

// BacktestTrade is a closed round trip produced by the backtest engine.
// EntryPrice and ExitPrice are fill prices after slippage.
type BacktestTrade struct {
	Number          int                `json:"number"`
	EntryTime       time.Time          `json:"entryTime"`
	EntryPrice      decimal.Decimal    `json:"entryPrice"`
	ExitTime        time.Time          `json:"exitTime"`
	ExitPrice       decimal.Decimal    `json:"exitPrice"`
	Quantity        int64              `json:"quantity"`
	GrossPnL        decimal.Decimal    `json:"grossPnl"`
	Commission      decimal.Decimal    `json:"commission"`
	SlippageCost    decimal.Decimal    `json:"slippageCost"`
	NetPnL          decimal.Decimal    `json:"netPnl"`
	ReturnPct       float64            `json:"returnPct"`
	HoldingDays     int                `json:"holdingDays"`
	IsWinner        bool               `json:"isWinner"`
	EntryReason     string             `json:"entryReason"`
	ExitReason      string             `json:"exitReason"`
	EntryIndicators map[string]float64 `json:"entryIndicators,omitempty"`
}

// EquityPoint is the account state at a bar close. DrawdownPct is in percent and <= 0.
type EquityPoint struct {
	Time          time.Time       `json:"time"`
	Equity        decimal.Decimal `json:"equity"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"positionValue"`
	DrawdownPct   float64         `json:"drawdownPct"`
}
