// Package ledger persists live trades, backtest runs and loss-streak state
// with gorm.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// Trade statuses.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Trade is one live position lot. Recovered trades were created by
// reconciliation, not by the system's own order flow.
type Trade struct {
	ID               uint64           `gorm:"primaryKey;autoIncrement"`
	StrategyID       string           `gorm:"type:varchar(64);not null;index"`
	Symbol           string           `gorm:"type:varchar(32);not null;index"`
	Quantity         int64            `gorm:"not null"`
	EntryPrice       decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	EntryTime        time.Time        `gorm:"not null"`
	ExitPrice        *decimal.Decimal `gorm:"type:numeric(30,10)"`
	ExitTime         *time.Time
	NetPnL           *decimal.Decimal `gorm:"column:net_pnl;type:numeric(30,10)"`
	Status           string           `gorm:"type:varchar(10);not null;index"`
	Recovered        bool             `gorm:"not null;default:false"`
	ExitPriceUnknown bool             `gorm:"not null;default:false"`
	CreatedAt        time.Time        `gorm:"autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}

// Outcome converts a closed trade into the loss detector input.
func (t Trade) Outcome() schema.TradeOutcome {
	out := schema.TradeOutcome{StrategyID: t.StrategyID, Symbol: t.Symbol, NetPnL: decimal.Zero}
	if t.NetPnL != nil {
		out.NetPnL = *t.NetPnL
	}
	if t.ExitTime != nil {
		out.ClosedAt = *t.ExitTime
	}
	return out
}

// BacktestRun is the header row of a persisted backtest.
type BacktestRun struct {
	ID                  uint64          `gorm:"primaryKey;autoIncrement"`
	SchemaVersion       uint16          `gorm:"not null"`
	Symbol              string          `gorm:"type:varchar(32);not null;index"`
	Strategy            string          `gorm:"type:varchar(64);not null;index"`
	Start               time.Time       `gorm:"column:start_at;not null"`
	End                 time.Time       `gorm:"column:end_at;not null"`
	BarsProcessed       int             `gorm:"not null"`
	InitialCapital      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FinalEquity         decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TotalReturnPct      float64
	AnnualizedReturnPct float64
	SharpeRatio         *float64
	MaxDrawdownPct      float64
	WinRatePct          *float64
	ProfitFactor        *float64
	TotalTrades         int
	Config              string    `gorm:"type:text"`
	Report              string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"autoCreateTime;index"`

	Trades []BacktestTradeRecord `gorm:"foreignKey:RunID"`
	Equity []EquityRecord        `gorm:"foreignKey:RunID"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}

// BacktestTradeRecord is one simulated round trip of a run.
type BacktestTradeRecord struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement"`
	RunID        uint64          `gorm:"not null;index"`
	Number       int             `gorm:"not null"`
	EntryTime    time.Time       `gorm:"not null"`
	EntryPrice   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ExitTime     time.Time       `gorm:"not null"`
	ExitPrice    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Quantity     int64           `gorm:"not null"`
	GrossPnL     decimal.Decimal `gorm:"column:gross_pnl;type:numeric(30,10)"`
	Commission   decimal.Decimal `gorm:"type:numeric(30,10)"`
	SlippageCost decimal.Decimal `gorm:"type:numeric(30,10)"`
	NetPnL       decimal.Decimal `gorm:"column:net_pnl;type:numeric(30,10)"`
	ReturnPct    float64
	HoldingDays  int
	IsWinner     bool
	EntryReason  string `gorm:"type:text"`
	ExitReason   string `gorm:"type:varchar(20)"`
}

func (BacktestTradeRecord) TableName() string {
	return "backtest_trades"
}

// EquityRecord is one equity curve point of a run.
type EquityRecord struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	RunID         uint64          `gorm:"not null;index"`
	Time          time.Time       `gorm:"not null"`
	Equity        decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Cash          decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PositionValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	DrawdownPct   float64
}

func (EquityRecord) TableName() string {
	return "backtest_equity"
}

// StrategyLossState persists the loss detector state of one strategy.
type StrategyLossState struct {
	StrategyID        string    `gorm:"primaryKey;type:varchar(64)"`
	ConsecutiveLosses int       `gorm:"not null"`
	Paused            bool      `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (StrategyLossState) TableName() string {
	return "strategy_loss_states"
}

const haltRowID uint8 = 1

// HaltState is the single row holding the trading halt flag.
type HaltState struct {
	ID        uint8  `gorm:"primaryKey;autoIncrement:false"`
	Halted    bool   `gorm:"not null"`
	Reason    string `gorm:"type:text"`
	Since     *time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (HaltState) TableName() string {
	return "halt_state"
}

// Models lists every table managed by the repository.
func Models() []any {
	return []any{&Trade{}, &BacktestRun{}, &BacktestTradeRecord{}, &EquityRecord{}, &StrategyLossState{}, &HaltState{}}
}
