package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecore/internal/backtest"
	"tradecore/internal/errors"
	"tradecore/internal/halt"
	"tradecore/internal/schema"
	"tradecore/internal/state"
	"tradecore/pkg/exception"
)

// RecoveredStrategyID owns trades created by reconciliation.
const RecoveredStrategyID = "reconciliation"

// Repository is the gorm-backed ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates every ledger table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(Models()...)
}

// OpenTrade records a new open lot.
func (r *Repository) OpenTrade(ctx context.Context, strategyID, symbol string, qty int64, price decimal.Decimal, at time.Time) (Trade, error) {
	if qty <= 0 || !price.IsPositive() {
		return Trade{}, errors.Wrapf(exception.ErrInvalidArgument, "open %s: qty %d @ %s", symbol, qty, price)
	}
	t := Trade{
		StrategyID: strategyID,
		Symbol:     symbol,
		Quantity:   qty,
		EntryPrice: price,
		EntryTime:  at.UTC(),
		Status:     StatusOpen,
	}
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return Trade{}, errors.Wrap(err, "create trade")
	}
	return t, nil
}

// CloseTrade closes an open lot at exitPrice and records its net P&L.
func (r *Repository) CloseTrade(ctx context.Context, id uint64, exitPrice decimal.Decimal, at time.Time) (Trade, error) {
	var t Trade
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status = ?", id, StatusOpen).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(exception.ErrNoOpenTrade, "trade %d", id)
			}
			return err
		}
		exitAt := at.UTC()
		pnl := exitPrice.Sub(t.EntryPrice).Mul(decimal.NewFromInt(t.Quantity))
		t.ExitPrice = &exitPrice
		t.ExitTime = &exitAt
		t.NetPnL = &pnl
		t.Status = StatusClosed
		return tx.Save(&t).Error
	})
	if err != nil {
		return Trade{}, err
	}
	return t, nil
}

// OpenTrades returns open lots ordered by id.
func (r *Repository) OpenTrades(ctx context.Context) ([]Trade, error) {
	var trades []Trade
	if err := r.db.WithContext(ctx).Where("status = ?", StatusOpen).Order("id").Find(&trades).Error; err != nil {
		return nil, errors.Wrap(err, "open trades")
	}
	return trades, nil
}

// Book replays the open lots as buy fills. Each symbol carries the
// quantity-weighted entry price, the first lot's owner, and is marked at its
// latest fill.
func (r *Repository) Book(ctx context.Context) (*state.Book, error) {
	trades, err := r.OpenTrades(ctx)
	if err != nil {
		return nil, err
	}
	book := state.NewBook()
	for _, t := range trades {
		_, err := book.ApplyFill(state.Fill{
			StrategyID: t.StrategyID,
			Symbol:     t.Symbol,
			Side:       state.SideBuy,
			Qty:        t.Quantity,
			Price:      t.EntryPrice,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "replay trade %d", t.ID)
		}
	}
	return book, nil
}

// Positions aggregates open lots per symbol.
func (r *Repository) Positions(ctx context.Context) (map[string]schema.Position, error) {
	book, err := r.Book(ctx)
	if err != nil {
		return nil, err
	}
	return book.Positions(ctx)
}

// CreateRecoveredTrade opens a lot for a position found only at the broker.
func (r *Repository) CreateRecoveredTrade(ctx context.Context, symbol string, qty int64, price decimal.Decimal) error {
	if qty <= 0 || !price.IsPositive() {
		return errors.Wrapf(exception.ErrInvalidArgument, "recover %s: qty %d @ %s", symbol, qty, price)
	}
	t := Trade{
		StrategyID: RecoveredStrategyID,
		Symbol:     symbol,
		Quantity:   qty,
		EntryPrice: price,
		EntryTime:  time.Now().UTC(),
		Status:     StatusOpen,
		Recovered:  true,
	}
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return errors.Wrap(err, "create recovered trade")
	}
	return nil
}

// CloseUnknownExit closes every open lot of symbol without an exit price.
func (r *Repository) CloseUnknownExit(ctx context.Context, symbol string) (int, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Trade{}).
		Where("symbol = ? AND status = ?", symbol, StatusOpen).
		Updates(map[string]any{
			"status":             StatusClosed,
			"exit_time":          now,
			"exit_price_unknown": true,
		})
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "close %s", symbol)
	}
	return int(res.RowsAffected), nil
}

// SaveBacktest stores a run with its trades and equity curve in one
// transaction and returns the run id.
func (r *Repository) SaveBacktest(ctx context.Context, res backtest.Result) (uint64, error) {
	cfg, err := sonic.MarshalString(res.Config)
	if err != nil {
		return 0, errors.Wrap(err, "marshal config")
	}
	report, err := sonic.MarshalString(res.Report)
	if err != nil {
		return 0, errors.Wrap(err, "marshal report")
	}

	run := BacktestRun{
		SchemaVersion:       schema.SchemaVersion,
		Symbol:              res.Symbol,
		Strategy:            res.Strategy,
		Start:               res.Start.UTC(),
		End:                 res.End.UTC(),
		BarsProcessed:       res.BarsProcessed,
		InitialCapital:      res.Config.InitialCapital,
		FinalEquity:         res.FinalEquity(),
		TotalReturnPct:      res.Report.TotalReturnPct,
		AnnualizedReturnPct: res.Report.AnnualizedReturnPct,
		SharpeRatio:         res.Report.SharpeRatio,
		MaxDrawdownPct:      res.Report.MaxDrawdownPct,
		WinRatePct:          res.Report.WinRatePct,
		ProfitFactor:        res.Report.ProfitFactor,
		TotalTrades:         len(res.Trades),
		Config:              cfg,
		Report:              report,
	}
	for _, t := range res.Trades {
		run.Trades = append(run.Trades, BacktestTradeRecord{
			Number:       t.Number,
			EntryTime:    t.EntryTime.UTC(),
			EntryPrice:   t.EntryPrice,
			ExitTime:     t.ExitTime.UTC(),
			ExitPrice:    t.ExitPrice,
			Quantity:     t.Quantity,
			GrossPnL:     t.GrossPnL,
			Commission:   t.Commission,
			SlippageCost: t.SlippageCost,
			NetPnL:       t.NetPnL,
			ReturnPct:    t.ReturnPct,
			HoldingDays:  t.HoldingDays,
			IsWinner:     t.IsWinner,
			EntryReason:  t.EntryReason,
			ExitReason:   t.ExitReason,
		})
	}
	for _, p := range res.EquityCurve {
		run.Equity = append(run.Equity, EquityRecord{
			Time:          p.Time.UTC(),
			Equity:        p.Equity,
			Cash:          p.Cash,
			PositionValue: p.PositionValue,
			DrawdownPct:   p.DrawdownPct,
		})
	}

	err = r.db.WithContext(ctx).Session(&gorm.Session{CreateBatchSize: 500}).Create(&run).Error
	if err != nil {
		return 0, errors.Wrap(err, "save backtest")
	}
	logs.Infof("ledger: saved backtest %d, %s %s, %d trades", run.ID, run.Symbol, run.Strategy, run.TotalTrades)
	return run.ID, nil
}

// Backtest loads a run with its trades and equity curve.
func (r *Repository) Backtest(ctx context.Context, id uint64) (BacktestRun, error) {
	var run BacktestRun
	err := r.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("number") }).
		Preload("Equity", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&run, id).Error
	if err != nil {
		return BacktestRun{}, errors.Wrapf(err, "backtest %d", id)
	}
	return run, nil
}

// LoadLossStates returns every persisted loss state sorted by strategy.
func (r *Repository) LoadLossStates() ([]schema.LossStreakState, error) {
	var rows []StrategyLossState
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load loss states")
	}
	out := make([]schema.LossStreakState, 0, len(rows))
	for _, row := range rows {
		out = append(out, schema.LossStreakState{
			StrategyID:        row.StrategyID,
			ConsecutiveLosses: row.ConsecutiveLosses,
			Paused:            row.Paused,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out, nil
}

// SaveLossState upserts one strategy's loss state.
func (r *Repository) SaveLossState(st schema.LossStreakState) error {
	row := StrategyLossState{
		StrategyID:        st.StrategyID,
		ConsecutiveLosses: st.ConsecutiveLosses,
		Paused:            st.Paused,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "strategy_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"consecutive_losses", "paused", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrapf(err, "save loss state %s", st.StrategyID)
	}
	return nil
}

// LoadHalt returns the persisted trading halt, or a cleared state when none
// was ever written.
func (r *Repository) LoadHalt() (halt.State, error) {
	var rows []HaltState
	if err := r.db.Where("id = ?", haltRowID).Limit(1).Find(&rows).Error; err != nil {
		return halt.State{}, errors.Wrap(err, "load halt state")
	}
	if len(rows) == 0 || !rows[0].Halted {
		return halt.State{}, nil
	}
	st := halt.State{Halted: true, Reason: rows[0].Reason}
	if rows[0].Since != nil {
		st.Since = rows[0].Since.UTC()
	}
	return st, nil
}

// SaveHalt upserts the trading halt row.
func (r *Repository) SaveHalt(st halt.State) error {
	row := HaltState{ID: haltRowID, Halted: st.Halted, Reason: st.Reason}
	if st.Halted && !st.Since.IsZero() {
		since := st.Since.UTC()
		row.Since = &since
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"halted", "reason", "since", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "save halt state")
	}
	return nil
}
