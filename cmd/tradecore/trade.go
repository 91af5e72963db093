package main

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradecore/internal/bus"
	"tradecore/internal/errors"
	"tradecore/internal/ledger"
	"tradecore/internal/losslimit"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func newTradeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Record live fills in the ledger",
	}
	cmd.AddCommand(newTradeOpenCmd(a), newTradeCloseCmd(a))
	return cmd
}

type tradeOpenOutput struct {
	Trade    ledger.Trade              `json:"trade"`
	Sizing   schema.PositionSizeResult `json:"sizing"`
	Position schema.Position           `json:"position"`
}

func newTradeOpenCmd(a *app) *cobra.Command {
	var (
		strategyID    string
		qty           int64
		price, stop   string
		cash          string
		portfolioFile string
	)
	cmd := &cobra.Command{
		Use:   "open SYMBOL",
		Short: "Size and risk-check an entry, then record the opened position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			symbol := strings.ToUpper(args[0])
			entryPrice, err := decimal.NewFromString(price)
			if err != nil {
				return errors.Wrapf(exception.ErrInvalidArgument, "price %q", price)
			}
			stopPrice, err := decimal.NewFromString(stop)
			if err != nil {
				return errors.Wrapf(exception.ErrInvalidArgument, "stop %q", stop)
			}
			if qty < 0 {
				return errors.Wrapf(exception.ErrInvalidArgument, "qty %d", qty)
			}

			repo, closeFn, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			portfolio, err := a.portfolio(ctx, repo, portfolioFile, cash)
			if err != nil {
				return err
			}
			detector := losslimit.NewDetector(losslimit.WithStore(repo), losslimit.WithMetrics(a.metrics))
			if err := detector.Restore(); err != nil {
				return err
			}

			manager := risk.NewManager(a.halted, risk.WithLossStatus(detector), risk.WithMetrics(a.metrics))
			decision, err := manager.Evaluate(risk.Request{
				StrategyID: strategyID,
				Symbol:     symbol,
				EntryPrice: entryPrice,
				StopPrice:  stopPrice,
				Portfolio:  portfolio,
			})
			if err != nil {
				return err
			}
			if !decision.Approved() {
				return rejection(strategyID, symbol, decision)
			}
			if qty == 0 {
				qty = decision.Sizing.Quantity
			}
			if qty > decision.Sizing.Quantity {
				return errors.Wrapf(exception.ErrOrderRejected, "%s %s: qty %d exceeds sized quantity %d",
					strategyID, symbol, qty, decision.Sizing.Quantity)
			}

			t, err := repo.OpenTrade(ctx, strategyID, symbol, qty, entryPrice, time.Now())
			if err != nil {
				return err
			}
			book, err := repo.Book(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tradeOpenOutput{
				Trade:    t,
				Sizing:   decision.Sizing,
				Position: book.Position(symbol),
			})
		},
	}
	cmd.Flags().StringVar(&strategyID, "strategy", "default", "Strategy id")
	cmd.Flags().Int64Var(&qty, "qty", 0, "Shares, at most the sized quantity (default: the sized quantity)")
	cmd.Flags().StringVar(&price, "price", "", "Fill price")
	cmd.Flags().StringVar(&stop, "stop", "", "Stop-loss price used for sizing")
	cmd.Flags().StringVar(&cash, "cash", "", "Cash balance; open ledger positions complete the portfolio")
	cmd.Flags().StringVar(&portfolioFile, "portfolio-file", "", "Read the portfolio snapshot from a JSON file")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("stop")
	return cmd
}

// rejection maps a refused decision to an error.
func rejection(strategyID, symbol string, d risk.Decision) error {
	v := d.Validation
	switch v.FailedRule {
	case schema.RuleTradingHalted:
		return errors.Wrap(exception.ErrTradingHalted, v.Reason)
	case schema.RuleDailyLossLimit:
		return errors.Wrap(exception.ErrStrategyPaused, v.Reason)
	case schema.RuleNone:
		return errors.Wrapf(exception.ErrOrderRejected, "%s %s: sized quantity is zero", strategyID, symbol)
	default:
		return errors.Wrapf(exception.ErrOrderRejected, "%s %s: %s: %s", strategyID, symbol, v.FailedRule, v.Reason)
	}
}

func newTradeCloseCmd(a *app) *cobra.Command {
	var price string
	cmd := &cobra.Command{
		Use:   "close TRADE_ID",
		Short: "Close a position and feed the outcome to the loss detector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(exception.ErrInvalidArgument, "trade id %q", args[0])
			}
			p, err := decimal.NewFromString(price)
			if err != nil {
				return errors.Wrapf(exception.ErrInvalidArgument, "price %q", price)
			}
			repo, closeFn, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			detector := losslimit.NewDetector(
				losslimit.WithStore(repo),
				losslimit.WithNotifier(losslimit.LogNotifier{}),
				losslimit.WithMetrics(a.metrics),
			)
			if err := detector.Restore(); err != nil {
				return err
			}

			t, err := repo.CloseTrade(ctx, id, p, time.Now())
			if err != nil {
				return err
			}

			queue := bus.NewQueue(1)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				detector.Consume(ctx, queue)
			}()
			if err := queue.TryPublish(t.Outcome()); err != nil {
				a.metrics.IncQueueDrop()
				return err
			}
			queue.Close()
			wg.Wait()

			return writeJSON(cmd.OutOrStdout(), struct {
				Trade any                    `json:"trade"`
				Loss  schema.LossStreakState `json:"loss"`
			}{t, detector.Status(t.StrategyID)})
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "Exit price")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newLossesCmd(a *app) *cobra.Command {
	var (
		resume   string
		resetDay bool
	)
	cmd := &cobra.Command{
		Use:   "losses",
		Short: "Show, reset or resume strategy loss streaks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			detector := losslimit.NewDetector(losslimit.WithStore(repo))
			if err := detector.Restore(); err != nil {
				return err
			}
			if resetDay {
				detector.ResetDay()
			}
			if resume != "" {
				detector.Resume(resume)
			}

			states, err := repo.LoadLossStates()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), states)
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "Un-pause this strategy")
	cmd.Flags().BoolVar(&resetDay, "reset-day", false, "Clear every loss counter for a new trading day")
	return cmd
}
