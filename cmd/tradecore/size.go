package main

import (
	"context"
	"os"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradecore/internal/broker"
	"tradecore/internal/errors"
	"tradecore/internal/ledger"
	"tradecore/internal/losslimit"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type sizeOutput struct {
	Approved   bool                      `json:"approved"`
	Sizing     schema.PositionSizeResult `json:"sizing"`
	Validation schema.ValidationResult   `json:"validation"`
	FailedRule string                    `json:"failedRule,omitempty"`
}

func newSizeCmd(a *app) *cobra.Command {
	var (
		strategyID    string
		entry, stop   string
		cash          string
		portfolioFile string
	)
	cmd := &cobra.Command{
		Use:   "size SYMBOL",
		Short: "Size a trade and run the risk rules against the current portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entryPrice, err := decimal.NewFromString(entry)
			if err != nil {
				return errors.Wrapf(exception.ErrInvalidArgument, "entry %q", entry)
			}
			stopPrice, err := decimal.NewFromString(stop)
			if err != nil {
				return errors.Wrapf(exception.ErrInvalidArgument, "stop %q", stop)
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
				Symbol:     args[0],
				EntryPrice: entryPrice,
				StopPrice:  stopPrice,
				Portfolio:  portfolio,
			})
			if err != nil {
				return err
			}

			out := sizeOutput{Approved: decision.Approved(), Sizing: decision.Sizing, Validation: decision.Validation}
			if !decision.Validation.Valid {
				out.FailedRule = decision.Validation.FailedRule.String()
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&strategyID, "strategy", "default", "Strategy id")
	cmd.Flags().StringVar(&entry, "entry", "", "Entry price")
	cmd.Flags().StringVar(&stop, "stop", "", "Stop-loss price")
	cmd.Flags().StringVar(&cash, "cash", "", "Cash balance; open ledger positions complete the portfolio")
	cmd.Flags().StringVar(&portfolioFile, "portfolio-file", "", "Read the portfolio snapshot from a JSON file")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("stop")
	return cmd
}

// portfolio picks the snapshot source: a file, then a cash balance plus the
// ledger's open positions, then the configured broker.
func (a *app) portfolio(ctx context.Context, repo *ledger.Repository, file, cash string) (schema.PortfolioSnapshot, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return schema.PortfolioSnapshot{}, err
		}
		var p schema.PortfolioSnapshot
		if err := sonic.Unmarshal(data, &p); err != nil {
			return schema.PortfolioSnapshot{}, errors.Wrap(err, file)
		}
		return p, nil
	case cash != "":
		v, err := decimal.NewFromString(cash)
		if err != nil {
			return schema.PortfolioSnapshot{}, errors.Wrapf(exception.ErrInvalidArgument, "cash %q", cash)
		}
		positions, err := repo.Positions(ctx)
		if err != nil {
			return schema.PortfolioSnapshot{}, err
		}
		return schema.PortfolioSnapshot{Cash: v, BuyingPower: v, Positions: positions}, nil
	default:
		client, err := broker.NewClient(a.cfg.Broker)
		if err != nil {
			return schema.PortfolioSnapshot{}, err
		}
		return client.Portfolio(ctx)
	}
}
