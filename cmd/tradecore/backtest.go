package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradecore/internal/backtest"
	"tradecore/internal/errors"
	"tradecore/internal/marketdata"
	"tradecore/internal/metrics"
	"tradecore/internal/strategy"
)

type backtestFlags struct {
	start  string
	end    string
	outDir string
	save   bool
}

func (f *backtestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "First bar date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last bar date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.outDir, "out-dir", "", "Write trades and equity CSV files here")
	cmd.Flags().BoolVar(&f.save, "save", false, "Store the run in the ledger")
}

func (f *backtestFlags) window() (time.Time, time.Time, error) {
	start, err := parseDate(f.start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(f.end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type summary struct {
	Symbol      string          `json:"symbol"`
	Strategy    string          `json:"strategy"`
	Bars        int             `json:"bars"`
	Trades      int             `json:"trades"`
	FinalEquity decimal.Decimal `json:"finalEquity"`
	Report      metrics.Report  `json:"report"`
	RunID       uint64          `json:"runId,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func summarize(res backtest.Result) summary {
	return summary{
		Symbol:      res.Symbol,
		Strategy:    res.Strategy,
		Bars:        res.BarsProcessed,
		Trades:      len(res.Trades),
		FinalEquity: res.FinalEquity(),
		Report:      res.Report,
	}
}

func newBacktestCmd(a *app) *cobra.Command {
	var flags backtestFlags
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Run a backtest of the configured strategy on one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start, end, err := flags.window()
			if err != nil {
				return err
			}
			engine, strat, provider, err := a.backtestDeps()
			if err != nil {
				return err
			}

			bars, err := provider.Bars(ctx, args[0], start, end)
			if err != nil {
				return err
			}
			res, err := engine.Run(ctx, args[0], bars, strat)
			if err != nil {
				return err
			}

			out := summarize(res)
			if flags.outDir != "" {
				if err := writeCSVs(flags.outDir, res); err != nil {
					return err
				}
			}
			if flags.save {
				id, err := a.saveRuns(ctx, res)
				if err != nil {
					return err
				}
				out.RunID = id[0]
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	flags.register(cmd)
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		flags   backtestFlags
		workers int
	)
	cmd := &cobra.Command{
		Use:   "batch SYMBOL...",
		Short: "Backtest the configured strategy on several symbols in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start, end, err := flags.window()
			if err != nil {
				return err
			}
			engine, strat, provider, err := a.backtestDeps()
			if err != nil {
				return err
			}

			jobs := make([]backtest.Job, 0, len(args))
			loadErrs := make(map[string]error)
			for _, sym := range args {
				bars, err := provider.Bars(ctx, sym, start, end)
				if err != nil {
					loadErrs[sym] = err
				}
				jobs = append(jobs, backtest.Job{Symbol: sym, Bars: bars, Strategy: strat})
			}

			results, err := engine.RunBatch(ctx, jobs, workers)
			if err != nil {
				return err
			}

			out := make([]summary, 0, len(results))
			var ok []backtest.Result
			for _, r := range results {
				if err := loadErrs[r.Symbol]; err != nil {
					out = append(out, summary{Symbol: r.Symbol, Error: err.Error()})
					continue
				}
				if r.Err != nil {
					out = append(out, summary{Symbol: r.Symbol, Error: r.Err.Error()})
					continue
				}
				if flags.outDir != "" {
					if err := writeCSVs(filepath.Join(flags.outDir, r.Symbol), r.Result); err != nil {
						return err
					}
				}
				out = append(out, summarize(r.Result))
				ok = append(ok, r.Result)
			}
			if flags.save && len(ok) != 0 {
				ids, err := a.saveRuns(ctx, ok...)
				if err != nil {
					return err
				}
				for i, j := 0, 0; i < len(out) && j < len(ids); i++ {
					if out[i].Error == "" {
						out[i].RunID = ids[j]
						j++
					}
				}
			}
			logMetrics(a.metrics)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 4, "Parallel backtests")
	return cmd
}

func (a *app) backtestDeps() (*backtest.Engine, strategy.Strategy, marketdata.Provider, error) {
	engine, err := backtest.NewEngine(a.cfg.Backtest, a.metrics)
	if err != nil {
		return nil, nil, nil, err
	}
	strat, err := strategy.New(a.cfg.Strategy)
	if err != nil {
		return nil, nil, nil, err
	}
	provider, err := marketdata.New(a.cfg.MarketData.Source, a.cfg.MarketData.Dir)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, strat, provider, nil
}

func (a *app) saveRuns(ctx context.Context, results ...backtest.Result) ([]uint64, error) {
	repo, closeFn, err := a.openLedger(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	ids := make([]uint64, 0, len(results))
	for _, res := range results {
		id, err := repo.SaveBacktest(ctx, res)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeCSVs(dir string, res backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	trades, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return err
	}
	defer trades.Close()
	if err := backtest.WriteTradesCSV(trades, res.Trades); err != nil {
		return errors.Wrap(err, "write trades")
	}

	equity, err := os.Create(filepath.Join(dir, "equity.csv"))
	if err != nil {
		return err
	}
	defer equity.Close()
	if err := backtest.WriteEquityCSV(equity, res.EquityCurve); err != nil {
		return errors.Wrap(err, "write equity")
	}
	return nil
}
