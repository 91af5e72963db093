package main

import (
	"context"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/internal/halt"
	"tradecore/internal/ledger"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/pkg/conn"
)

type app struct {
	configPath string
	profile    bool

	cfg     ops.Loaded
	metrics *obs.Metrics
	halted  *halt.Flag
	stop    func()
}

func newRootCmd() *cobra.Command {
	a := &app{metrics: obs.NewMetrics(), halted: halt.New()}

	root := &cobra.Command{
		Use:           "tradecore",
		Short:         "Backtest, size, risk-check and reconcile equity strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ops.Load(a.configPath)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			a.cfg = cfg
			if a.profile || cfg.Profiling.Enabled {
				stop, err := startProfiler(cfg.Profiling)
				if err != nil {
					return err
				}
				a.stop = stop
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.stop != nil {
				a.stop()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to JSON config")
	root.PersistentFlags().BoolVar(&a.profile, "pyroscope", false, "Enable continuous profiling")

	root.AddCommand(
		newBacktestCmd(a),
		newBatchCmd(a),
		newSizeCmd(a),
		newReconcileCmd(a),
		newTradeCmd(a),
		newLossesCmd(a),
		newHaltCmd(a),
	)
	return root
}

// openLedger connects to the configured database, migrates it and binds the
// halt flag to the stored halt state.
func (a *app) openLedger(ctx context.Context) (*ledger.Repository, func(), error) {
	client, err := conn.New(a.cfg.Database)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open ledger")
	}
	repo := ledger.NewRepository(client.DB())
	if err := repo.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "migrate ledger")
	}
	if err := a.halted.Attach(repo); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "restore halt flag")
	}
	return repo, func() { _ = client.Close() }, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "date %q", raw)
	}
	return t.UTC(), nil
}

func logMetrics(m *obs.Metrics) {
	s := m.Snapshot()
	logs.Infof("metrics: backtests %d (failed %d), reconcile passes %d (major %d), loss pauses %d",
		s.BacktestRuns, s.BacktestFailures, s.ReconcileRuns, s.MajorPasses, s.LossPauses)
}
