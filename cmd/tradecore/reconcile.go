package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradecore/internal/broker"
	"tradecore/internal/chaos"
	"tradecore/internal/errors"
	"tradecore/internal/ledger"
	"tradecore/internal/reconcile"
	"tradecore/internal/state"
	"tradecore/pkg/exception"
)

type reconcileOutput struct {
	Report   reconcile.Report    `json:"report"`
	Halted   bool                `json:"halted"`
	Reason   string              `json:"reason,omitempty"`
	Recovery *reconcile.Recovery `json:"recovery,omitempty"`
}

func newReconcileCmd(a *app) *cobra.Command {
	var (
		brokerFile string
		ledgerFile string
		dumpLedger string
		watch      bool
		doRecover  bool
		drill      chaos.Config
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare broker holdings with the ledger and halt trading on a major discrepancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ledgerFile != "" && (doRecover || dumpLedger != "") {
				return errors.Wrap(exception.ErrInvalidArgument, "--recover and --dump-ledger need the ledger database, not --ledger-file")
			}

			repo, closeFn, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if dumpLedger != "" {
				if err := writeLedgerSnapshot(ctx, repo, dumpLedger); err != nil {
					return err
				}
			}

			var brokerSrc reconcile.Source
			if brokerFile != "" {
				brokerSrc = state.FileSource(brokerFile)
			} else {
				client, err := broker.NewClient(a.cfg.Broker)
				if err != nil {
					return err
				}
				brokerSrc = client
			}

			var ledgerSrc reconcile.Source = repo
			if ledgerFile != "" {
				ledgerSrc = state.FileSource(ledgerFile)
			}

			if drill.Enabled() {
				engine, err := chaos.NewEngine(drill)
				if err != nil {
					return err
				}
				logs.Errorf("reconcile: fault drill enabled on broker source, %+v", drill)
				brokerSrc = engine.Wrap(brokerSrc)
			}

			svc := reconcile.NewService(brokerSrc, ledgerSrc, a.halted, a.metrics)
			if watch {
				return a.watchReconcile(ctx, svc)
			}

			report, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			st := a.halted.State()
			out := reconcileOutput{Report: report, Halted: st.Halted, Reason: st.Reason}
			if doRecover && !report.Clean() {
				rec, err := reconcile.Recover(ctx, repo, report)
				out.Recovery = &rec
				if err != nil && !errors.Is(err, exception.ErrManualReview) {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&brokerFile, "broker-file", "", "Read broker positions from a snapshot file")
	cmd.Flags().StringVar(&ledgerFile, "ledger-file", "", "Read ledger positions from a snapshot file")
	cmd.Flags().StringVar(&dumpLedger, "dump-ledger", "", "Write the ledger positions to a snapshot file before reconciling")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reconcile every configured interval until interrupted")
	cmd.Flags().BoolVar(&doRecover, "recover", false, "Apply the recovery policy to the ledger")
	cmd.Flags().Int64Var(&drill.Seed, "drill-seed", 0, "Fault drill random seed")
	cmd.Flags().Float64Var(&drill.FailRate, "drill-fail-rate", 0, "Fault drill: probability a broker call fails")
	cmd.Flags().Float64Var(&drill.DropRate, "drill-drop-rate", 0, "Fault drill: probability a broker position is dropped")
	cmd.Flags().Float64Var(&drill.DuplicateRate, "drill-duplicate-rate", 0, "Fault drill: probability a broker quantity is doubled")
	return cmd
}

func (a *app) watchReconcile(ctx context.Context, svc *reconcile.Service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("reconcile: shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := svc.Watch(ctx, a.cfg.ReconcileInterval, func(r reconcile.Report) {
		if r.Major {
			logs.Errorf("reconcile: trading halted, %s", a.halted.State().Reason)
		}
	})
	logMetrics(a.metrics)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// writeLedgerSnapshot writes the open ledger positions in the format
// --ledger-file reads.
func writeLedgerSnapshot(ctx context.Context, repo *ledger.Repository, path string) error {
	book, err := repo.Book(ctx)
	if err != nil {
		return err
	}
	if err := state.WriteSnapshot(path, book.Snapshot("ledger")); err != nil {
		return errors.Wrapf(err, "write ledger snapshot %s", path)
	}
	logs.Infof("reconcile: wrote %d ledger positions to %s", book.Count(), path)
	return nil
}
