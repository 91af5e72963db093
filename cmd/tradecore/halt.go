package main

import (
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/pkg/exception"
)

func newHaltCmd(a *app) *cobra.Command {
	var (
		reason string
		resume bool
	)
	cmd := &cobra.Command{
		Use:   "halt",
		Short: "Show, set or clear the trading halt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume && reason != "" {
				return errors.Wrap(exception.ErrInvalidArgument, "--resume and --reason are exclusive")
			}
			_, closeFn, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			switch {
			case resume:
				if st := a.halted.State(); st.Halted {
					logs.Infof("halt: trading resumed, was halted since %s: %s", st.Since.Format("2006-01-02 15:04:05"), st.Reason)
				}
				a.halted.Resume()
			case reason != "":
				a.halted.Halt(reason)
				logs.Errorf("halt: trading halted, %s", a.halted.State().Reason)
			}
			return writeJSON(cmd.OutOrStdout(), a.halted.State())
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Halt trading with this reason")
	cmd.Flags().BoolVar(&resume, "resume", false, "Clear the halt after the cause is resolved")
	return cmd
}
