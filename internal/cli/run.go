package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRunCmd creates the monitoring loop command.
func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring loop",
		Long: `Polls the snapshot database for new option-chain data, evaluates the
strategy on every new snapshot and executes paper trades against the
portfolio. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return sess.monitor.Run(ctx)
		},
	}
}
