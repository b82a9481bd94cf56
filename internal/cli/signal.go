package cli

import (
	"github.com/spf13/cobra"

	"oi-trader/internal/models"
)

// newSignalCmd creates the one-shot evaluation command.
func newSignalCmd(app *App) *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Evaluate the strategy once against the latest snapshots",
		Long: `Loads the snapshot table, evaluates entry or exit conditions against the
current portfolio state and prints the resulting signal. With --execute the
signal is also applied to the portfolio.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sess, err := app.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			sig, err := sess.monitor.EvaluateOnce(cmd.Context())
			if err != nil {
				return err
			}

			var tradeMsg string
			if execute && sig.Kind != models.SignalNone {
				tradeMsg, err = sess.monitor.Execute(sig)
				if err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(sig)
			}

			printSignal(output, sig)
			if tradeMsg != "" {
				output.Success(tradeMsg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "execute the signal against the portfolio")
	return cmd
}

func printSignal(output *Output, sig models.Signal) {
	switch sig.Kind {
	case models.SignalNone:
		output.Dim("NO_SIGNAL: %s", sig.Reason)
	case models.SignalBuyCall, models.SignalBuyPut:
		output.Success("%s %s %.0f @ %.2f (seq %d)", sig.Kind, sig.Expiry, sig.Strike, sig.LTP, sig.Sequence)
	case models.SignalSellCall, models.SignalSellPut:
		output.Error("%s %s %.0f @ %.2f (seq %d): %s", sig.Kind, sig.Expiry, sig.Strike, sig.LTP, sig.Sequence, sig.Reason)
	}
}
