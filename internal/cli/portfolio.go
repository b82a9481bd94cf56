package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newPortfolioCmd creates the portfolio command group.
func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Paper-trading portfolio",
		Long:  "Inspect and manage the paper-trading portfolio.",
	}

	cmd.AddCommand(newPortfolioShowCmd(app))
	cmd.AddCommand(newPortfolioHistoryCmd(app))
	cmd.AddCommand(newPortfolioResetCmd(app))
	return cmd
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the portfolio summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sess, err := app.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			// Best-effort: the summary still renders without a quote.
			ltp, err := sess.monitor.OpenPositionLTP(cmd.Context())
			if err != nil {
				app.Logger.Debug().Err(err).Msg("Could not fetch current position price")
				ltp = 0
			}

			summary := sess.ledger.Summary(ltp)
			if output.IsJSON() {
				return output.JSON(summary)
			}

			output.Bold("Portfolio Summary")
			output.Printf("  Cash:            %.2f\n", summary.Cash)
			output.Printf("  Position Value:  %.2f\n", summary.PositionValue)
			output.Printf("  Total Value:     %.2f\n", summary.TotalValue)
			output.Printf("  Initial Balance: %.2f\n", summary.InitialBalance)
			output.Printf("  Realized P&L:    %s\n", output.FormatPnL(summary.RealizedPnL))
			output.Printf("  Total Trades:    %d\n", summary.TotalTrades)
			output.Printf("  Closed Positions: %d\n", summary.ClosedPositions)

			if pos := summary.OpenPosition; pos != nil {
				output.Println()
				output.Bold("Open Position")
				output.Printf("  %s %s %.0f x%d\n", pos.Kind, pos.Expiry, pos.Strike, pos.Quantity)
				output.Printf("  Entry: %.2f (cost %.2f, seq %d)\n", pos.EntryPrice, pos.EntryCost, pos.EntrySequence)
				if ltp > 0 {
					output.Printf("  Current LTP:    %.2f\n", ltp)
					output.Printf("  Unrealized P&L: %s (%s)\n",
						output.FormatPnL(summary.UnrealizedPnL), output.FormatPercent(summary.UnrealizedPnLPct))
				} else {
					output.Dim("  No current quote available")
				}
			}
			return nil
		},
	}
}

func newPortfolioHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the trade history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			led, err := app.openLedger()
			if err != nil {
				return err
			}

			trades := led.State().TradeHistory
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades yet")
				return nil
			}

			table := NewTable(output, "TIME", "ACTION", "TYPE", "EXPIRY", "STRIKE", "LTP", "P&L", "BALANCE")
			for _, t := range trades {
				pnl := ""
				if t.Action == "SELL" {
					pnl = output.FormatPnL(t.PnL)
				}
				ltp := t.LTP
				if t.Action == "SELL" {
					ltp = t.ExitPrice
				}
				table.AddRow(
					t.Timestamp.Format("2006-01-02 15:04"),
					t.Action,
					string(t.SignalType),
					t.Expiry,
					fmt.Sprintf("%.0f", t.Strike),
					fmt.Sprintf("%.2f", ltp),
					pnl,
					fmt.Sprintf("%.2f", t.BalanceAfter),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newPortfolioResetCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the portfolio to the initial balance",
		Long:  "Deletes the portfolio file and reinitializes it at the configured starting balance. Trade history is lost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if !force {
				output.Error("Refusing to reset without --force (trade history will be lost)")
				return fmt.Errorf("reset requires --force")
			}

			path := app.Config.Portfolio.File
			for _, p := range []string{path, path + ".bak"} {
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return err
				}
			}

			led, err := app.openLedger()
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(led.Summary(0))
			}
			output.Success("Portfolio reset to %.2f", led.Cash())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation guard")
	return cmd
}
