// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"oi-trader/internal/config"
	"oi-trader/internal/ledger"
	"oi-trader/internal/logging"
	"oi-trader/internal/monitor"
	"oi-trader/internal/signal"
	"oi-trader/internal/snapshot"
	"oi-trader/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-08-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// session wires the snapshot source, ledger, engine and monitor for one
// command invocation. Close releases the database handle.
type session struct {
	source  *snapshot.SQLiteSource
	ledger  *ledger.Ledger
	monitor *monitor.Monitor
}

func (s *session) Close() {
	s.source.Close()
}

// openSession builds the full collaborator chain from the configuration.
func (a *App) openSession() (*session, error) {
	source, err := snapshot.NewSQLiteSource(a.Config.Database.Path)
	if err != nil {
		return nil, err
	}

	led, err := a.openLedger()
	if err != nil {
		source.Close()
		return nil, err
	}

	engine := signal.New(a.Config.Strategy, a.Logger)
	return &session{
		source:  source,
		ledger:  led,
		monitor: monitor.New(a.Config, source, engine, led, a.Logger),
	}, nil
}

// openLedger opens the portfolio ledger, with git replication when enabled.
func (a *App) openLedger() (*ledger.Ledger, error) {
	var repl store.Replicator
	if a.Config.Portfolio.GitSync {
		repl = store.NewGitReplicator(a.Config.Portfolio.GitRemote, a.Config.Portfolio.GitBranch, a.Logger)
	}
	fileStore := store.NewFileStore(a.Config.Portfolio.File, a.Config.Portfolio.InitialBalance, repl, a.Logger)
	return ledger.Open(fileStore, a.Config.Portfolio.LotSize, a.Logger)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "oitrader",
		Short: "OI Trader - option-chain signal engine and paper-trading ledger",
		Long: `OI Trader watches an option-chain snapshot database, derives buy and sell
signals from price momentum and open-interest growth, and tracks a single
paper-traded position in a crash-safe portfolio file.

Use 'oitrader run' to start the monitoring loop, or 'oitrader signal' for a
one-shot evaluation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/oi-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSignalCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("OI Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Strategy")
	output.Printf("  Momentum Threshold: %.2f\n", cfg.Strategy.MomentumThreshold)
	output.Printf("  OI Growth Threshold: %.2f\n", cfg.Strategy.OIGrowthThreshold)
	output.Printf("  Min LTP:            %.2f\n", cfg.Strategy.MinLTP)
	output.Printf("  Cooldown:           %d sequences\n", cfg.Strategy.Cooldown)
	output.Printf("  Stop Loss:          %.0f%%\n", cfg.Strategy.StopLossPct*100)
	output.Printf("  Min Hold:           %d sequences\n", cfg.Strategy.MinHoldSequences)
	output.Println()

	output.Bold("Portfolio")
	output.Printf("  File:            %s\n", cfg.Portfolio.File)
	output.Printf("  Initial Balance: %.2f\n", cfg.Portfolio.InitialBalance)
	output.Printf("  Lot Size:        %d\n", cfg.Portfolio.LotSize)
	output.Printf("  Git Sync:        %v\n", cfg.Portfolio.GitSync)
	output.Println()

	output.Bold("Database")
	output.Printf("  Path:   %s\n", cfg.Database.Path)
	output.Printf("  Ticker: %s\n", cfg.Database.Ticker)
	output.Println()

	output.Bold("Monitor")
	output.Printf("  Poll Interval:      %s\n", cfg.Monitor.PollInterval)
	output.Printf("  Snapshot Window:    %d\n", cfg.Monitor.SnapshotWindow)
	output.Printf("  Aggregate:          %v\n", cfg.Monitor.Aggregate)
	output.Printf("  Aggregation Window: %s\n", cfg.Monitor.AggregationWindow)

	return nil
}
