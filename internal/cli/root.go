// Package cli provides the command-line interface for the options engine.
package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-analytics/internal/config"
	"options-analytics/internal/engine"
	"options-analytics/internal/logging"
	"options-analytics/internal/marketdata"
	"options-analytics/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-19"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Engine    *engine.Engine
	Store     store.Store
	configDir string
}

// NewRootCmd creates the root command for the CLI. Configuration, logging
// and the engine are built once the global flags are parsed.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "options",
		Short: "Options analytics - pricing, Greeks, IV, chains and strategies",
		Long: `Options analytics prices European options with Black-Scholes, computes
Greeks, solves implied volatility, synthesizes option chains and evaluates
multi-leg strategies.

Spot prices and option quotes can be recorded into a local snapshot
database and replayed by every command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-analytics)")
	rootCmd.PersistentFlags().String("db", "", "snapshot database path (overrides market_data.snapshot_db)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addPricingCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addSnapshotCommands(rootCmd, app)
	addServeCommand(rootCmd, app)

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	a.configDir, _ = cmd.Flags().GetString("config")
	if a.configDir == "" {
		a.configDir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	a.Config = cfg

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logCfg.Out = cmd.ErrOrStderr()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	opts := []engine.Option{engine.WithLogger(a.Logger)}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.MarketData.SnapshotDB
	}
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return err
		}
		st, err := store.NewSnapshotStore(dbPath)
		if err != nil {
			return err
		}
		a.Store = st
		a.Logger.Debug().Str("path", dbPath).Msg("Snapshot store opened")

		rc := marketdata.DefaultResilientConfig()
		rc.Retry.MaxAttempts = cfg.MarketData.RetryAttempts
		rc.Breaker.FailureThreshold = cfg.MarketData.BreakerFailures
		rc.Breaker.Timeout = cfg.MarketData.BreakerTimeout
		opts = append(opts,
			engine.WithProvider(marketdata.NewResilientProvider(st, rc, a.Logger)),
			engine.WithQuoteSource(st),
		)
	}

	a.Engine, err = engine.New(cfg, opts...)
	return err
}

// Close releases the snapshot store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
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
				output.Printf("Options Analytics v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the engine configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := filepath.Join(app.configDir, "options.toml")
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Pricing")
	output.Printf("  Risk-free rate:  %s\n", FormatIV(cfg.Pricing.RiskFreeRate))
	output.Printf("  Volatility:      %s\n", FormatIV(cfg.Pricing.Volatility))
	output.Printf("  Min tick:        %g\n", cfg.Pricing.MinTick)
	output.Println()

	output.Bold("Implied Volatility")
	output.Printf("  Bounds:          [%g, %g]\n", cfg.ImpliedVolatility.MinVolatility, cfg.ImpliedVolatility.MaxVolatility)
	output.Printf("  Tolerance:       %g\n", cfg.ImpliedVolatility.Tolerance)
	output.Printf("  Max iterations:  %d\n", cfg.ImpliedVolatility.MaxIterations)
	output.Println()

	output.Bold("Chain")
	output.Printf("  Strike step:     %g\n", cfg.Chain.StrikeIncrement)
	output.Printf("  Strikes/side:    %d\n", cfg.Chain.StrikesEachSide)
	output.Printf("  Spread:          %s\n", FormatIV(cfg.Chain.SpreadPercent))
	output.Printf("  Expiry weekday:  %s\n", cfg.Chain.ExpiryWeekday)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Grid points:     %d\n", cfg.Strategy.GridPoints)
	output.Printf("  Upper multiple:  %gx spot\n", cfg.Strategy.UpperMultiple)
	output.Println()

	output.Bold("Market Data")
	db := cfg.MarketData.SnapshotDB
	if db == "" {
		db = "(none)"
	}
	output.Printf("  Snapshot DB:     %s\n", db)
	output.Printf("  Retry attempts:  %d\n", cfg.MarketData.RetryAttempts)
	output.Printf("  Breaker:         %d failures, %s\n", cfg.MarketData.BreakerFailures, cfg.MarketData.BreakerTimeout)
}
