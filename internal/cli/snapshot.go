package cli

import (
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/server"
)

// addSnapshotCommands adds snapshot database commands.
func addSnapshotCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage recorded market data",
		Long: `Record underlying prices into the snapshot database. Commands that take
an optional --spot read the latest recorded price from it.`,
	}
	cmd.AddCommand(newSnapshotSetSpotCmd(app))
	cmd.AddCommand(newSnapshotListCmd(app))
	rootCmd.AddCommand(cmd)
}

func requireStore(app *App) error {
	if app.Store == nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "no snapshot database configured (--db or market_data.snapshot_db)")
	}
	return nil
}

func newSnapshotSetSpotCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "set-spot <symbol> <price>",
		Short:   "Record an underlying price",
		Example: `  options snapshot set-spot SPY 452.30 --db ~/snapshots.db`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}
			price, err := parsePrice(args[1])
			if err != nil {
				return err
			}
			symbol := strings.ToUpper(args[0])
			if err := app.Store.SaveSpot(cmd.Context(), symbol, price, time.Now()); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "price": price})
			}
			output.Success("✓ %s recorded at %s", symbol, FormatPrice(price))
			return nil
		},
	}
}

func newSnapshotListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded underlying prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}
			spots, err := app.Store.ListSpots(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(spots)
			}
			if len(spots) == 0 {
				output.Dim("No recorded prices")
				return nil
			}
			table := NewTable(output, "Symbol", "Price", "Quotes", "Observed")
			for _, s := range spots {
				n, err := app.Store.CountQuotes(cmd.Context(), s.Symbol)
				if err != nil {
					return err
				}
				table.AddRow(s.Symbol, FormatPrice(s.Price), FormatVolume(int64(n)), s.ObservedAt.Local().Format(time.RFC3339))
			}
			table.Render()
			return nil
		},
	}
}

func parsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(s, 64)
	if err != nil || !(price > 0) {
		return 0, apperrors.NewValidationError("price", s, "must be a positive number")
	}
	return price, nil
}

// addServeCommand adds the HTTP server command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		Long: `Serve pricing, Greeks, implied volatility, chains and strategies as a
JSON API until interrupted.`,
		Example: `  options serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.New(app.Engine, app.Config.Server.RequestTimeout, app.Logger).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(cmd)
}
