package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-analytics/internal/engine"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

const commandTimeout = 30 * time.Second

// addPricingCommands adds single-option and chain commands.
func addPricingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newGreeksCmd(app))
	rootCmd.AddCommand(newIVCmd(app))
	rootCmd.AddCommand(newChainCmd(app))
}

func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("spot", 0, "Underlying price")
	cmd.Flags().Float64("strike", 0, "Strike price")
	cmd.Flags().Float64("t", 0, "Time to expiry in years")
	cmd.Flags().Int("days", 0, "Days to expiry (overrides --t)")
	cmd.Flags().String("type", "call", "Option type (call|put)")
	cmd.Flags().Float64("rate", 0, "Risk-free rate (default from config)")
}

func addAssumptionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("rate", 0, "Risk-free rate (default from config)")
	cmd.Flags().Float64("vol", 0, "Volatility (default from config)")
}

// optionalFloat returns the flag value only when the user set it.
func optionalFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

func assumptions(cmd *cobra.Command) engine.Assumptions {
	return engine.Assumptions{
		Rate:       optionalFloat(cmd, "rate"),
		Volatility: optionalFloat(cmd, "vol"),
	}
}

func timeToExpiry(cmd *cobra.Command) float64 {
	if cmd.Flags().Changed("days") {
		days, _ := cmd.Flags().GetInt("days")
		return float64(days) / 365
	}
	t, _ := cmd.Flags().GetFloat64("t")
	return t
}

func optionRequest(cmd *cobra.Command) (engine.OptionRequest, error) {
	typeStr, _ := cmd.Flags().GetString("type")
	typ, err := models.ParseOptionType(typeStr)
	if err != nil {
		return engine.OptionRequest{}, apperrors.NewValidationError("type", typeStr, "expected call or put")
	}
	spot, _ := cmd.Flags().GetFloat64("spot")
	strike, _ := cmd.Flags().GetFloat64("strike")
	return engine.OptionRequest{
		Spot:        spot,
		Strike:      strike,
		T:           timeToExpiry(cmd),
		Type:        typ,
		Assumptions: assumptions(cmd),
	}, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(name, s, "expected YYYY-MM-DD")
	}
	return t, nil
}

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a European option",
		Long: `Price a European option with Black-Scholes.

The result is never below intrinsic value or the minimum tick while time
remains, and equals intrinsic value at expiry.`,
		Example: `  options price --spot 100 --strike 100 --t 0.25 --vol 0.25
  options price --spot 452.3 --strike 450 --days 30 --type put`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req, err := optionRequest(cmd)
			if err != nil {
				return err
			}
			price, err := app.Engine.Price(req)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]float64{"price": price})
			}
			output.Printf("%s %s @ %s: %s\n",
				strings.ToUpper(string(req.Type)), FormatStrike(req.Strike), FormatPrice(req.Spot), output.BoldText(FormatPrice(price)))
			return nil
		},
	}
	addOptionFlags(cmd)
	cmd.Flags().Float64("vol", 0, "Volatility (default from config)")
	return cmd
}

func newGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "greeks",
		Short:   "Compute option Greeks",
		Long:    `Compute Delta, Gamma, Theta (per day), Vega and Rho (per percentage point).`,
		Example: `  options greeks --spot 100 --strike 105 --days 30 --type put`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req, err := optionRequest(cmd)
			if err != nil {
				return err
			}
			g, err := app.Engine.Greeks(req)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(g)
			}
			table := NewTable(output, "Greek", "Value")
			table.AddRow("Delta", fmt.Sprintf("%.4f", g.Delta))
			table.AddRow("Gamma", fmt.Sprintf("%.4f", g.Gamma))
			table.AddRow("Theta", fmt.Sprintf("%.4f", g.Theta))
			table.AddRow("Vega", fmt.Sprintf("%.4f", g.Vega))
			table.AddRow("Rho", fmt.Sprintf("%.4f", g.Rho))
			table.Render()
			return nil
		},
	}
	addOptionFlags(cmd)
	cmd.Flags().Float64("vol", 0, "Volatility (default from config)")
	return cmd
}

func newIVCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Solve implied volatility",
		Long: `Solve for the volatility that reproduces an observed option price.

A result that did not reach the tolerance within the iteration budget is
reported as low confidence.`,
		Example: `  options iv --price 5.60 --spot 100 --strike 100 --t 0.25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			opt, err := optionRequest(cmd)
			if err != nil {
				return err
			}
			marketPrice, _ := cmd.Flags().GetFloat64("price")
			symbol, _ := cmd.Flags().GetString("symbol")

			res, err := app.Engine.ImpliedVolatility(ctx, engine.IVRequest{
				Symbol:      strings.ToUpper(symbol),
				MarketPrice: marketPrice,
				Spot:        opt.Spot,
				Strike:      opt.Strike,
				T:           opt.T,
				Rate:        opt.Rate,
				Type:        opt.Type,
			})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Printf("Implied volatility: %s\n", output.BoldText(FormatIV(res.Volatility)))
			if res.Converged {
				output.Dim("Converged in %d iterations", res.Iterations)
			} else {
				output.Warning("Low confidence: price error %.6f after %d iterations", res.PriceError, res.Iterations)
			}
			return nil
		},
	}
	addOptionFlags(cmd)
	cmd.Flags().Float64("price", 0, "Observed option price")
	cmd.Flags().String("symbol", "", "Underlying symbol (for logging)")
	return cmd
}

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <symbol>",
		Short: "Display a synthesized option chain",
		Long: `Display an option chain synthesized around the underlying price.

Without --spot the price is read from the snapshot database. With --record
the chain's quotes are stored so later runs replay them.`,
		Example: `  options chain SPY --spot 452.30
  options chain SPY --expiration 2026-10-23 --strikes 5
  options chain SPY --spot 452.30 --record --db ~/snapshots.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			expiration, err := parseDateFlag(cmd, "expiration")
			if err != nil {
				return err
			}
			c, err := app.Engine.Chain(ctx, engine.ChainRequest{
				Symbol:      args[0],
				Spot:        optionalFloat(cmd, "spot"),
				Expiration:  expiration,
				Assumptions: assumptions(cmd),
			})
			if err != nil {
				return err
			}

			if record, _ := cmd.Flags().GetBool("record"); record {
				if app.Store == nil {
					return apperrors.Wrap(apperrors.ErrConfigInvalid, "--record needs a snapshot database (--db or market_data.snapshot_db)")
				}
				if err := app.Store.SaveChain(ctx, c, time.Now()); err != nil {
					return err
				}
				if !output.IsJSON() {
					output.Success("✓ Recorded %d quotes for %s", len(c.Calls)+len(c.Puts), c.Symbol)
				}
			}

			if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
				return output.CSV(chainRows(c))
			}
			if output.IsJSON() {
				return output.JSON(c)
			}
			window, _ := cmd.Flags().GetInt("strikes")
			displayChain(output, c, window)
			return nil
		},
	}

	cmd.Flags().Float64("spot", 0, "Underlying price (default from snapshot database)")
	cmd.Flags().String("expiration", "", "Expiration date (YYYY-MM-DD)")
	cmd.Flags().Int("strikes", 10, "Number of strikes to show each side of ATM (0 = all)")
	cmd.Flags().Bool("record", false, "Record the chain quotes to the snapshot database")
	cmd.Flags().Bool("csv", false, "Write every contract as CSV")
	addAssumptionFlags(cmd)

	return cmd
}

type chainRow struct {
	Expiration   string  `csv:"expiration"`
	Strike       float64 `csv:"strike"`
	Type         string  `csv:"option_type"`
	Bid          float64 `csv:"bid"`
	Ask          float64 `csv:"ask"`
	Last         float64 `csv:"last"`
	Volume       int64   `csv:"volume"`
	OpenInterest int64   `csv:"open_interest"`
	IV           float64 `csv:"implied_volatility"`
}

func chainRows(c *models.Chain) []chainRow {
	rows := make([]chainRow, 0, len(c.Calls)+len(c.Puts))
	add := func(typ models.OptionType, entries []models.ChainEntry) {
		for _, e := range entries {
			rows = append(rows, chainRow{
				Expiration:   FormatDate(c.Expiration),
				Strike:       e.Strike,
				Type:         string(typ),
				Bid:          e.Bid,
				Ask:          e.Ask,
				Last:         e.Last,
				Volume:       e.Volume,
				OpenInterest: e.OpenInterest,
				IV:           e.ImpliedVolatility,
			})
		}
	}
	add(models.Call, c.Calls)
	add(models.Put, c.Puts)
	return rows
}

func displayChain(output *Output, c *models.Chain, window int) {
	output.Bold("Option Chain - %s", c.Symbol)
	output.Printf("  Spot: %s  Expiry: %s (%dd)  Vol: %s  Rate: %s\n\n",
		FormatPrice(c.Spot), FormatDate(c.Expiration), c.DaysToExpiration, FormatIV(c.Volatility), FormatIV(c.RiskFreeRate))

	atm := 0
	for i, e := range c.Calls {
		if abs(e.Strike-c.Spot) < abs(c.Calls[atm].Strike-c.Spot) {
			atm = i
		}
	}
	lo, hi := 0, len(c.Calls)
	if window > 0 {
		lo, hi = max(atm-window, 0), min(atm+window+1, len(c.Calls))
	}

	table := NewTable(output, "Call OI", "Call IV", "Bid", "Ask", "Strike", "Bid", "Ask", "Put IV", "Put OI")
	for i := lo; i < hi; i++ {
		call, put := c.Calls[i], c.Puts[i]
		strike := FormatStrike(call.Strike)
		if i == atm {
			strike = output.Cyan(strike)
		}
		table.AddRow(
			FormatVolume(call.OpenInterest), FormatIV(call.ImpliedVolatility), FormatPrice(call.Bid), FormatPrice(call.Ask),
			strike,
			FormatPrice(put.Bid), FormatPrice(put.Ask), FormatIV(put.ImpliedVolatility), FormatVolume(put.OpenInterest),
		)
	}
	table.Render()
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
