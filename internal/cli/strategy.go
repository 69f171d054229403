package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-analytics/internal/engine"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// addStrategyCommands adds strategy evaluation commands.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStrategyCmd(app))
	rootCmd.AddCommand(newTemplatesCmd(app))
	rootCmd.AddCommand(newPayoffCmd(app))
}

// ParseLeg parses a leg in the form side:type:strike:premium[:qty[:YYYY-MM-DD]]
// for options or side:stock:entry[:qty] for the underlying.
func ParseLeg(s string) (models.Leg, error) {
	invalid := func(msg string) (models.Leg, error) {
		return models.Leg{}, apperrors.NewValidationError("leg", s, msg)
	}

	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 {
		return invalid("expected side:type:strike:premium[:qty[:expiration]] or side:stock:entry[:qty]")
	}

	side, err := models.ParseSide(parts[0])
	if err != nil {
		return invalid(err.Error())
	}
	leg := models.Leg{Side: side, Quantity: 1}

	quantity := func(i int) error {
		if len(parts) <= i || parts[i] == "" {
			return nil
		}
		q, err := strconv.Atoi(parts[i])
		if err != nil || q <= 0 {
			return fmt.Errorf("quantity must be a positive integer")
		}
		leg.Quantity = q
		return nil
	}
	number := func(i int, name string) (float64, error) {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", name)
		}
		return v, nil
	}

	switch strings.ToLower(parts[1]) {
	case "stock", "underlying", "u":
		if len(parts) > 4 {
			return invalid("too many fields for an underlying leg")
		}
		leg.Instrument = models.InstrumentUnderlying
		if leg.Premium, err = number(2, "entry price"); err != nil {
			return invalid(err.Error())
		}
		if err := quantity(3); err != nil {
			return invalid(err.Error())
		}
		return leg, nil
	}

	if len(parts) < 4 || len(parts) > 6 {
		return invalid("expected side:type:strike:premium[:qty[:expiration]]")
	}
	leg.Instrument = models.InstrumentOption
	if leg.Type, err = models.ParseOptionType(parts[1]); err != nil {
		return invalid(err.Error())
	}
	if leg.Strike, err = number(2, "strike"); err != nil {
		return invalid(err.Error())
	}
	if leg.Premium, err = number(3, "premium"); err != nil {
		return invalid(err.Error())
	}
	if err := quantity(4); err != nil {
		return invalid(err.Error())
	}
	if len(parts) == 6 && parts[5] != "" {
		if leg.Expiration, err = time.Parse("2006-01-02", parts[5]); err != nil {
			return invalid("expiration must be YYYY-MM-DD")
		}
	}
	return leg, nil
}

func addStrategyFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "custom", "Strategy type (e.g. iron-condor, bull-call-spread)")
	cmd.Flags().String("name", "", "Strategy name")
	cmd.Flags().StringArray("leg", nil, "Leg as side:type:strike:premium[:qty[:YYYY-MM-DD]] or side:stock:entry[:qty] (repeatable)")
	cmd.Flags().Float64("spot", 0, "Underlying price (default from snapshot database)")
	cmd.Flags().Float64("width", 0, "Wing width when building from a template (default strike increment)")
	cmd.Flags().Int("quantity", 1, "Contracts per leg when building from a template")
	cmd.Flags().String("expiration", "", "Expiration when building from a template (YYYY-MM-DD)")
	addAssumptionFlags(cmd)
}

// evaluateFromFlags evaluates explicit --leg values, or builds the --type
// template around the money when no legs were given.
func evaluateFromFlags(ctx context.Context, cmd *cobra.Command, app *App, symbol string) (*models.Strategy, error) {
	typeStr, _ := cmd.Flags().GetString("type")
	typ, err := models.ParseStrategyType(typeStr)
	if err != nil {
		return nil, apperrors.NewValidationError("type", typeStr, "unknown strategy type")
	}
	name, _ := cmd.Flags().GetString("name")
	rawLegs, _ := cmd.Flags().GetStringArray("leg")

	if len(rawLegs) == 0 && typ != models.Custom {
		width, _ := cmd.Flags().GetFloat64("width")
		quantity, _ := cmd.Flags().GetInt("quantity")
		expiration, err := parseDateFlag(cmd, "expiration")
		if err != nil {
			return nil, err
		}
		return app.Engine.BuildStrategy(ctx, engine.BuildRequest{
			Type:        typ,
			Symbol:      symbol,
			Spot:        optionalFloat(cmd, "spot"),
			Width:       width,
			Quantity:    quantity,
			Expiration:  expiration,
			Assumptions: assumptions(cmd),
		})
	}

	legs := make([]models.Leg, 0, len(rawLegs))
	for _, raw := range rawLegs {
		leg, err := ParseLeg(raw)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return app.Engine.Strategy(ctx, engine.StrategyRequest{
		Name:        name,
		Type:        typ,
		Symbol:      symbol,
		Spot:        optionalFloat(cmd, "spot"),
		Legs:        legs,
		Assumptions: assumptions(cmd),
	})
}

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy <symbol>",
		Short: "Evaluate a multi-leg strategy",
		Long: `Evaluate a multi-leg strategy: net cost, maximum profit and loss,
breakevens, risk/reward and aggregate Greeks.

Give explicit legs with --leg, or only --type to build the template around
the at-the-money strike at theoretical prices.`,
		Example: `  options strategy SPY --spot 100 --leg buy:call:100:5:1:2026-11-20
  options strategy SPY --spot 100 --type bull-call-spread --leg buy:call:100:5 --leg sell:call:105:2.5
  options strategy SPY --spot 452.30 --type iron-condor --width 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			st, err := evaluateFromFlags(ctx, cmd, app, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(st)
			}
			displayStrategy(output, st)
			return nil
		},
	}
	addStrategyFlags(cmd)
	return cmd
}

func displayStrategy(output *Output, st *models.Strategy) {
	output.Bold("%s - %s @ %s", st.Name, st.Symbol, FormatPrice(st.Spot))
	output.Println()

	table := NewTable(output, "Leg", "Mark", "Source", "P&L", "Delta")
	for _, p := range st.Positions {
		table.AddRow(FormatLeg(p.Leg), FormatPrice(p.CurrentPrice), p.PriceSource, output.FormatPnL(p.UnrealizedPnL), fmt.Sprintf("%.4f", p.Greeks.Delta))
	}
	table.Render()
	output.Println()

	netLabel := "Net debit"
	if st.NetCost < 0 {
		netLabel = "Net credit"
	}
	output.Printf("  %-12s %s\n", netLabel+":", FormatMoney(math.Abs(st.NetCost)))
	output.Printf("  %-12s %s\n", "Max profit:", output.FormatBound(st.MaxProfit.Value, st.MaxProfit.Unbounded, true))
	output.Printf("  %-12s %s\n", "Max loss:", output.FormatBound(st.MaxLoss.Value, st.MaxLoss.Unbounded, false))
	output.Printf("  %-12s %s\n", "Breakevens:", FormatBreakevens(st.Breakevens))
	output.Printf("  %-12s %s\n", "Risk/reward:", FormatRiskReward(st.RiskReward))
	output.Printf("  %-12s %s\n", "Greeks:", FormatGreeks(st.Greeks))
}

func newTemplatesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List strategy templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			templates := app.Engine.Templates()
			if output.IsJSON() {
				return output.JSON(templates)
			}
			table := NewTable(output, "Type", "Name", "Outlook", "Legs")
			for _, t := range templates {
				legs := make([]string, 0, len(t.Legs))
				for _, l := range t.Legs {
					if l.Instrument.IsUnderlying() {
						legs = append(legs, fmt.Sprintf("%s stock", l.Side))
						continue
					}
					legs = append(legs, fmt.Sprintf("%s %dx %s %+d", l.Side, l.Ratio, l.Type, l.Offset))
				}
				table.AddRow(strings.ReplaceAll(string(t.Type), "_", "-"), t.Name, t.Outlook, strings.Join(legs, ", "))
			}
			table.Render()
			return nil
		},
	}
}

func newPayoffCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payoff <symbol>",
		Short: "Draw a strategy payoff at expiration",
		Long:  `Draw the profit/loss at expiration of a strategy across underlying prices.`,
		Example: `  options payoff SPY --spot 100 --type straddle
  options payoff SPY --spot 100 --leg buy:put:95:2 --leg sell:put:90:1 --rows 30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			st, err := evaluateFromFlags(ctx, cmd, app, args[0])
			if err != nil {
				return err
			}
			if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
				return output.CSV(st.Curve)
			}
			if output.IsJSON() {
				return output.JSON(st.Curve)
			}
			rows, _ := cmd.Flags().GetInt("rows")
			output.Bold("Payoff at expiration - %s", st.Name)
			output.Println()
			renderPayoff(output, samplePayoff(st.Curve, st.Spot, rows))
			output.Println()
			output.Printf("  Breakevens: %s\n", FormatBreakevens(st.Breakevens))
			return nil
		},
	}
	addStrategyFlags(cmd)
	cmd.Flags().Int("rows", 21, "Number of price rows to draw")
	cmd.Flags().Bool("csv", false, "Write the full profit/loss curve as CSV")
	return cmd
}

// samplePayoff picks rows points from the part of the curve between half
// and one and a half times spot.
func samplePayoff(curve []models.PnLPoint, spot float64, rows int) []models.PnLPoint {
	if rows < 2 {
		rows = 2
	}
	var window []models.PnLPoint
	for _, p := range curve {
		if p.Price >= spot*0.5 && p.Price <= spot*1.5 {
			window = append(window, p)
		}
	}
	if len(window) < rows {
		return window
	}
	out := make([]models.PnLPoint, rows)
	for i := range out {
		out[i] = window[i*(len(window)-1)/(rows-1)]
	}
	return out
}

const payoffHalfWidth = 24

func renderPayoff(output *Output, points []models.PnLPoint) {
	maxAbs := 0.0
	for _, p := range points {
		maxAbs = math.Max(maxAbs, math.Abs(p.PnL))
	}
	for _, p := range points {
		n := 0
		if maxAbs > 0 {
			n = int(math.Round(math.Abs(p.PnL) / maxAbs * payoffHalfWidth))
		}
		var bar string
		switch {
		case p.PnL < 0:
			bar = strings.Repeat(" ", payoffHalfWidth-n) + output.Red(strings.Repeat("█", n)) + "│"
		case p.PnL > 0:
			bar = strings.Repeat(" ", payoffHalfWidth) + "│" + output.Green(strings.Repeat("█", n))
		default:
			bar = strings.Repeat(" ", payoffHalfWidth) + "│"
		}
		output.Printf("%10s %12s %s\n", FormatPrice(p.Price), FormatPnL(p.PnL), bar)
	}
}
