package strategy

import (
	"fmt"
	"math"
	"sort"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// LegShape is one leg of a template. Offset places the strike in wing
// widths from the at-the-money strike; underlying legs carry no strike.
type LegShape struct {
	Instrument models.Instrument `json:"instrument"`
	Type       models.OptionType `json:"option_type,omitempty"`
	Side       models.Side       `json:"side"`
	Ratio      int               `json:"ratio"`
	Offset     int               `json:"strike_offset"`
}

// Template is a named strategy shape used for pre-fill and validation.
type Template struct {
	Type        models.StrategyType `json:"strategy_type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Outlook     string              `json:"outlook"`
	Legs        []LegShape          `json:"legs"`
}

func option(typ models.OptionType, side models.Side, ratio, offset int) LegShape {
	return LegShape{Instrument: models.InstrumentOption, Type: typ, Side: side, Ratio: ratio, Offset: offset}
}

func stock(side models.Side) LegShape {
	return LegShape{Instrument: models.InstrumentUnderlying, Side: side, Ratio: 1}
}

var catalogue = []Template{
	{
		Type: models.LongCall, Name: "Long Call", Outlook: "bullish",
		Description: "Buy a call; profit unlimited above strike plus premium",
		Legs:        []LegShape{option(models.Call, models.Buy, 1, 0)},
	},
	{
		Type: models.LongPut, Name: "Long Put", Outlook: "bearish",
		Description: "Buy a put; profit grows as the underlying falls below strike",
		Legs:        []LegShape{option(models.Put, models.Buy, 1, 0)},
	},
	{
		Type: models.CoveredCall, Name: "Covered Call", Outlook: "neutral to bullish",
		Description: "Hold the underlying and sell an out-of-the-money call against it",
		Legs:        []LegShape{stock(models.Buy), option(models.Call, models.Sell, 1, 1)},
	},
	{
		Type: models.ProtectivePut, Name: "Protective Put", Outlook: "bullish with protection",
		Description: "Hold the underlying and buy an out-of-the-money put as insurance",
		Legs:        []LegShape{stock(models.Buy), option(models.Put, models.Buy, 1, -1)},
	},
	{
		Type: models.Straddle, Name: "Long Straddle", Outlook: "volatile",
		Description: "Buy a call and a put at the same strike",
		Legs:        []LegShape{option(models.Put, models.Buy, 1, 0), option(models.Call, models.Buy, 1, 0)},
	},
	{
		Type: models.Strangle, Name: "Long Strangle", Outlook: "volatile",
		Description: "Buy an out-of-the-money put and an out-of-the-money call",
		Legs:        []LegShape{option(models.Put, models.Buy, 1, -1), option(models.Call, models.Buy, 1, 1)},
	},
	{
		Type: models.BullCallSpread, Name: "Bull Call Spread", Outlook: "moderately bullish",
		Description: "Buy a call and sell a higher-strike call",
		Legs:        []LegShape{option(models.Call, models.Buy, 1, 0), option(models.Call, models.Sell, 1, 1)},
	},
	{
		Type: models.BearCallSpread, Name: "Bear Call Spread", Outlook: "moderately bearish",
		Description: "Sell a call and buy a higher-strike call for a net credit",
		Legs:        []LegShape{option(models.Call, models.Sell, 1, 0), option(models.Call, models.Buy, 1, 1)},
	},
	{
		Type: models.BullPutSpread, Name: "Bull Put Spread", Outlook: "moderately bullish",
		Description: "Sell a put and buy a lower-strike put for a net credit",
		Legs:        []LegShape{option(models.Put, models.Buy, 1, -1), option(models.Put, models.Sell, 1, 0)},
	},
	{
		Type: models.BearPutSpread, Name: "Bear Put Spread", Outlook: "moderately bearish",
		Description: "Buy a put and sell a lower-strike put",
		Legs:        []LegShape{option(models.Put, models.Sell, 1, -1), option(models.Put, models.Buy, 1, 0)},
	},
	{
		Type: models.Butterfly, Name: "Long Call Butterfly", Outlook: "neutral",
		Description: "Buy one low and one high call, sell two calls at the middle strike",
		Legs: []LegShape{
			option(models.Call, models.Buy, 1, -1),
			option(models.Call, models.Sell, 2, 0),
			option(models.Call, models.Buy, 1, 1),
		},
	},
	{
		Type: models.IronCondor, Name: "Iron Condor", Outlook: "neutral",
		Description: "Sell an out-of-the-money put spread and call spread for a net credit",
		Legs: []LegShape{
			option(models.Put, models.Buy, 1, -2),
			option(models.Put, models.Sell, 1, -1),
			option(models.Call, models.Sell, 1, 1),
			option(models.Call, models.Buy, 1, 2),
		},
	},
}

// Catalogue returns every named template in display order.
func Catalogue() []Template {
	out := make([]Template, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the template for t. Custom strategies have none.
func Lookup(t models.StrategyType) (Template, bool) {
	for _, tpl := range catalogue {
		if tpl.Type == t {
			return tpl, true
		}
	}
	return Template{}, false
}

// Build lays the template out around atm with strikes width apart. Premiums
// are left at zero for the caller to fill in.
func (t Template) Build(atm, width float64, quantity int) ([]models.Leg, error) {
	if !(atm > 0) {
		return nil, apperrors.NewValidationError("atm_strike", atm, "must be positive")
	}
	if !(width > 0) {
		return nil, apperrors.NewValidationError("width", width, "must be positive")
	}
	if quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity", quantity, "must be positive")
	}

	legs := make([]models.Leg, 0, len(t.Legs))
	for _, shape := range t.Legs {
		leg := models.Leg{
			Instrument: shape.Instrument,
			Type:       shape.Type,
			Side:       shape.Side,
			Quantity:   shape.Ratio * quantity,
		}
		if !shape.Instrument.IsUnderlying() {
			leg.Strike = atm + float64(shape.Offset)*width
			if leg.Strike <= 0 {
				return nil, apperrors.NewValidationError("width", width,
					fmt.Sprintf("%s strike would be %.2f", t.Name, leg.Strike))
			}
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// Validate checks that legs have the template's shape: leg count,
// instruments, option types, sides, quantity ratios and strike ordering.
func (t Template) Validate(legs []models.Leg) error {
	mismatch := func(format string, args ...interface{}) error {
		return apperrors.NewValidationError("legs", t.Type, t.Name+": "+fmt.Sprintf(format, args...))
	}

	if len(legs) != len(t.Legs) {
		return mismatch("expected %d legs, got %d", len(t.Legs), len(legs))
	}

	got := make([]models.Leg, len(legs))
	for i, l := range legs {
		// a negative quantity flips the side
		if l.Quantity < 0 {
			l.Quantity = -l.Quantity
			l.Side = flip(l.Side)
		}
		got[i] = l
	}
	want := make([]LegShape, len(t.Legs))
	copy(want, t.Legs)

	sort.SliceStable(got, func(i, j int) bool {
		return legKey(got[i]).less(legKey(got[j]))
	})
	sort.SliceStable(want, func(i, j int) bool {
		return shapeKey(want[i]).less(shapeKey(want[j]))
	})

	base := got[0].Quantity / want[0].Ratio
	if base <= 0 || got[0].Quantity%want[0].Ratio != 0 {
		return mismatch("quantities do not match ratio %d", want[0].Ratio)
	}

	for i := range got {
		g, w := got[i], want[i]
		if g.Instrument.IsUnderlying() != w.Instrument.IsUnderlying() {
			return mismatch("leg %d should be %s", i+1, describe(w))
		}
		if !w.Instrument.IsUnderlying() && g.Type != w.Type {
			return mismatch("leg %d should be %s", i+1, describe(w))
		}
		if g.Side != w.Side {
			return mismatch("leg %d should be %s", i+1, describe(w))
		}
		if g.Quantity != base*w.Ratio {
			return mismatch("leg %d quantity %d breaks the %d:%d ratio", i+1, g.Quantity, w.Ratio, want[0].Ratio)
		}
		if i == 0 || w.Instrument.IsUnderlying() || want[i-1].Instrument.IsUnderlying() {
			continue
		}
		prev := got[i-1].Strike
		switch {
		case w.Offset == want[i-1].Offset && math.Abs(g.Strike-prev) > strikeEpsilon:
			return mismatch("legs %d and %d need the same strike", i, i+1)
		case w.Offset > want[i-1].Offset && g.Strike <= prev+strikeEpsilon:
			return mismatch("leg %d strike must be above %.2f", i+1, prev)
		}
	}
	return nil
}

const strikeEpsilon = 1e-9

func flip(s models.Side) models.Side {
	if s == models.Buy {
		return models.Sell
	}
	return models.Buy
}

// sortKey orders the underlying first, then by strike with puts before calls.
type sortKey struct {
	underlying bool
	strike     float64
	call       bool
}

func (a sortKey) less(b sortKey) bool {
	if a.underlying != b.underlying {
		return a.underlying
	}
	if a.strike != b.strike {
		return a.strike < b.strike
	}
	return !a.call && b.call
}

func legKey(l models.Leg) sortKey {
	if l.Instrument.IsUnderlying() {
		return sortKey{underlying: true}
	}
	return sortKey{strike: l.Strike, call: l.Type == models.Call}
}

func shapeKey(s LegShape) sortKey {
	if s.Instrument.IsUnderlying() {
		return sortKey{underlying: true}
	}
	return sortKey{strike: float64(s.Offset), call: s.Type == models.Call}
}

func describe(s LegShape) string {
	if s.Instrument.IsUnderlying() {
		return fmt.Sprintf("%s underlying", s.Side)
	}
	return fmt.Sprintf("%s %s", s.Side, s.Type)
}
