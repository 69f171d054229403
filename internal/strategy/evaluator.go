// Package strategy evaluates multi-leg option strategies at expiry.
package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
	"github.com/shopspring/decimal"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
)

// zeroPnL is the tolerance under which a sampled P&L counts as zero.
const zeroPnL = 1e-9

// Price sources reported on positions.
const (
	SourceTheoretical = "theoretical"
	SourceQuote       = "quote"
)

// Config holds evaluation parameters.
type Config struct {
	// GridPoints is the number of evenly spaced settlement samples; every leg
	// strike is added on top of them.
	GridPoints int
	// UpperMultiple sets the top of the grid as a multiple of max(spot, highest strike).
	UpperMultiple float64
	// DefaultDaysToExpiry applies to option legs without an expiration.
	DefaultDaysToExpiry int
	MinTick             float64
}

// DefaultConfig returns the default evaluation parameters.
func DefaultConfig() Config {
	return Config{
		GridPoints:          401,
		UpperMultiple:       2.0,
		DefaultDaysToExpiry: 30,
		MinTick:             pricing.DefaultMinTick,
	}
}

// Request is a strategy to evaluate against a market snapshot.
type Request struct {
	Name     string
	Type     models.StrategyType
	Snapshot models.MarketSnapshot
	Legs     []models.Leg
	// Marks holds observed prices by leg index; legs without one are marked
	// at their theoretical value.
	Marks map[int]float64
}

// Evaluator computes payoff profiles. It holds no per-call state.
type Evaluator struct {
	cfg    Config
	pricer *pricing.Pricer
}

// NewEvaluator creates an Evaluator, filling unset parameters from DefaultConfig.
func NewEvaluator(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.GridPoints < 3 {
		cfg.GridPoints = def.GridPoints
	}
	if !(cfg.UpperMultiple > 1) {
		cfg.UpperMultiple = def.UpperMultiple
	}
	if cfg.DefaultDaysToExpiry < 0 {
		cfg.DefaultDaysToExpiry = def.DefaultDaysToExpiry
	}
	return &Evaluator{cfg: cfg, pricer: pricing.NewPricer(cfg.MinTick)}
}

// Config returns the evaluation parameters.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate computes net cost, the expiry P&L curve, breakevens, risk bounds,
// aggregate Greeks and marked positions for req.
func (e *Evaluator) Evaluate(req Request) (*models.Strategy, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	snap := req.Snapshot
	observed := snap.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}

	typ := req.Type
	if typ == "" {
		typ = models.Custom
	}
	name := req.Name
	if name == "" {
		name = string(typ)
		if tpl, ok := Lookup(typ); ok {
			name = tpl.Name
		}
	}

	s := &models.Strategy{
		Name:      name,
		Type:      typ,
		Symbol:    snap.Symbol,
		Spot:      snap.Spot,
		Legs:      req.Legs,
		Positions: make([]models.Position, 0, len(req.Legs)),
		NetCost:   NetCost(req.Legs),
	}

	for i, leg := range req.Legs {
		pos, err := e.position(snap, observed, leg)
		if err != nil {
			return nil, err
		}
		if mark, ok := req.Marks[i]; ok {
			pos.CurrentPrice = mark
			pos.PriceSource = SourceQuote
		}
		pos.UnrealizedPnL = (pos.CurrentPrice - leg.Premium) * leg.SignedQuantity()
		s.Positions = append(s.Positions, pos)
		s.Greeks = s.Greeks.Add(pos.Greeks)
	}

	s.Curve = Curve(req.Legs, e.grid(snap.Spot, req.Legs))
	s.Breakevens = Breakevens(s.Curve)
	s.MaxProfit, s.MaxLoss = Bounds(s.Curve)

	if !s.MaxProfit.Unbounded && !s.MaxLoss.Unbounded && s.MaxLoss.Value != 0 {
		rr := math.Abs(s.MaxProfit.Value / s.MaxLoss.Value)
		s.RiskReward = &rr
	}

	return s, nil
}

func (e *Evaluator) validate(req Request) error {
	if len(req.Legs) == 0 {
		return apperrors.Wrap(apperrors.ErrUnderspecifiedStrategy, "strategy has no legs")
	}

	snap := req.Snapshot
	if !(snap.Spot > 0) || math.IsInf(snap.Spot, 0) {
		return apperrors.NewValidationError("spot", snap.Spot, "must be positive")
	}
	if !(snap.Volatility > 0) || math.IsInf(snap.Volatility, 0) {
		return apperrors.NewValidationError("volatility", snap.Volatility, "must be positive")
	}
	if math.IsNaN(snap.RiskFreeRate) || math.IsInf(snap.RiskFreeRate, 0) {
		return apperrors.NewValidationError("risk_free_rate", snap.RiskFreeRate, "must be finite")
	}
	if req.Type != "" && !req.Type.Valid() {
		return apperrors.NewValidationError("strategy_type", req.Type, "unknown strategy type")
	}

	for i, leg := range req.Legs {
		if err := validateLeg(leg); err != nil {
			return apperrors.Wrapf(err, "leg %d", i+1)
		}
	}
	for i, mark := range req.Marks {
		if i < 0 || i >= len(req.Legs) {
			return apperrors.NewValidationError("marks", i, "refers to a missing leg")
		}
		if mark < 0 || math.IsNaN(mark) || math.IsInf(mark, 0) {
			return apperrors.NewValidationError("marks", mark, "must be a non-negative price")
		}
	}

	if tpl, ok := Lookup(req.Type); ok {
		return tpl.Validate(req.Legs)
	}
	return nil
}

func validateLeg(leg models.Leg) error {
	if !leg.Instrument.Valid() {
		return apperrors.NewValidationError("instrument", leg.Instrument, "must be option or underlying")
	}
	if !leg.Side.Valid() {
		return apperrors.NewValidationError("side", leg.Side, "must be buy or sell")
	}
	if leg.Quantity == 0 {
		return apperrors.NewValidationError("quantity", leg.Quantity, "must be non-zero")
	}
	if leg.Premium < 0 || math.IsNaN(leg.Premium) || math.IsInf(leg.Premium, 0) {
		return apperrors.NewValidationError("premium", leg.Premium, "must be a non-negative price")
	}
	if leg.Instrument.IsUnderlying() {
		return nil
	}
	if !leg.Type.Valid() {
		return apperrors.NewValidationError("option_type", leg.Type, "must be call or put")
	}
	if !(leg.Strike > 0) || math.IsInf(leg.Strike, 0) {
		return apperrors.NewValidationError("strike", leg.Strike, "must be positive")
	}
	return nil
}

// position marks one leg at its theoretical value.
func (e *Evaluator) position(snap models.MarketSnapshot, observed time.Time, leg models.Leg) (models.Position, error) {
	pos := models.Position{Leg: leg, PriceSource: SourceTheoretical}

	if leg.Instrument.IsUnderlying() {
		pos.CurrentPrice = snap.Spot
		pos.Greeks = models.Greeks{Delta: 1}.Scale(leg.SignedQuantity())
		return pos, nil
	}

	days := e.cfg.DefaultDaysToExpiry
	if !leg.Expiration.IsZero() {
		days = pricing.DaysBetween(observed, leg.Expiration)
	}
	if days < 0 {
		return pos, apperrors.Wrapf(apperrors.ErrAlreadyExpired,
			"%s %.2f expired %s", leg.Type, leg.Strike, leg.Expiration.Format("2006-01-02"))
	}

	in := pricing.Inputs{
		Spot:   snap.Spot,
		Strike: leg.Strike,
		T:      pricing.YearFraction(days),
		Rate:   snap.RiskFreeRate,
		Vol:    snap.Volatility,
		Type:   leg.Type,
	}
	price, err := e.pricer.Price(in)
	if err != nil {
		return pos, err
	}
	greeks, err := pricing.Greeks(in)
	if err != nil {
		return pos, err
	}

	pos.CurrentPrice = price
	pos.Greeks = greeks.Scale(leg.SignedQuantity())
	return pos, nil
}

// grid returns ascending settlement prices from 0 to the upper bound,
// evenly spaced, with every strike included so kinks are sampled exactly.
func (e *Evaluator) grid(spot float64, legs []models.Leg) []float64 {
	top := spot
	for _, l := range legs {
		if !l.Instrument.IsUnderlying() && l.Strike > top {
			top = l.Strike
		}
	}
	top *= e.cfg.UpperMultiple

	set := treeset.NewWith(utils.Float64Comparator)
	n := e.cfg.GridPoints
	for i := 0; i < n; i++ {
		set.Add(top * float64(i) / float64(n-1))
	}
	for _, l := range legs {
		if !l.Instrument.IsUnderlying() {
			set.Add(l.Strike)
		}
	}

	points := make([]float64, 0, set.Size())
	for _, v := range set.Values() {
		points = append(points, v.(float64))
	}
	return points
}

// NetCost sums premium times signed quantity: debits positive, credits negative.
func NetCost(legs []models.Leg) float64 {
	total := decimal.Zero
	for _, l := range legs {
		total = total.Add(decimal.NewFromFloat(l.Premium).Mul(decimal.NewFromFloat(l.SignedQuantity())))
	}
	return total.InexactFloat64()
}

// PayoffAt returns the total expiry P&L of legs at settlement price s.
func PayoffAt(legs []models.Leg, s float64) float64 {
	var total float64
	for _, l := range legs {
		total += l.PayoffAt(s)
	}
	return total
}

// Curve samples the expiry P&L at each price.
func Curve(legs []models.Leg, prices []float64) []models.PnLPoint {
	curve := make([]models.PnLPoint, len(prices))
	for i, s := range prices {
		curve[i] = models.PnLPoint{Price: s, PnL: PayoffAt(legs, s)}
	}
	return curve
}

// Breakevens returns the ascending prices where the curve crosses or
// touches zero. Sign changes are located by linear interpolation; a zero
// sample counts when a neighbouring sample is non-zero, so a flat run at zero
// contributes its edges.
func Breakevens(curve []models.PnLPoint) []float64 {
	isZero := func(v float64) bool { return math.Abs(v) <= zeroPnL }

	var out []float64
	for i, p := range curve {
		if isZero(p.PnL) {
			left := i > 0 && !isZero(curve[i-1].PnL)
			right := i < len(curve)-1 && !isZero(curve[i+1].PnL)
			if left || right {
				out = append(out, p.Price)
			}
			continue
		}
		if i == len(curve)-1 {
			break
		}
		q := curve[i+1]
		if !isZero(q.PnL) && (p.PnL < 0) != (q.PnL < 0) {
			x := p.Price - p.PnL*(q.Price-p.Price)/(q.PnL-p.PnL)
			out = append(out, x)
		}
	}

	sort.Float64s(out)
	deduped := out[:0]
	for _, x := range out {
		if len(deduped) > 0 && math.Abs(x-deduped[len(deduped)-1]) <= 1e-9 {
			continue
		}
		deduped = append(deduped, x)
	}
	if len(deduped) == 0 {
		return []float64{}
	}
	return deduped
}

// Bounds returns the maximum profit and maximum loss over the curve. The
// lower end of the grid is the zero price, so only the upper tail can be
// unbounded: a non-zero slope past the last sampled kink continues forever.
func Bounds(curve []models.PnLPoint) (maxProfit, maxLoss models.Bound) {
	if len(curve) == 0 {
		return models.Finite(0), models.Finite(0)
	}

	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range curve {
		hi = math.Max(hi, p.PnL)
		lo = math.Min(lo, p.PnL)
	}
	maxProfit, maxLoss = models.Finite(hi), models.Finite(lo)

	if len(curve) < 2 {
		return maxProfit, maxLoss
	}
	a, b := curve[len(curve)-2], curve[len(curve)-1]
	slope := (b.PnL - a.PnL) / (b.Price - a.Price)
	switch {
	case slope > zeroPnL:
		maxProfit = models.Unlimited()
	case slope < -zeroPnL:
		maxLoss = models.Unlimited()
	}
	return maxProfit, maxLoss
}
