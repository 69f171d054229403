package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/marketdata"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
	"options-analytics/internal/strategy"
	"options-analytics/internal/volatility"
)

// OptionRequest identifies a single option valuation.
type OptionRequest struct {
	Spot   float64           `json:"spot"`
	Strike float64           `json:"strike"`
	T      float64           `json:"time_to_expiry"`
	Type   models.OptionType `json:"option_type"`
	Assumptions
}

func (e *Engine) inputs(req OptionRequest) pricing.Inputs {
	return pricing.Inputs{
		Spot:   req.Spot,
		Strike: req.Strike,
		T:      req.T,
		Rate:   e.rate(req.Assumptions),
		Vol:    e.vol(req.Assumptions),
		Type:   req.Type,
	}
}

// Price returns the floored Black-Scholes price.
func (e *Engine) Price(req OptionRequest) (float64, error) {
	return e.pricer.Price(e.inputs(req))
}

// Greeks returns the option sensitivities.
func (e *Engine) Greeks(req OptionRequest) (models.Greeks, error) {
	return pricing.Greeks(e.inputs(req))
}

// IVRequest is an observed option price to invert.
type IVRequest struct {
	Symbol      string            `json:"symbol,omitempty"`
	MarketPrice float64           `json:"market_price"`
	Spot        float64           `json:"spot"`
	Strike      float64           `json:"strike"`
	T           float64           `json:"time_to_expiry"`
	Rate        *float64          `json:"risk_free_rate,omitempty"`
	Type        models.OptionType `json:"option_type"`
}

// ImpliedVolatility solves for the volatility that reproduces the market price.
func (e *Engine) ImpliedVolatility(ctx context.Context, req IVRequest) (volatility.Result, error) {
	res, err := e.solver.Solve(volatility.Request{
		MarketPrice: req.MarketPrice,
		Spot:        req.Spot,
		Strike:      req.Strike,
		T:           req.T,
		Rate:        e.rate(Assumptions{Rate: req.Rate}),
		Type:        req.Type,
	})
	logger := logging.WithOperation(e.log(ctx), "implied_volatility")
	if err != nil {
		logger.Debug().Err(err).Str("kind", apperrors.Kind(err)).Msg("IV solve rejected")
		return volatility.Result{}, err
	}
	logging.LogSolve(logger, req.Symbol, req.Strike, req.MarketPrice, res.Volatility, res.Converged, res.Iterations)
	return res, nil
}

// ChainRequest selects a chain. A nil Spot is resolved through the provider
// and a zero Expiration selects the next listed expiration.
type ChainRequest struct {
	Symbol     string
	Spot       *float64
	Expiration time.Time
	Assumptions
}

// Chain synthesizes the two-sided strike ladder.
func (e *Engine) Chain(ctx context.Context, req ChainRequest) (*models.Chain, error) {
	start := time.Now()
	snap, err := e.snapshot(ctx, req.Symbol, req.Spot, req.Assumptions)
	if err != nil {
		return nil, err
	}
	c, err := e.synth.Synthesize(ctx, snap, req.Expiration)
	if err != nil {
		return nil, err
	}
	logging.LogChain(logging.WithOperation(e.log(ctx), "chain"), c.Symbol, c.Spot, c.Expiration, len(c.Calls), time.Since(start))
	return c, nil
}

// StrategyRequest is a set of legs to evaluate. A nil Spot is resolved
// through the provider.
type StrategyRequest struct {
	Name   string
	Type   models.StrategyType
	Symbol string
	Spot   *float64
	Legs   []models.Leg
	Assumptions
}

// Strategy evaluates the legs. When the provider also quotes options, each
// option leg is marked at the quote mid instead of its theoretical value.
func (e *Engine) Strategy(ctx context.Context, req StrategyRequest) (*models.Strategy, error) {
	if len(req.Legs) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrUnderspecifiedStrategy, "strategy has no legs")
	}
	snap, err := e.snapshot(ctx, req.Symbol, req.Spot, req.Assumptions)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, snap, req.Name, req.Type, req.Legs)
}

func (e *Engine) evaluate(ctx context.Context, snap models.MarketSnapshot, name string, typ models.StrategyType, legs []models.Leg) (*models.Strategy, error) {
	s, err := e.evaluator.Evaluate(strategy.Request{
		Name:     name,
		Type:     typ,
		Snapshot: snap,
		Legs:     legs,
		Marks:    e.marks(ctx, snap, legs),
	})
	if err != nil {
		return nil, err
	}
	logging.LogEvaluation(logging.WithOperation(e.log(ctx), "strategy"), s.Name, s.Symbol, len(s.Legs), s.NetCost, len(s.Breakevens))
	return s, nil
}

// marks collects observed option prices. A missing or failed quote leaves
// the leg at its theoretical value.
func (e *Engine) marks(ctx context.Context, snap models.MarketSnapshot, legs []models.Leg) map[int]float64 {
	qp, ok := e.provider.(marketdata.QuoteProvider)
	if !ok {
		return nil
	}

	logger := logging.WithSymbol(e.log(ctx), snap.Symbol)
	marks := make(map[int]float64)
	for i, leg := range legs {
		if leg.Instrument.IsUnderlying() || !leg.Type.Valid() {
			continue
		}
		expiration := leg.Expiration
		if expiration.IsZero() {
			expiration = snap.ObservedAt.AddDate(0, 0, e.cfg.Strategy.DefaultDaysToExpiry)
		}
		q, err := qp.GetOptionQuote(ctx, models.OptionContract{
			Symbol:     snap.Symbol,
			Strike:     leg.Strike,
			Expiration: expiration,
			Type:       leg.Type,
		})
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
				logger.Warn().Err(err).Int("leg", i).Msg("option quote failed, using theoretical price")
			}
			continue
		}
		if mid, ok := q.Mid(); ok {
			marks[i] = mid
		}
	}
	return marks
}

// Templates lists the strategy catalogue.
func (e *Engine) Templates() []strategy.Template {
	return strategy.Catalogue()
}

// BuildRequest lays a catalogue template out around the money.
type BuildRequest struct {
	Type   models.StrategyType
	Symbol string
	Spot   *float64
	// Width is the strike spacing; zero uses the chain strike increment.
	Width      float64
	Quantity   int
	Expiration time.Time
	Assumptions
}

// BuildStrategy builds a template around the strike nearest spot, prices
// every leg at its theoretical value and evaluates the result.
func (e *Engine) BuildStrategy(ctx context.Context, req BuildRequest) (*models.Strategy, error) {
	tpl, ok := strategy.Lookup(req.Type)
	if !ok {
		return nil, apperrors.NewValidationError("strategy_type", req.Type, "no template")
	}
	snap, err := e.snapshot(ctx, req.Symbol, req.Spot, req.Assumptions)
	if err != nil {
		return nil, err
	}
	if !(snap.Spot > 0) {
		return nil, apperrors.NewValidationError("spot", snap.Spot, "must be positive")
	}

	width := req.Width
	if width == 0 {
		width = e.cfg.Chain.StrikeIncrement
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	atm := roundToIncrement(snap.Spot, e.cfg.Chain.StrikeIncrement)

	legs, err := tpl.Build(atm, width, quantity)
	if err != nil {
		return nil, err
	}

	expiration := req.Expiration
	if expiration.IsZero() {
		expiration = e.synth.Expiration(snap.ObservedAt)
	}
	days := pricing.DaysBetween(snap.ObservedAt, expiration)
	if days < 0 {
		return nil, apperrors.Wrapf(apperrors.ErrAlreadyExpired, "expiration %s", expiration.Format("2006-01-02"))
	}

	for i := range legs {
		if legs[i].Instrument.IsUnderlying() {
			legs[i].Premium = snap.Spot
			continue
		}
		legs[i].Expiration = expiration
		premium, err := e.pricer.Price(pricing.Inputs{
			Spot:   snap.Spot,
			Strike: legs[i].Strike,
			T:      pricing.YearFraction(days),
			Rate:   snap.RiskFreeRate,
			Vol:    snap.Volatility,
			Type:   legs[i].Type,
		})
		if err != nil {
			return nil, err
		}
		legs[i].Premium = premium
	}

	return e.evaluate(ctx, snap, tpl.Name, tpl.Type, legs)
}

// log returns the request-scoped logger carried by ctx, or the engine logger.
func (e *Engine) log(ctx context.Context) zerolog.Logger {
	return logging.FromContext(ctx, e.logger)
}
