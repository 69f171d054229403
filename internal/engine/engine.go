// Package engine exposes the analytics operations behind one facade: it fills
// model assumptions from configuration, resolves spot prices through the
// market-data collaborator and logs each computation.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"options-analytics/internal/chain"
	"options-analytics/internal/config"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/marketdata"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
	"options-analytics/internal/strategy"
	"options-analytics/internal/volatility"
)

// Engine is safe for concurrent use; it holds configuration and
// collaborators but no per-request state.
type Engine struct {
	cfg       *config.Config
	pricer    *pricing.Pricer
	solver    *volatility.Solver
	synth     *chain.Synthesizer
	evaluator *strategy.Evaluator
	provider  marketdata.Provider
	quotes    chain.QuoteSource
	calendar  chain.BusinessCalendar
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithProvider sets the market-data collaborator used to resolve spot prices
// and, when it implements marketdata.QuoteProvider, option marks.
func WithProvider(p marketdata.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithQuoteSource overrides the chain quote source chosen from configuration.
func WithQuoteSource(q chain.QuoteSource) Option {
	return func(e *Engine) { e.quotes = q }
}

// WithCalendar overrides the exchange calendar (NYSE by default).
func WithCalendar(cal chain.BusinessCalendar) Option {
	return func(e *Engine) { e.calendar = cal }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the observation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	weekday, err := config.ParseWeekday(cfg.Chain.ExpiryWeekday)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, err.Error())
	}

	e := &Engine{
		cfg:      cfg,
		calendar: chain.NYSE(),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.quotes == nil {
		if cfg.Chain.QuoteSeed != 0 {
			e.quotes = chain.NewSeededQuoteSource(cfg.Chain.QuoteSeed)
		} else {
			e.quotes = chain.FixedQuoteSource{}
		}
	}

	e.pricer = pricing.NewPricer(cfg.Pricing.MinTick)
	e.solver = volatility.NewSolver(volatility.Config{
		InitialGuess:  cfg.ImpliedVolatility.InitialGuess,
		MinVolatility: cfg.ImpliedVolatility.MinVolatility,
		MaxVolatility: cfg.ImpliedVolatility.MaxVolatility,
		Tolerance:     cfg.ImpliedVolatility.Tolerance,
		MaxIterations: cfg.ImpliedVolatility.MaxIterations,
	})
	e.synth = chain.NewSynthesizer(chain.Config{
		StrikeIncrement: cfg.Chain.StrikeIncrement,
		StrikesEachSide: cfg.Chain.StrikesEachSide,
		SpreadPercent:   cfg.Chain.SpreadPercent,
		MinTick:         cfg.Pricing.MinTick,
		ExpiryWeekday:   weekday,
		Parallel:        cfg.Chain.Parallel,
	}, e.quotes, e.calendar)
	e.evaluator = strategy.NewEvaluator(strategy.Config{
		GridPoints:          cfg.Strategy.GridPoints,
		UpperMultiple:       cfg.Strategy.UpperMultiple,
		DefaultDaysToExpiry: cfg.Strategy.DefaultDaysToExpiry,
		MinTick:             cfg.Pricing.MinTick,
	})
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Provider returns the market-data collaborator, or nil.
func (e *Engine) Provider() marketdata.Provider {
	return e.provider
}

// Expiration returns the default listed expiration after the current time.
func (e *Engine) Expiration() time.Time {
	return e.synth.Expiration(e.now())
}

// Assumptions holds optional per-request overrides of the configured model
// inputs.
type Assumptions struct {
	Rate       *float64 `json:"risk_free_rate,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"`
}

func (e *Engine) rate(a Assumptions) float64 {
	if a.Rate != nil {
		return *a.Rate
	}
	return e.cfg.Pricing.RiskFreeRate
}

func (e *Engine) vol(a Assumptions) float64 {
	if a.Volatility != nil {
		return *a.Volatility
	}
	return e.cfg.Pricing.Volatility
}

// snapshot resolves the market state for symbol. A nil spot is fetched from
// the provider; an explicit spot is used as given.
func (e *Engine) snapshot(ctx context.Context, symbol string, spot *float64, a Assumptions) (models.MarketSnapshot, error) {
	snap := models.MarketSnapshot{
		Symbol:       marketdata.NormalizeSymbol(symbol),
		ObservedAt:   e.now(),
		RiskFreeRate: e.rate(a),
		Volatility:   e.vol(a),
	}
	if spot != nil {
		snap.Spot = *spot
		return snap, nil
	}

	if e.provider == nil {
		return snap, apperrors.Unavailable(symbol, nil)
	}
	price, at, err := e.provider.GetCurrentPrice(ctx, snap.Symbol)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
			err = apperrors.Unavailable(symbol, err)
		}
		return snap, err
	}
	if !(price > 0) {
		return snap, apperrors.Unavailable(symbol, nil)
	}
	snap.Spot = price
	if !at.IsZero() {
		snap.ObservedAt = at
	}
	return snap, nil
}

// roundToIncrement rounds v to the nearest multiple of inc, never below inc.
func roundToIncrement(v, inc float64) float64 {
	step := decimal.NewFromFloat(inc)
	r := decimal.NewFromFloat(v).Div(step).Round(0).Mul(step)
	if r.LessThanOrEqual(decimal.Zero) {
		r = step
	}
	return r.InexactFloat64()
}
