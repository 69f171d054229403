// Package volatility inverts the Black-Scholes pricer to recover implied volatility.
package volatility

import (
	"math"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
)

// minNewtonVega is the vega below which a Newton step is replaced by bisection.
const minNewtonVega = 1e-10

// Config holds solver limits.
type Config struct {
	// InitialGuess is the starting volatility; zero selects the
	// Brenner-Subrahmanyam at-the-money approximation.
	InitialGuess  float64
	MinVolatility float64
	MaxVolatility float64
	// Tolerance bounds |model price - market price| for convergence.
	Tolerance     float64
	MaxIterations int
}

// DefaultConfig returns the default solver limits: sigma in (1e-6, 5.0),
// price tolerance 1e-6, at most 100 iterations.
func DefaultConfig() Config {
	return Config{
		InitialGuess:  0,
		MinVolatility: 1e-6,
		MaxVolatility: 5.0,
		Tolerance:     1e-6,
		MaxIterations: 100,
	}
}

// Request describes an observed option price to invert.
type Request struct {
	MarketPrice float64
	Spot        float64
	Strike      float64
	T           float64
	Rate        float64
	Type        models.OptionType
}

// Result is the solver outcome. Converged is false for a low-confidence
// best estimate returned after the iteration budget ran out.
type Result struct {
	Volatility float64 `json:"volatility"`
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	PriceError float64 `json:"price_error"`
}

// Solver finds sigma with Price(sigma) == market price using Newton-Raphson on
// vega, falling back to bisection inside a shrinking bracket.
type Solver struct {
	cfg Config
}

// NewSolver creates a Solver, filling unset limits from DefaultConfig.
func NewSolver(cfg Config) *Solver {
	def := DefaultConfig()
	if !(cfg.MinVolatility > 0) {
		cfg.MinVolatility = def.MinVolatility
	}
	if !(cfg.MaxVolatility > cfg.MinVolatility) {
		cfg.MaxVolatility = def.MaxVolatility
	}
	if !(cfg.Tolerance > 0) {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	return &Solver{cfg: cfg}
}

// Config returns the effective solver limits.
func (s *Solver) Config() Config {
	return s.cfg
}

func (s *Solver) validate(req Request) error {
	if math.IsNaN(req.T) {
		return apperrors.NewValidationError("time_to_expiry", req.T, "must be a number")
	}
	if req.T <= 0 {
		return apperrors.Wrapf(apperrors.ErrAlreadyExpired, "time to expiry %v", req.T)
	}
	if !(req.MarketPrice > 0) || math.IsInf(req.MarketPrice, 0) {
		return apperrors.NewValidationError("market_price", req.MarketPrice, "must be positive")
	}
	// volatility is irrelevant to input validation; probe with the lower bound
	in := req.inputs(s.cfg.MinVolatility)
	return in.Validate()
}

func (r Request) inputs(vol float64) pricing.Inputs {
	return pricing.Inputs{
		Spot:   r.Spot,
		Strike: r.Strike,
		T:      r.T,
		Rate:   r.Rate,
		Vol:    vol,
		Type:   r.Type,
	}
}

func (s *Solver) start(req Request) float64 {
	guess := s.cfg.InitialGuess
	if guess <= 0 {
		guess = math.Sqrt(2*math.Pi/req.T) * req.MarketPrice / req.Spot
	}
	return math.Min(math.Max(guess, s.cfg.MinVolatility), s.cfg.MaxVolatility)
}

// Solve returns the implied volatility for req.
//
// It fails with ErrAlreadyExpired when T <= 0 and with ErrConvergenceFailure
// when no iterate improves on the starting estimate. Any other non-converged
// run returns the best estimate with Converged == false.
func (s *Solver) Solve(req Request) (Result, error) {
	if err := s.validate(req); err != nil {
		return Result{}, err
	}

	diff := func(vol float64) float64 {
		in := req.inputs(vol)
		price, _ := pricing.BlackScholes(in)
		return price - req.MarketPrice
	}

	lo, hi := s.cfg.MinVolatility, s.cfg.MaxVolatility
	sigma := s.start(req)
	d := diff(sigma)
	best := Result{Volatility: sigma, PriceError: d}
	improved := false

	for i := 1; i <= s.cfg.MaxIterations; i++ {
		if math.Abs(d) < s.cfg.Tolerance {
			return Result{Volatility: sigma, Converged: true, Iterations: i - 1, PriceError: d}, nil
		}

		// price is increasing in sigma, so the sign of d says which side the root is on
		if d > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := math.NaN()
		if vega := pricing.RawVega(req.inputs(sigma)); vega > minNewtonVega {
			next = sigma - d/vega
		}
		if !(next > lo && next < hi) {
			next = 0.5 * (lo + hi)
		}

		sigma = next
		d = diff(sigma)
		if math.Abs(d) < math.Abs(best.PriceError) {
			best = Result{Volatility: sigma, PriceError: d, Iterations: i}
			improved = true
		}
	}

	if math.Abs(d) < s.cfg.Tolerance {
		return Result{Volatility: sigma, Converged: true, Iterations: s.cfg.MaxIterations, PriceError: d}, nil
	}
	if !improved {
		return Result{}, apperrors.Wrapf(apperrors.ErrConvergenceFailure,
			"no improving estimate after %d iterations", s.cfg.MaxIterations)
	}
	return best, nil
}
