package volatility

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
)

func TestSolve_GoldenScenario(t *testing.T) {
	s := NewSolver(DefaultConfig())

	for _, typ := range []models.OptionType{models.Call, models.Put} {
		in := pricing.Inputs{Spot: 100, Strike: 100, T: 0.25, Rate: 0.05, Vol: 0.25, Type: typ}
		price, err := pricing.BlackScholes(in)
		if err != nil {
			t.Fatal(err)
		}

		res, err := s.Solve(Request{MarketPrice: price, Spot: 100, Strike: 100, T: 0.25, Rate: 0.05, Type: typ})
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if !res.Converged {
			t.Errorf("%s: expected convergence, got %+v", typ, res)
		}
		if math.Abs(res.Volatility-0.25) > 1e-4 {
			t.Errorf("%s: volatility = %.6f, want 0.25", typ, res.Volatility)
		}
	}
}

func TestSolve_AlreadyExpired(t *testing.T) {
	s := NewSolver(DefaultConfig())
	for _, tt := range []float64{0, -0.5} {
		_, err := s.Solve(Request{MarketPrice: 5, Spot: 100, Strike: 100, T: tt, Rate: 0.05, Type: models.Call})
		if !apperrors.Is(err, apperrors.ErrAlreadyExpired) {
			t.Errorf("T=%v: err = %v, want ErrAlreadyExpired", tt, err)
		}
	}
}

func TestSolve_InvalidInput(t *testing.T) {
	s := NewSolver(DefaultConfig())
	tests := []struct {
		name string
		req  Request
	}{
		{"zero price", Request{MarketPrice: 0, Spot: 100, Strike: 100, T: 1, Type: models.Call}},
		{"negative spot", Request{MarketPrice: 5, Spot: -1, Strike: 100, T: 1, Type: models.Call}},
		{"zero strike", Request{MarketPrice: 5, Spot: 100, Strike: 0, T: 1, Type: models.Put}},
		{"bad type", Request{MarketPrice: 5, Spot: 100, Strike: 100, T: 1, Type: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Solve(tt.req)
			if !apperrors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if res != (Result{}) {
				t.Errorf("non-zero result %+v alongside error", res)
			}
		})
	}
}

func TestSolve_LowConfidenceEstimate(t *testing.T) {
	s := NewSolver(DefaultConfig())
	// an at-the-money call cannot be worth 99 with sigma capped at 5.0 (max ~98.76)
	res, err := s.Solve(Request{MarketPrice: 99, Spot: 100, Strike: 100, T: 1, Rate: 0, Type: models.Call})
	if err != nil {
		t.Fatalf("expected best estimate, got error %v", err)
	}
	if res.Converged {
		t.Fatalf("expected low-confidence result, got %+v", res)
	}
	if res.Volatility < 4.9 || res.Volatility > 5.0 {
		t.Errorf("volatility = %v, want close to the 5.0 cap", res.Volatility)
	}
}

func TestSolve_ConvergenceFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialGuess = cfg.MinVolatility
	s := NewSolver(cfg)

	// 0.5 is below the no-arbitrage floor S - K*e^{-rT} ~ 9.52, and the search
	// starts pinned at the lower bound, so nothing can improve on it.
	res, err := s.Solve(Request{MarketPrice: 0.5, Spot: 100, Strike: 100, T: 1, Rate: 0.1, Type: models.Call})
	if !apperrors.Is(err, apperrors.ErrConvergenceFailure) {
		t.Fatalf("err = %v, want ErrConvergenceFailure", err)
	}
	if res != (Result{}) {
		t.Errorf("non-zero result %+v alongside error", res)
	}
}

func TestNewSolver_FillsDefaults(t *testing.T) {
	s := NewSolver(Config{})
	if s.Config() != DefaultConfig() {
		t.Errorf("Config() = %+v, want defaults", s.Config())
	}
}

// Property: pricing at sigma0 and solving on that price recovers sigma0 within 1e-3.
func TestProperty_ImpliedVolatilityRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)
	s := NewSolver(DefaultConfig())

	properties.Property("solve(price(sigma)) == sigma", prop.ForAll(
		func(spot, sigma, tt, r float64, isCall bool) bool {
			typ := models.Put
			if isCall {
				typ = models.Call
			}
			// at-the-money forward keeps vega well away from zero across the sigma range
			strike := spot * math.Exp(r*tt)
			price, err := pricing.BlackScholes(pricing.Inputs{Spot: spot, Strike: strike, T: tt, Rate: r, Vol: sigma, Type: typ})
			if err != nil {
				return false
			}
			res, err := s.Solve(Request{MarketPrice: price, Spot: spot, Strike: strike, T: tt, Rate: r, Type: typ})
			if err != nil {
				return false
			}
			return res.Converged && math.Abs(res.Volatility-sigma) < 1e-3
		},
		gen.Float64Range(20, 500),
		gen.Float64Range(0.05, 2.0),
		gen.Float64Range(0.1, 2),
		gen.Float64Range(0, 0.08),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
