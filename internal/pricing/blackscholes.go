// Package pricing implements closed-form European option valuation (Black-Scholes)
// and the analytic Greeks built on the same d1/d2 terms.
package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// DefaultMinTick is the smallest quote the Pricer returns for an unexpired option.
const DefaultMinTick = 0.01

// DaysPerYear converts calendar days to year fractions and annual theta to daily.
const DaysPerYear = 365.0

// Inputs holds the Black-Scholes model inputs.
type Inputs struct {
	Spot   float64           // S, underlying price
	Strike float64           // K
	T      float64           // time to expiry in years
	Rate   float64           // r, annualized continuously compounded
	Vol    float64           // sigma, annualized
	Type   models.OptionType // call or put
}

// Validate checks the inputs against the model's domain.
func (in Inputs) Validate() error {
	if !in.Type.Valid() {
		return apperrors.NewValidationError("option_type", in.Type, "must be call or put")
	}
	if !(in.Spot > 0) || math.IsInf(in.Spot, 0) {
		return apperrors.NewValidationError("spot", in.Spot, "must be positive")
	}
	if !(in.Strike > 0) || math.IsInf(in.Strike, 0) {
		return apperrors.NewValidationError("strike", in.Strike, "must be positive")
	}
	if math.IsNaN(in.T) || in.T < 0 || math.IsInf(in.T, 0) {
		return apperrors.NewValidationError("time_to_expiry", in.T, "must be non-negative")
	}
	if math.IsNaN(in.Rate) || math.IsInf(in.Rate, 0) {
		return apperrors.NewValidationError("rate", in.Rate, "must be finite")
	}
	if in.T > 0 && (!(in.Vol > 0) || math.IsInf(in.Vol, 0)) {
		return apperrors.NewValidationError("volatility", in.Vol, "must be positive")
	}
	return nil
}

// Intrinsic returns the immediate exercise value.
func (in Inputs) Intrinsic() float64 {
	return in.Type.Intrinsic(in.Spot, in.Strike)
}

// terms are the shared intermediate quantities of the model.
type terms struct {
	d1, d2   float64
	sqrtT    float64
	discount float64 // e^{-rT}
}

func newTerms(in Inputs) terms {
	sqrtT := math.Sqrt(in.T)
	volSqrtT := in.Vol * sqrtT
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Vol*in.Vol)*in.T) / volSqrtT
	return terms{
		d1:       d1,
		d2:       d1 - volSqrtT,
		sqrtT:    sqrtT,
		discount: math.Exp(-in.Rate * in.T),
	}
}

// N returns the standard normal cumulative distribution Φ(x).
func N(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// NPrime returns the standard normal density φ(x).
func NPrime(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// BlackScholes returns the unfloored model value. At T=0 it is the intrinsic value.
func BlackScholes(in Inputs) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	return blackScholes(in), nil
}

func blackScholes(in Inputs) float64 {
	if in.T == 0 {
		return in.Intrinsic()
	}
	t := newTerms(in)
	if in.Type == models.Call {
		return in.Spot*N(t.d1) - in.Strike*t.discount*N(t.d2)
	}
	return in.Strike*t.discount*N(-t.d2) - in.Spot*N(-t.d1)
}

// RawVega returns dPrice/dSigma per unit of volatility (not per percentage point).
// It is zero at expiry.
func RawVega(in Inputs) float64 {
	if in.T <= 0 || !(in.Vol > 0) {
		return 0
	}
	t := newTerms(in)
	return in.Spot * NPrime(t.d1) * t.sqrtT
}

// Pricer quotes European options, flooring unexpired values at a minimum tick.
type Pricer struct {
	MinTick float64
}

// NewPricer creates a Pricer. A non-positive tick falls back to DefaultMinTick.
func NewPricer(minTick float64) *Pricer {
	if !(minTick > 0) {
		minTick = DefaultMinTick
	}
	return &Pricer{MinTick: minTick}
}

// Price returns the option value. At expiry it is exactly the intrinsic value;
// otherwise it is never below the intrinsic value or the minimum tick.
func (p *Pricer) Price(in Inputs) (float64, error) {
	raw, err := BlackScholes(in)
	if err != nil {
		return 0, err
	}
	if in.T == 0 {
		return raw, nil
	}
	return max(raw, in.Intrinsic(), p.MinTick), nil
}
