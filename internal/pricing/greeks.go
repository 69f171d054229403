package pricing

import (
	"options-analytics/internal/models"
)

// Greeks returns the analytic sensitivities of a European option.
//
// Theta is reported per calendar day, Vega and Rho per one percentage point.
// At expiry every Greek is zero except Delta, which takes its step-function
// limit: 1/0 for an in/out-of-the-money call and -1/0 for a put. The step is
// discontinuous at S == K; there Delta is the T->0 limit of the formula,
// 0.5 for a call and -0.5 for a put.
func Greeks(in Inputs) (models.Greeks, error) {
	if err := in.Validate(); err != nil {
		return models.Greeks{}, err
	}
	if in.T == 0 {
		return models.Greeks{Delta: expiryDelta(in)}, nil
	}

	t := newTerms(in)
	pdf := NPrime(t.d1)

	g := models.Greeks{
		Gamma: pdf / (in.Spot * in.Vol * t.sqrtT),
		Vega:  in.Spot * pdf * t.sqrtT / 100,
	}

	decay := -(in.Spot * pdf * in.Vol) / (2 * t.sqrtT)
	carry := in.Rate * in.Strike * t.discount

	switch in.Type {
	case models.Call:
		g.Delta = N(t.d1)
		g.Theta = (decay - carry*N(t.d2)) / DaysPerYear
		g.Rho = in.Strike * in.T * t.discount * N(t.d2) / 100
	case models.Put:
		g.Delta = N(t.d1) - 1
		g.Theta = (decay + carry*N(-t.d2)) / DaysPerYear
		g.Rho = -in.Strike * in.T * t.discount * N(-t.d2) / 100
	}
	return g, nil
}

func expiryDelta(in Inputs) float64 {
	switch {
	case in.Spot == in.Strike:
		if in.Type == models.Call {
			return 0.5
		}
		return -0.5
	case in.Type == models.Call && in.Spot > in.Strike:
		return 1
	case in.Type == models.Put && in.Spot < in.Strike:
		return -1
	}
	return 0
}
