package models

import (
	"encoding/json"
	"math"
	"time"
)

// OptionContract describes a listed or synthetic option contract.
type OptionContract struct {
	Symbol     string     `json:"symbol"`
	Strike     float64    `json:"strike"`
	Expiration time.Time  `json:"expiration"`
	Type       OptionType `json:"option_type"`

	// Optional quoted fields
	Bid               *float64 `json:"bid,omitempty"`
	Ask               *float64 `json:"ask,omitempty"`
	Last              *float64 `json:"last,omitempty"`
	OpenInterest      *int64   `json:"open_interest,omitempty"`
	Volume            *int64   `json:"volume,omitempty"`
	ImpliedVolatility *float64 `json:"implied_volatility,omitempty"`
}

// MarketSnapshot is the market state a computation is evaluated against.
type MarketSnapshot struct {
	Symbol       string    `json:"symbol"`
	Spot         float64   `json:"spot"`
	ObservedAt   time.Time `json:"observed_at"`
	RiskFreeRate float64   `json:"risk_free_rate"`
	Volatility   float64   `json:"volatility"`
}

// Greeks holds option sensitivities. Theta is per calendar day, Vega and Rho per
// one percentage point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Scale returns g with every sensitivity multiplied by q.
func (g Greeks) Scale(q float64) Greeks {
	return Greeks{
		Delta: g.Delta * q,
		Gamma: g.Gamma * q,
		Theta: g.Theta * q,
		Vega:  g.Vega * q,
		Rho:   g.Rho * q,
	}
}

// Add returns the element-wise sum of g and o.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// Leg is one position inside a strategy.
type Leg struct {
	Instrument Instrument `json:"instrument,omitempty"`
	Type       OptionType `json:"option_type,omitempty"`
	Side       Side       `json:"side"`
	Strike     float64    `json:"strike,omitempty"`
	Expiration time.Time  `json:"expiration,omitempty"`
	Quantity   int        `json:"quantity"`
	Premium    float64    `json:"premium"`
}

// SignedQuantity returns the quantity with the side's sign applied.
func (l Leg) SignedQuantity() float64 {
	return l.Side.Sign() * float64(l.Quantity)
}

// ValueAt returns the per-unit value of the leg's instrument at settlement price s.
func (l Leg) ValueAt(s float64) float64 {
	if l.Instrument.IsUnderlying() {
		return s
	}
	return l.Type.Intrinsic(s, l.Strike)
}

// PayoffAt returns the leg's profit or loss if the underlying settles at s.
func (l Leg) PayoffAt(s float64) float64 {
	return (l.ValueAt(s) - l.Premium) * l.SignedQuantity()
}

// Position is a leg marked to the current market.
type Position struct {
	Leg
	CurrentPrice  float64 `json:"current_price"`
	PriceSource   string  `json:"price_source"` // "theoretical" or "quote"
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Greeks        Greeks  `json:"greeks"`
}

// PnLPoint is one sample of a profit/loss curve.
type PnLPoint struct {
	Price float64 `json:"price" csv:"price"`
	PnL   float64 `json:"pnl" csv:"pnl"`
}

// Bound is a risk bound that may be unbounded.
type Bound struct {
	Value     float64
	Unbounded bool
}

// Finite returns a bounded value.
func Finite(v float64) Bound {
	return Bound{Value: v}
}

// Unlimited returns an unbounded value.
func Unlimited() Bound {
	return Bound{Unbounded: true}
}

// MarshalJSON encodes unbounded values as the string "unbounded".
func (b Bound) MarshalJSON() ([]byte, error) {
	if b.Unbounded {
		return []byte(`"unbounded"`), nil
	}
	return json.Marshal(b.Value)
}

// UnmarshalJSON accepts a number or the string "unbounded".
func (b *Bound) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Unlimited()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = Finite(v)
	return nil
}

// Float returns the value, or signed infinity when unbounded.
func (b Bound) Float(sign int) float64 {
	if b.Unbounded {
		return math.Inf(sign)
	}
	return b.Value
}

// Strategy is a multi-leg position and its evaluated payoff profile.
type Strategy struct {
	Name       string       `json:"name"`
	Type       StrategyType `json:"strategy_type"`
	Symbol     string       `json:"symbol"`
	Spot       float64      `json:"spot"`
	Legs       []Leg        `json:"-"`
	Positions  []Position   `json:"positions"`
	NetCost    float64      `json:"net_cost"` // positive = debit, negative = credit
	MaxProfit  Bound        `json:"max_profit"`
	MaxLoss    Bound        `json:"max_loss"`
	RiskReward *float64     `json:"risk_reward,omitempty"`
	Breakevens []float64    `json:"breakeven_points"`
	Curve      []PnLPoint   `json:"profit_loss_curve"`
	Greeks     Greeks       `json:"aggregate_greeks"`
}

// ChainEntry is one side (call or put) of a chain at a single strike.
type ChainEntry struct {
	Strike            float64 `json:"strike"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Last              float64 `json:"last"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"open_interest"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	Greeks
}

// Chain is a synthesized two-sided strike ladder for one expiration.
type Chain struct {
	Symbol           string       `json:"symbol"`
	Spot             float64      `json:"spot"`
	Expiration       time.Time    `json:"expiration"`
	DaysToExpiration int          `json:"days_to_expiration"`
	Volatility       float64      `json:"volatility"`
	RiskFreeRate     float64      `json:"risk_free_rate"`
	Calls            []ChainEntry `json:"calls"`
	Puts             []ChainEntry `json:"puts"`
}

// Strikes returns the strike ladder shared by the calls and puts.
func (c *Chain) Strikes() []float64 {
	strikes := make([]float64, len(c.Calls))
	for i, e := range c.Calls {
		strikes[i] = e.Strike
	}
	return strikes
}
