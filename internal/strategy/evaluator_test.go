package strategy

import (
	"math"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
)

func snap() models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol:       "SPY",
		Spot:         100,
		ObservedAt:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		RiskFreeRate: 0.05,
		Volatility:   0.25,
	}
}

func call(side models.Side, strike, premium float64, qty int) models.Leg {
	return models.Leg{Type: models.Call, Side: side, Strike: strike, Premium: premium, Quantity: qty}
}

func put(side models.Side, strike, premium float64, qty int) models.Leg {
	return models.Leg{Type: models.Put, Side: side, Strike: strike, Premium: premium, Quantity: qty}
}

func underlying(side models.Side, entry float64, qty int) models.Leg {
	return models.Leg{Instrument: models.InstrumentUnderlying, Side: side, Premium: entry, Quantity: qty}
}

func evaluate(t *testing.T, typ models.StrategyType, legs ...models.Leg) *models.Strategy {
	t.Helper()
	s, err := NewEvaluator(DefaultConfig()).Evaluate(Request{Type: typ, Snapshot: snap(), Legs: legs})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func assertBreakevens(t *testing.T, got []float64, want ...float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("breakevens = %v, want %v", got, want)
	}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Fatalf("breakevens = %v, want %v", got, want)
		}
	}
}

func TestEvaluate_LongCall(t *testing.T) {
	s := evaluate(t, models.LongCall, call(models.Buy, 100, 5, 2))

	assertBreakevens(t, s.Breakevens, 105)
	if !s.MaxProfit.Unbounded {
		t.Errorf("max profit = %+v, want unbounded", s.MaxProfit)
	}
	if s.MaxLoss.Unbounded || !approx(s.MaxLoss.Value, -10) {
		t.Errorf("max loss = %+v, want -10", s.MaxLoss)
	}
	if !approx(s.NetCost, 10) {
		t.Errorf("net cost = %v, want 10 debit", s.NetCost)
	}
	if s.RiskReward != nil {
		t.Errorf("risk/reward = %v, want none for unbounded profit", *s.RiskReward)
	}
	if s.Name != "Long Call" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestEvaluate_LongPutIsBoundedAtZero(t *testing.T) {
	s := evaluate(t, models.LongPut, put(models.Buy, 100, 5, 1))

	assertBreakevens(t, s.Breakevens, 95)
	if s.MaxProfit.Unbounded || !approx(s.MaxProfit.Value, 95) {
		t.Errorf("max profit = %+v, want 95 at zero", s.MaxProfit)
	}
	if !approx(s.MaxLoss.Value, -5) {
		t.Errorf("max loss = %+v", s.MaxLoss)
	}
	if s.RiskReward == nil || !approx(*s.RiskReward, 19) {
		t.Errorf("risk/reward = %v, want 19", s.RiskReward)
	}
}

func TestEvaluate_NakedShortCall(t *testing.T) {
	s := evaluate(t, models.Custom, call(models.Sell, 100, 5, 1))

	assertBreakevens(t, s.Breakevens, 105)
	if !s.MaxLoss.Unbounded {
		t.Errorf("max loss = %+v, want unbounded", s.MaxLoss)
	}
	if !approx(s.MaxProfit.Value, 5) || !approx(s.NetCost, -5) {
		t.Errorf("max profit %+v net cost %v", s.MaxProfit, s.NetCost)
	}
}

func TestEvaluate_Straddle(t *testing.T) {
	s := evaluate(t, models.Straddle, call(models.Buy, 100, 6, 1), put(models.Buy, 100, 4, 1))

	assertBreakevens(t, s.Breakevens, 90, 110)
	if !approx(s.MaxLoss.Value, -10) {
		t.Errorf("max loss = %+v, want -10", s.MaxLoss)
	}
	if !s.MaxProfit.Unbounded {
		t.Errorf("max profit = %+v, want unbounded", s.MaxProfit)
	}
	for _, p := range s.Curve {
		if p.Price == 100 && !approx(p.PnL, -10) {
			t.Errorf("P&L at strike = %v", p.PnL)
		}
	}
}

func TestEvaluate_IronCondor(t *testing.T) {
	s := evaluate(t, models.IronCondor,
		put(models.Buy, 85, 0.5, 1),
		put(models.Sell, 90, 1.5, 1),
		call(models.Sell, 110, 1.6, 1),
		call(models.Buy, 115, 0.6, 1),
	)

	credit := 2.0
	if !approx(s.NetCost, -credit) {
		t.Errorf("net cost = %v, want %v credit", s.NetCost, -credit)
	}
	if s.MaxProfit.Unbounded || !approx(s.MaxProfit.Value, credit) {
		t.Errorf("max profit = %+v, want %v", s.MaxProfit, credit)
	}
	if s.MaxLoss.Unbounded || !approx(s.MaxLoss.Value, -(5-credit)) {
		t.Errorf("max loss = %+v, want %v", s.MaxLoss, -(5 - credit))
	}
	assertBreakevens(t, s.Breakevens, 88, 112)
	if s.RiskReward == nil || !approx(*s.RiskReward, credit/(5-credit)) {
		t.Errorf("risk/reward = %v", s.RiskReward)
	}
}

func TestEvaluate_CoveredCallAndProtectivePut(t *testing.T) {
	cc := evaluate(t, models.CoveredCall, underlying(models.Buy, 100, 1), call(models.Sell, 105, 2, 1))
	if cc.MaxProfit.Unbounded || !approx(cc.MaxProfit.Value, 7) {
		t.Errorf("covered call max profit = %+v, want 7", cc.MaxProfit)
	}
	if cc.MaxLoss.Unbounded || !approx(cc.MaxLoss.Value, -98) {
		t.Errorf("covered call max loss = %+v, want -98", cc.MaxLoss)
	}
	assertBreakevens(t, cc.Breakevens, 98)
	// short call delta offsets part of the stock's delta of one
	if cc.Greeks.Delta <= 0 || cc.Greeks.Delta >= 1 {
		t.Errorf("covered call delta = %v", cc.Greeks.Delta)
	}

	pp := evaluate(t, models.ProtectivePut, underlying(models.Buy, 100, 1), put(models.Buy, 95, 1.5, 1))
	if !pp.MaxProfit.Unbounded {
		t.Errorf("protective put max profit = %+v, want unbounded", pp.MaxProfit)
	}
	if !approx(pp.MaxLoss.Value, -6.5) {
		t.Errorf("protective put max loss = %+v, want -6.5", pp.MaxLoss)
	}
	assertBreakevens(t, pp.Breakevens, 101.5)
}

func TestEvaluate_ZeroRunBreakeven(t *testing.T) {
	// a free call is flat at zero up to the strike and only then rises
	s := evaluate(t, models.Custom, call(models.Buy, 100, 0, 1))
	assertBreakevens(t, s.Breakevens, 100)
	if s.RiskReward != nil {
		t.Errorf("risk/reward with zero max loss = %v", *s.RiskReward)
	}
}

func TestEvaluate_AggregateGreeksAndPositions(t *testing.T) {
	expiry := time.Date(2027, 1, 18, 0, 0, 0, 0, time.UTC) // 91 days
	legs := []models.Leg{
		{Type: models.Call, Side: models.Buy, Strike: 100, Premium: 5, Quantity: 1, Expiration: expiry},
		{Type: models.Call, Side: models.Sell, Strike: 110, Premium: 2, Quantity: 2, Expiration: expiry},
	}
	s, err := NewEvaluator(DefaultConfig()).Evaluate(Request{
		Snapshot: snap(),
		Legs:     legs,
		Marks:    map[int]float64{1: 1.25},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != models.Custom {
		t.Errorf("type = %q, want custom", s.Type)
	}

	t91 := pricing.YearFraction(91)
	atm, _ := pricing.Greeks(pricing.Inputs{Spot: 100, Strike: 100, T: t91, Rate: 0.05, Vol: 0.25, Type: models.Call})
	otm, _ := pricing.Greeks(pricing.Inputs{Spot: 100, Strike: 110, T: t91, Rate: 0.05, Vol: 0.25, Type: models.Call})
	want := atm.Add(otm.Scale(-2))
	if !approx(s.Greeks.Delta, want.Delta) || !approx(s.Greeks.Gamma, want.Gamma) ||
		!approx(s.Greeks.Theta, want.Theta) || !approx(s.Greeks.Vega, want.Vega) || !approx(s.Greeks.Rho, want.Rho) {
		t.Errorf("aggregate greeks = %+v, want %+v", s.Greeks, want)
	}

	long := s.Positions[0]
	if long.PriceSource != SourceTheoretical || math.Abs(long.CurrentPrice-5.59) > 0.01 {
		t.Errorf("long leg = %+v", long)
	}
	if !approx(long.UnrealizedPnL, long.CurrentPrice-5) {
		t.Errorf("long unrealized = %v", long.UnrealizedPnL)
	}

	short := s.Positions[1]
	if short.PriceSource != SourceQuote || short.CurrentPrice != 1.25 {
		t.Errorf("short leg = %+v", short)
	}
	// sold at 2, now 1.25, two contracts short
	if !approx(short.UnrealizedPnL, 1.5) {
		t.Errorf("short unrealized = %v, want 1.5", short.UnrealizedPnL)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	expired := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no legs", Request{Snapshot: snap()}, apperrors.ErrUnderspecifiedStrategy},
		{"zero quantity", Request{Snapshot: snap(), Legs: []models.Leg{call(models.Buy, 100, 5, 0)}}, apperrors.ErrInvalidInput},
		{"zero strike", Request{Snapshot: snap(), Legs: []models.Leg{put(models.Buy, 0, 5, 1)}}, apperrors.ErrInvalidInput},
		{"missing type", Request{Snapshot: snap(), Legs: []models.Leg{{Side: models.Buy, Strike: 100, Quantity: 1}}}, apperrors.ErrInvalidInput},
		{"bad side", Request{Snapshot: snap(), Legs: []models.Leg{call("hold", 100, 5, 1)}}, apperrors.ErrInvalidInput},
		{"negative premium", Request{Snapshot: snap(), Legs: []models.Leg{call(models.Buy, 100, -1, 1)}}, apperrors.ErrInvalidInput},
		{"zero spot", Request{Snapshot: models.MarketSnapshot{Volatility: 0.2}, Legs: []models.Leg{call(models.Buy, 100, 5, 1)}}, apperrors.ErrInvalidInput},
		{"zero volatility", Request{Snapshot: models.MarketSnapshot{Spot: 100}, Legs: []models.Leg{call(models.Buy, 100, 5, 1)}}, apperrors.ErrInvalidInput},
		{"unknown type", Request{Type: "collar", Snapshot: snap(), Legs: []models.Leg{call(models.Buy, 100, 5, 1)}}, apperrors.ErrInvalidInput},
		{"shape mismatch", Request{Type: models.IronCondor, Snapshot: snap(), Legs: []models.Leg{call(models.Buy, 100, 5, 1)}}, apperrors.ErrInvalidInput},
		{"mark for missing leg", Request{Snapshot: snap(), Legs: []models.Leg{call(models.Buy, 100, 5, 1)}, Marks: map[int]float64{3: 1}}, apperrors.ErrInvalidInput},
		{"expired leg", Request{Snapshot: snap(), Legs: []models.Leg{{Type: models.Call, Side: models.Buy, Strike: 100, Quantity: 1, Expiration: expired}}}, apperrors.ErrAlreadyExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := e.Evaluate(tt.req)
			if !apperrors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if s != nil {
				t.Errorf("result returned alongside error")
			}
		})
	}
}

func TestBreakevens_Interpolates(t *testing.T) {
	curve := []models.PnLPoint{{Price: 0, PnL: -4}, {Price: 10, PnL: 6}, {Price: 20, PnL: 6}}
	assertBreakevens(t, Breakevens(curve), 4)

	// a touch at zero counts once
	touch := []models.PnLPoint{{Price: 0, PnL: 1}, {Price: 1, PnL: 0}, {Price: 2, PnL: 1}}
	assertBreakevens(t, Breakevens(touch), 1)

	if got := Breakevens([]models.PnLPoint{{Price: 0, PnL: 1}, {Price: 1, PnL: 2}}); len(got) != 0 || got == nil {
		t.Errorf("no crossing = %#v, want empty slice", got)
	}
}

func TestGridIncludesStrikesAndTop(t *testing.T) {
	e := NewEvaluator(Config{GridPoints: 11, UpperMultiple: 2})
	legs := []models.Leg{call(models.Buy, 103.7, 1, 1), put(models.Buy, 250, 1, 1)}
	grid := e.grid(100, legs)

	if grid[0] != 0 || grid[len(grid)-1] != 500 {
		t.Errorf("grid spans %v..%v, want 0..500", grid[0], grid[len(grid)-1])
	}
	found := 0
	for i, x := range grid {
		if i > 0 && x <= grid[i-1] {
			t.Fatalf("grid not ascending at %d", i)
		}
		if x == 103.7 || x == 250 {
			found++
		}
	}
	if found != 2 {
		t.Errorf("strikes missing from grid %v", grid)
	}
}
