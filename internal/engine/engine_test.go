package engine

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-analytics/internal/config"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/marketdata"
	"options-analytics/internal/models"
	"options-analytics/internal/strategy"
)

// Monday 2026-10-19, noon in New York.
var testNow = time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithCalendar(nil)}, opts...)
	e, err := New(config.Default(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func ptr(v float64) *float64 { return &v }

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Chain.StrikeIncrement = 0
	if _, err := New(cfg); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestPriceAndGreeks_UseConfiguredAssumptions(t *testing.T) {
	e := newTestEngine(t)
	req := OptionRequest{Spot: 100, Strike: 100, T: 0.25, Type: models.Call}

	call, err := e.Price(req)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(call-5.5984) > 1e-3 {
		t.Errorf("call = %.4f, want 5.5984", call)
	}

	req.Type = models.Put
	put, err := e.Price(req)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(put-4.3562) > 1e-3 {
		t.Errorf("put = %.4f, want 4.3562", put)
	}

	// a request override wins over configuration
	req.Volatility = ptr(0.5)
	wider, err := e.Price(req)
	if err != nil {
		t.Fatal(err)
	}
	if wider <= put {
		t.Errorf("put at 50%% vol = %.4f, not above %.4f", wider, put)
	}

	g, err := e.Greeks(OptionRequest{Spot: 100, Strike: 100, T: 0.25, Type: models.Call})
	if err != nil {
		t.Fatal(err)
	}
	if g.Delta < 0.5 || g.Delta > 0.6 || g.Gamma <= 0 || g.Theta >= 0 || g.Vega <= 0 || g.Rho <= 0 {
		t.Errorf("greeks = %+v", g)
	}

	if _, err := e.Price(OptionRequest{Spot: -1, Strike: 100, T: 0.25, Type: models.Call}); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative spot err = %v", err)
	}
}

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	price, err := e.Price(OptionRequest{Spot: 100, Strike: 110, T: 0.5, Type: models.Call, Assumptions: Assumptions{Volatility: ptr(0.35)}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.ImpliedVolatility(context.Background(), IVRequest{Symbol: "SPY", MarketPrice: price, Spot: 100, Strike: 110, T: 0.5, Type: models.Call})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged || math.Abs(res.Volatility-0.35) > 1e-4 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(buf.String(), `"event":"iv_solve"`) {
		t.Errorf("solve not logged: %s", buf.String())
	}

	_, err = e.ImpliedVolatility(context.Background(), IVRequest{MarketPrice: price, Spot: 100, Strike: 110, T: 0, Type: models.Call})
	if !apperrors.Is(err, apperrors.ErrAlreadyExpired) {
		t.Errorf("T=0 err = %v", err)
	}
}

func TestOperations_LogThroughContextLogger(t *testing.T) {
	var engineBuf, requestBuf bytes.Buffer
	e := newTestEngine(t, WithLogger(zerolog.New(&engineBuf)))
	ctx := logging.WithLogger(context.Background(), zerolog.New(&requestBuf).With().Str("request_id", "req-7").Logger())

	if _, err := e.Chain(ctx, ChainRequest{Symbol: "SPY", Spot: ptr(100)}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Strategy(ctx, StrategyRequest{Symbol: "SPY", Spot: ptr(100), Legs: []models.Leg{
		{Instrument: models.InstrumentOption, Side: models.Buy, Type: models.Call, Strike: 100, Premium: 5, Quantity: 1},
	}}); err != nil {
		t.Fatal(err)
	}

	for _, event := range []string{`"event":"chain"`, `"event":"strategy"`} {
		if !strings.Contains(requestBuf.String(), event) {
			t.Errorf("%s not logged through context logger: %s", event, requestBuf.String())
		}
	}
	if !strings.Contains(requestBuf.String(), `"request_id":"req-7"`) {
		t.Errorf("request fields dropped: %s", requestBuf.String())
	}
	if engineBuf.Len() != 0 {
		t.Errorf("engine logger used despite context logger: %s", engineBuf.String())
	}
}

func TestChain_ResolvesSpot(t *testing.T) {
	ctx := context.Background()

	// no provider and no spot
	e := newTestEngine(t)
	if _, err := e.Chain(ctx, ChainRequest{Symbol: "SPY"}); !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Fatalf("err = %v, want ErrMarketDataUnavailable", err)
	}

	provider := marketdata.NewStaticProvider(map[string]float64{"SPY": 452.3})
	e = newTestEngine(t, WithProvider(provider))

	c, err := e.Chain(ctx, ChainRequest{Symbol: "spy"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Symbol != "SPY" || c.Spot != 452.3 {
		t.Errorf("chain %s @ %v", c.Symbol, c.Spot)
	}
	if len(c.Calls) != 41 || len(c.Puts) != 41 {
		t.Errorf("strikes = %d/%d, want 41", len(c.Calls), len(c.Puts))
	}

	// the provider timestamp is now, so the default expiry is this Friday
	if c.Expiration.Weekday() != time.Friday || c.DaysToExpiration < 0 || c.DaysToExpiration > 7 {
		t.Errorf("expiration %v, %d days", c.Expiration, c.DaysToExpiration)
	}

	// an explicit spot bypasses the provider
	c, err = e.Chain(ctx, ChainRequest{Symbol: "QQQ", Spot: ptr(100), Expiration: time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if c.Spot != 100 || c.DaysToExpiration != 4 {
		t.Errorf("spot %v, days %d", c.Spot, c.DaysToExpiration)
	}

	if _, err := e.Chain(ctx, ChainRequest{Symbol: "QQQ", Spot: ptr(0)}); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero spot err = %v", err)
	}
}

func TestStrategy_MarksFromQuotes(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)

	provider := marketdata.NewStaticProvider(map[string]float64{"SPY": 100})
	provider.SetQuote(models.OptionContract{Symbol: "SPY", Strike: 100, Expiration: exp, Type: models.Call},
		marketdata.OptionQuote{Bid: 2.9, Ask: 3.1})

	var buf bytes.Buffer
	e := newTestEngine(t, WithProvider(provider), WithLogger(zerolog.New(&buf)))

	s, err := e.Strategy(ctx, StrategyRequest{
		Type:   models.Straddle,
		Symbol: "SPY",
		Legs: []models.Leg{
			{Type: models.Call, Side: models.Buy, Strike: 100, Expiration: exp, Quantity: 1, Premium: 2.5},
			{Type: models.Put, Side: models.Buy, Strike: 100, Expiration: exp, Quantity: 1, Premium: 2.5},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if s.Positions[0].PriceSource != strategy.SourceQuote || math.Abs(s.Positions[0].CurrentPrice-3.0) > 1e-9 {
		t.Errorf("call position = %+v", s.Positions[0])
	}
	if math.Abs(s.Positions[0].UnrealizedPnL-0.5) > 1e-9 {
		t.Errorf("call unrealized = %v, want 0.5", s.Positions[0].UnrealizedPnL)
	}
	if s.Positions[1].PriceSource != strategy.SourceTheoretical {
		t.Errorf("put without quote marked from %s", s.Positions[1].PriceSource)
	}
	if len(s.Breakevens) != 2 || math.Abs(s.Breakevens[0]-95) > 1e-6 || math.Abs(s.Breakevens[1]-105) > 1e-6 {
		t.Errorf("breakevens = %v", s.Breakevens)
	}
	if !strings.Contains(buf.String(), `"event":"strategy"`) {
		t.Errorf("evaluation not logged: %s", buf.String())
	}
}

func TestStrategy_Errors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.Strategy(ctx, StrategyRequest{Symbol: "SPY", Spot: ptr(100)}); !apperrors.Is(err, apperrors.ErrUnderspecifiedStrategy) {
		t.Errorf("no legs err = %v", err)
	}

	legs := []models.Leg{{Type: models.Call, Side: models.Buy, Strike: 100, Quantity: 1, Premium: 2}}
	if _, err := e.Strategy(ctx, StrategyRequest{Symbol: "SPY", Legs: legs}); !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Errorf("no spot err = %v", err)
	}

	legs[0].Quantity = 0
	if _, err := e.Strategy(ctx, StrategyRequest{Symbol: "SPY", Spot: ptr(100), Legs: legs}); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero quantity err = %v", err)
	}
}

func TestBuildStrategy_IronCondor(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.BuildStrategy(context.Background(), BuildRequest{Type: models.IronCondor, Symbol: "SPY", Spot: ptr(101.7)})
	if err != nil {
		t.Fatal(err)
	}

	var strikes []float64
	for _, l := range s.Legs {
		strikes = append(strikes, l.Strike)
		if !l.Expiration.Equal(time.Date(2026, 10, 23, 0, 0, 0, 0, l.Expiration.Location())) {
			t.Errorf("leg expiration %v", l.Expiration)
		}
		if !(l.Premium > 0) {
			t.Errorf("leg %+v not priced", l)
		}
	}
	want := []float64{90, 95, 105, 110}
	for i := range want {
		if strikes[i] != want[i] {
			t.Fatalf("strikes = %v, want %v", strikes, want)
		}
	}

	credit := -s.NetCost
	if !(credit > 0) {
		t.Fatalf("net cost = %v, want a credit", s.NetCost)
	}
	if s.MaxProfit.Unbounded || math.Abs(s.MaxProfit.Value-credit) > 1e-9 {
		t.Errorf("max profit = %+v, want %v", s.MaxProfit, credit)
	}
	if s.MaxLoss.Unbounded || math.Abs(s.MaxLoss.Value+(5-credit)) > 1e-9 {
		t.Errorf("max loss = %+v, want %v", s.MaxLoss, -(5 - credit))
	}
}

func TestBuildStrategy_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.BuildStrategy(ctx, BuildRequest{Type: models.Custom, Spot: ptr(100)}); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("custom err = %v", err)
	}
	if _, err := e.BuildStrategy(ctx, BuildRequest{Type: models.LongCall, Spot: ptr(100), Expiration: testNow.AddDate(0, 0, -3)}); !apperrors.Is(err, apperrors.ErrAlreadyExpired) {
		t.Errorf("expired err = %v", err)
	}
	if _, err := e.BuildStrategy(ctx, BuildRequest{Type: models.IronCondor, Spot: ptr(10), Width: 5}); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative wing err = %v", err)
	}
}

func TestRoundToIncrement(t *testing.T) {
	tests := []struct {
		v, inc, want float64
	}{
		{101.7, 5, 100},
		{102.5, 5, 105},
		{0.4, 5, 5},
		{12.34, 0.5, 12.5},
	}
	for _, tt := range tests {
		if got := roundToIncrement(tt.v, tt.inc); got != tt.want {
			t.Errorf("roundToIncrement(%v, %v) = %v, want %v", tt.v, tt.inc, got, tt.want)
		}
	}
}
