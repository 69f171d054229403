package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(map[string]float64{"spy": 450.25})
	ctx := context.Background()

	price, at, err := p.GetCurrentPrice(ctx, " SPY ")
	if err != nil || price != 450.25 || at.IsZero() {
		t.Fatalf("GetCurrentPrice = %v, %v, %v", price, at, err)
	}

	if _, _, err := p.GetCurrentPrice(ctx, "QQQ"); !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Errorf("missing symbol err = %v", err)
	}

	contract := models.OptionContract{Symbol: "SPY", Strike: 450, Type: models.Call, Expiration: time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)}
	if _, err := p.GetOptionQuote(ctx, contract); !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Errorf("missing quote err = %v", err)
	}
	p.SetQuote(contract, OptionQuote{Bid: 5.1, Ask: 5.3})
	q, err := p.GetOptionQuote(ctx, contract)
	if err != nil {
		t.Fatal(err)
	}
	if mid, ok := q.Mid(); !ok || mid < 5.19 || mid > 5.21 {
		t.Errorf("mid = %v, %v", mid, ok)
	}
}

func TestOptionQuoteMid(t *testing.T) {
	tests := []struct {
		q    OptionQuote
		want float64
		ok   bool
	}{
		{OptionQuote{Bid: 1, Ask: 3, Last: 9}, 2, true},
		{OptionQuote{Bid: 0, Ask: 3, Last: 2.5}, 2.5, true},
		{OptionQuote{Bid: 4, Ask: 3, Last: 3.5}, 3.5, true},
		{OptionQuote{}, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.q.Mid()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%+v.Mid() = %v, %v", tt.q, got, ok)
		}
	}
}

type flakyProvider struct {
	calls    int32
	failures int32
	err      error
}

func (f *flakyProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return 0, time.Time{}, f.err
	}
	return 101.5, time.Unix(1700000000, 0), nil
}

func fastConfig() ResilientConfig {
	cfg := DefaultResilientConfig()
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestResilientProvider_RetriesTransientFailures(t *testing.T) {
	up := &flakyProvider{failures: 2, err: errors.New("connection reset")}
	p := NewResilientProvider(up, fastConfig(), zerolog.Nop())

	price, _, err := p.GetCurrentPrice(context.Background(), "SPY")
	if err != nil || price != 101.5 {
		t.Fatalf("GetCurrentPrice = %v, %v", price, err)
	}
	if up.calls != 3 {
		t.Errorf("calls = %d, want 3", up.calls)
	}
}

func TestResilientProvider_DoesNotRetryMissingData(t *testing.T) {
	up := &flakyProvider{failures: 10, err: apperrors.Unavailable("SPY", nil)}
	p := NewResilientProvider(up, fastConfig(), zerolog.Nop())

	_, _, err := p.GetCurrentPrice(context.Background(), "SPY")
	if !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if up.calls != 1 {
		t.Errorf("calls = %d, want 1", up.calls)
	}
	if p.Breaker().State() != BreakerClosed {
		t.Errorf("missing data tripped the breaker")
	}
}

func TestResilientProvider_OpensBreaker(t *testing.T) {
	up := &flakyProvider{failures: 100, err: errors.New("503")}
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour}
	p := NewResilientProvider(up, cfg, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := p.GetCurrentPrice(ctx, "SPY"); !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if p.Breaker().State() != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", p.Breaker().State())
	}

	_, _, err := p.GetCurrentPrice(ctx, "SPY")
	if !errors.Is(err, ErrBreakerOpen) && !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Errorf("open breaker err = %v", err)
	}
	if up.calls != 2 {
		t.Errorf("upstream called %d times, want 2", up.calls)
	}
	if p.Breaker().Rejected() != 1 {
		t.Errorf("rejected = %d", p.Breaker().Rejected())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute})
	b.now = func() time.Time { return now }

	b.Record(errors.New("boom"))
	if b.State() != BreakerOpen || b.Allow() == nil {
		t.Fatal("breaker should be open")
	}

	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe after timeout, got %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %s", b.State())
	}
	b.Record(nil)
	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Errorf("state = %s, want CLOSED", b.State())
	}

	b.Record(errors.New("again"))
	if b.LastFailure() == nil {
		t.Error("last failure not kept")
	}
	b.Reset()
	if b.State() != BreakerClosed || b.LastFailure() != nil {
		t.Error("reset did not clear breaker")
	}
}

func TestResilientProvider_QuotesFallBack(t *testing.T) {
	p := NewResilientProvider(&flakyProvider{}, fastConfig(), zerolog.Nop())
	_, err := p.GetOptionQuote(context.Background(), models.OptionContract{Symbol: "SPY", Strike: 100, Type: models.Put})
	if !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}

	calls := 0
	_, err := retry(ctx, cfg, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v after %d calls", err, calls)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := cfg.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}
