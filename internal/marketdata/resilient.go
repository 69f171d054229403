package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/models"
)

// ResilientConfig configures the upstream guard.
type ResilientConfig struct {
	Retry   RetryConfig
	Breaker BreakerConfig
	// RatePerSecond caps upstream calls; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// DefaultResilientConfig returns the default guard configuration.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry:   DefaultRetryConfig(),
		Breaker: DefaultBreakerConfig(),
	}
}

// ResilientProvider guards an upstream provider with rate limiting, retries
// with exponential backoff and a circuit breaker. Missing data is not retried.
type ResilientProvider struct {
	upstream Provider
	retry    RetryConfig
	breaker  *Breaker
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewResilientProvider wraps upstream.
func NewResilientProvider(upstream Provider, cfg ResilientConfig, logger zerolog.Logger) *ResilientProvider {
	p := &ResilientProvider{
		upstream: upstream,
		retry:    cfg.Retry,
		breaker:  NewBreaker(cfg.Breaker),
		logger:   logger.With().Str("component", "marketdata").Logger(),
	}
	p.retry.Retryable = retryable
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return p
}

// Breaker exposes the circuit breaker for health reporting.
func (p *ResilientProvider) Breaker() *Breaker {
	return p.breaker
}

// GetCurrentPrice implements Provider.
func (p *ResilientProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	type result struct {
		price float64
		at    time.Time
	}
	r, err := guarded(ctx, p, "current_price", func(ctx context.Context) (result, error) {
		price, at, err := p.upstream.GetCurrentPrice(ctx, symbol)
		return result{price, at}, err
	})
	if err != nil {
		return 0, time.Time{}, unavailable(symbol, err)
	}
	return r.price, r.at, nil
}

// GetOptionQuote implements QuoteProvider. Upstreams without option quotes
// report the data as unavailable.
func (p *ResilientProvider) GetOptionQuote(ctx context.Context, contract models.OptionContract) (OptionQuote, error) {
	qp, ok := p.upstream.(QuoteProvider)
	if !ok {
		return OptionQuote{}, apperrors.NewDataError("option_quote", contract.Symbol, "provider has no option quotes", apperrors.ErrMarketDataUnavailable)
	}
	q, err := guarded(ctx, p, "option_quote", func(ctx context.Context) (OptionQuote, error) {
		return qp.GetOptionQuote(ctx, contract)
	})
	if err != nil {
		return OptionQuote{}, unavailable(contract.Symbol, err)
	}
	return q, nil
}

func guarded[T any](ctx context.Context, p *ResilientProvider, endpoint string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := retry(ctx, p.retry, func() (T, error) {
		var zero T
		if err := p.breaker.Allow(); err != nil {
			return zero, err
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}
		v, err := fn(ctx)
		// an upstream that answers "no data" is healthy
		if err != nil && !apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
			p.breaker.Record(err)
		} else {
			p.breaker.Record(nil)
		}
		return v, err
	})
	logging.LogAPICall(p.logger, "GET", endpoint, time.Since(start), err)
	return v, err
}

func retryable(err error) bool {
	switch {
	case apperrors.Is(err, apperrors.ErrMarketDataUnavailable),
		errors.Is(err, ErrBreakerOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func unavailable(symbol string, err error) error {
	if apperrors.Is(err, apperrors.ErrMarketDataUnavailable) {
		return err
	}
	return apperrors.Unavailable(symbol, err)
}
