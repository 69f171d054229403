// Package marketdata defines the market-data collaborator the engine consumes
// and the adapters that sit in front of it.
package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// Provider supplies the current underlying price.
type Provider interface {
	GetCurrentPrice(ctx context.Context, symbol string) (price float64, at time.Time, err error)
}

// OptionQuote is an observed option market.
type OptionQuote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade when the
// market is one-sided. ok is false when the quote carries no usable price.
func (q OptionQuote) Mid() (price float64, ok bool) {
	switch {
	case q.Bid > 0 && q.Ask >= q.Bid:
		return (q.Bid + q.Ask) / 2, true
	case q.Last > 0:
		return q.Last, true
	}
	return 0, false
}

// QuoteProvider is implemented by providers that also quote options.
type QuoteProvider interface {
	GetOptionQuote(ctx context.Context, contract models.OptionContract) (OptionQuote, error)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// StaticProvider serves prices and quotes held in memory.
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[string]spot
	quotes map[quoteKey]OptionQuote
	now    func() time.Time
}

type spot struct {
	price float64
	at    time.Time
}

type quoteKey struct {
	symbol     string
	strike     float64
	expiration string
	typ        models.OptionType
}

func keyOf(c models.OptionContract) quoteKey {
	return quoteKey{
		symbol:     NormalizeSymbol(c.Symbol),
		strike:     c.Strike,
		expiration: c.Expiration.Format("2006-01-02"),
		typ:        c.Type,
	}
}

// NewStaticProvider creates a provider seeded with prices by symbol.
func NewStaticProvider(prices map[string]float64) *StaticProvider {
	p := &StaticProvider{
		prices: make(map[string]spot, len(prices)),
		quotes: make(map[quoteKey]OptionQuote),
		now:    time.Now,
	}
	for sym, price := range prices {
		p.SetPrice(sym, price)
	}
	return p
}

// SetPrice records the current price for symbol.
func (p *StaticProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[NormalizeSymbol(symbol)] = spot{price: price, at: p.now()}
}

// SetQuote records an option quote.
func (p *StaticProvider) SetQuote(contract models.OptionContract, q OptionQuote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[keyOf(contract)] = q
}

// GetCurrentPrice implements Provider.
func (p *StaticProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}
	p.mu.RLock()
	s, ok := p.prices[NormalizeSymbol(symbol)]
	p.mu.RUnlock()
	if !ok || !(s.price > 0) {
		return 0, time.Time{}, apperrors.Unavailable(symbol, nil)
	}
	return s.price, s.at, nil
}

// GetOptionQuote implements QuoteProvider.
func (p *StaticProvider) GetOptionQuote(ctx context.Context, contract models.OptionContract) (OptionQuote, error) {
	if err := ctx.Err(); err != nil {
		return OptionQuote{}, err
	}
	p.mu.RLock()
	q, ok := p.quotes[keyOf(contract)]
	p.mu.RUnlock()
	if !ok {
		return OptionQuote{}, apperrors.NewDataError("option_quote", contract.Symbol, "no quote", apperrors.ErrMarketDataUnavailable)
	}
	return q, nil
}
