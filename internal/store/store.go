// Package store persists recorded market snapshots.
package store

import (
	"context"
	"time"

	"options-analytics/internal/chain"
	"options-analytics/internal/marketdata"
	"options-analytics/internal/models"
)

// Store records underlying prices and option quotes and serves them back
// as market data.
type Store interface {
	marketdata.Provider
	marketdata.QuoteProvider
	chain.QuoteSource

	// Spots
	SaveSpot(ctx context.Context, symbol string, price float64, at time.Time) error
	ListSpots(ctx context.Context) ([]SpotRecord, error)

	// Quotes
	SaveQuote(ctx context.Context, contract models.OptionContract, q QuoteRecord) error
	SaveChain(ctx context.Context, c *models.Chain, observedAt time.Time) error
	CountQuotes(ctx context.Context, symbol string) (int, error)

	Close() error
}

// QuoteRecord is a stored option quote.
type QuoteRecord struct {
	Bid          float64
	Ask          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	IVAdjustment float64
}

// SpotRecord is a stored underlying price.
type SpotRecord struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
