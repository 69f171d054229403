package chain

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"

	"options-analytics/internal/models"
)

// Quote carries the market-observed fields the model cannot derive.
type Quote struct {
	Volume       int64
	OpenInterest int64
	// IVAdjustment is added to the chain volatility for this contract.
	IVAdjustment float64
}

// QuoteSource supplies per-contract market fields for a chain. A live
// deployment plugs a quote feed in here; tests use a fixed or seeded source.
type QuoteSource interface {
	Quote(ctx context.Context, contract models.OptionContract) (Quote, error)
}

// FixedQuoteSource returns the same quote for every contract.
type FixedQuoteSource struct {
	Volume       int64
	OpenInterest int64
	IVAdjustment float64
}

// Quote implements QuoteSource.
func (f FixedQuoteSource) Quote(ctx context.Context, _ models.OptionContract) (Quote, error) {
	return Quote{Volume: f.Volume, OpenInterest: f.OpenInterest, IVAdjustment: f.IVAdjustment}, nil
}

// SeededQuoteSource produces pseudo-random but reproducible quotes. Each
// contract draws from its own generator keyed by the seed and the contract
// terms, so results do not depend on evaluation order.
type SeededQuoteSource struct {
	seed        int64
	MaxVolume   int64
	MaxOpenInt  int64
	MaxIVJitter float64
}

// NewSeededQuoteSource creates a seeded source with chain-like ranges.
func NewSeededQuoteSource(seed int64) *SeededQuoteSource {
	return &SeededQuoteSource{
		seed:        seed,
		MaxVolume:   10000,
		MaxOpenInt:  50000,
		MaxIVJitter: 0.02,
	}
}

// Quote implements QuoteSource.
func (s *SeededQuoteSource) Quote(ctx context.Context, c models.OptionContract) (Quote, error) {
	rng := rand.New(rand.NewSource(s.key(c)))

	q := Quote{}
	if s.MaxVolume > 0 {
		q.Volume = rng.Int63n(s.MaxVolume)
	}
	if s.MaxOpenInt > 0 {
		q.OpenInterest = rng.Int63n(s.MaxOpenInt)
	}
	q.IVAdjustment = (2*rng.Float64() - 1) * s.MaxIVJitter
	return q, nil
}

func (s *SeededQuoteSource) key(c models.OptionContract) int64 {
	h := fnv.New64a()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(s.seed))
	h.Write(buf[:])
	h.Write([]byte(c.Symbol))
	h.Write([]byte(c.Type))
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c.Strike))
	h.Write(buf[:])
	h.Write([]byte(c.Expiration.Format("2006-01-02")))

	return int64(h.Sum64())
}
