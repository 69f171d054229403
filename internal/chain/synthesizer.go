// Package chain synthesizes theoretical option chains across a strike ladder.
package chain

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/pricing"
)

// minChainVolatility floors per-contract volatility after a quote adjustment.
const minChainVolatility = 0.01

// Config holds chain synthesis parameters.
type Config struct {
	StrikeIncrement float64
	StrikesEachSide int
	// SpreadPercent is the synthetic half-spread around the theoretical price.
	SpreadPercent float64
	MinTick       float64
	ExpiryWeekday time.Weekday
	Parallel      bool
}

// DefaultConfig returns $5 strikes, 20 each side, a 2% spread and Friday expirations.
func DefaultConfig() Config {
	return Config{
		StrikeIncrement: 5,
		StrikesEachSide: 20,
		SpreadPercent:   0.02,
		MinTick:         pricing.DefaultMinTick,
		ExpiryWeekday:   time.Friday,
	}
}

// Synthesizer builds two-sided chains. The chain applies one flat volatility
// to every strike; any per-strike adjustment comes from the QuoteSource.
type Synthesizer struct {
	cfg      Config
	pricer   *pricing.Pricer
	quotes   QuoteSource
	calendar BusinessCalendar
}

// NewSynthesizer creates a Synthesizer. A nil quote source yields zero
// volume and open interest; a nil calendar treats every weekday as open.
func NewSynthesizer(cfg Config, quotes QuoteSource, cal BusinessCalendar) *Synthesizer {
	if quotes == nil {
		quotes = FixedQuoteSource{}
	}
	return &Synthesizer{
		cfg:      cfg,
		pricer:   pricing.NewPricer(cfg.MinTick),
		quotes:   quotes,
		calendar: cal,
	}
}

// Config returns the synthesis parameters.
func (s *Synthesizer) Config() Config {
	return s.cfg
}

// Expiration returns the default listed expiration for an observation time.
func (s *Synthesizer) Expiration(observedAt time.Time) time.Time {
	return NextExpiration(observedAt, s.cfg.ExpiryWeekday, s.calendar)
}

// Strikes returns the ladder centred on spot rounded to the increment,
// with non-positive strikes discarded.
func (s *Synthesizer) Strikes(spot float64) ([]float64, error) {
	if !(s.cfg.StrikeIncrement > 0) || math.IsInf(s.cfg.StrikeIncrement, 0) {
		return nil, apperrors.NewValidationError("strike_increment", s.cfg.StrikeIncrement, "must be positive")
	}
	if s.cfg.StrikesEachSide < 0 {
		return nil, apperrors.NewValidationError("strikes_each_side", s.cfg.StrikesEachSide, "must be non-negative")
	}

	inc := decimal.NewFromFloat(s.cfg.StrikeIncrement)
	center := decimal.NewFromFloat(spot).Div(inc).Round(0).Mul(inc)

	strikes := make([]float64, 0, 2*s.cfg.StrikesEachSide+1)
	for i := -s.cfg.StrikesEachSide; i <= s.cfg.StrikesEachSide; i++ {
		k := center.Add(inc.Mul(decimal.NewFromInt(int64(i))))
		if !k.IsPositive() {
			continue
		}
		strikes = append(strikes, k.InexactFloat64())
	}
	return strikes, nil
}

// Synthesize builds the chain for snap at expiration. A zero expiration
// selects the next listed expiration after snap.ObservedAt.
func (s *Synthesizer) Synthesize(ctx context.Context, snap models.MarketSnapshot, expiration time.Time) (*models.Chain, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	observed := snap.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	if expiration.IsZero() {
		expiration = s.Expiration(observed)
	}
	days := pricing.DaysBetween(observed, expiration)
	if days < 0 {
		return nil, apperrors.Wrapf(apperrors.ErrAlreadyExpired,
			"expiration %s is before %s", expiration.Format("2006-01-02"), observed.Format("2006-01-02"))
	}

	strikes, err := s.Strikes(snap.Spot)
	if err != nil {
		return nil, err
	}

	c := &models.Chain{
		Symbol:           snap.Symbol,
		Spot:             snap.Spot,
		Expiration:       expiration,
		DaysToExpiration: days,
		Volatility:       snap.Volatility,
		RiskFreeRate:     snap.RiskFreeRate,
		Calls:            make([]models.ChainEntry, len(strikes)),
		Puts:             make([]models.ChainEntry, len(strikes)),
	}

	t := pricing.YearFraction(days)
	build := func(ctx context.Context, i int) error {
		call, err := s.entry(ctx, snap, expiration, t, strikes[i], models.Call)
		if err != nil {
			return err
		}
		put, err := s.entry(ctx, snap, expiration, t, strikes[i], models.Put)
		if err != nil {
			return err
		}
		c.Calls[i], c.Puts[i] = call, put
		return nil
	}

	if !s.cfg.Parallel {
		for i := range strikes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := build(ctx, i); err != nil {
				return nil, err
			}
		}
		return c, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range strikes {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return build(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Synthesizer) entry(ctx context.Context, snap models.MarketSnapshot, expiration time.Time, t, strike float64, typ models.OptionType) (models.ChainEntry, error) {
	q, err := s.quotes.Quote(ctx, models.OptionContract{
		Symbol:     snap.Symbol,
		Strike:     strike,
		Expiration: expiration,
		Type:       typ,
	})
	if err != nil {
		return models.ChainEntry{}, apperrors.Unavailable(snap.Symbol, err)
	}

	vol := snap.Volatility + q.IVAdjustment
	if vol < minChainVolatility {
		vol = minChainVolatility
	}

	in := pricing.Inputs{Spot: snap.Spot, Strike: strike, T: t, Rate: snap.RiskFreeRate, Vol: vol, Type: typ}
	price, err := s.pricer.Price(in)
	if err != nil {
		return models.ChainEntry{}, err
	}
	greeks, err := pricing.Greeks(in)
	if err != nil {
		return models.ChainEntry{}, err
	}

	return models.ChainEntry{
		Strike:            strike,
		Bid:               cents(price * (1 - s.cfg.SpreadPercent)),
		Ask:               cents(price * (1 + s.cfg.SpreadPercent)),
		Last:              cents(price),
		Volume:            q.Volume,
		OpenInterest:      q.OpenInterest,
		ImpliedVolatility: vol,
		Greeks:            greeks,
	}, nil
}

func validateSnapshot(snap models.MarketSnapshot) error {
	if !(snap.Spot > 0) || math.IsInf(snap.Spot, 0) {
		return apperrors.NewValidationError("spot", snap.Spot, "must be positive")
	}
	if !(snap.Volatility > 0) || math.IsInf(snap.Volatility, 0) {
		return apperrors.NewValidationError("volatility", snap.Volatility, "must be positive")
	}
	if math.IsNaN(snap.RiskFreeRate) || math.IsInf(snap.RiskFreeRate, 0) {
		return apperrors.NewValidationError("risk_free_rate", snap.RiskFreeRate, "must be finite")
	}
	return nil
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
