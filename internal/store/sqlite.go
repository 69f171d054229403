package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"options-analytics/internal/chain"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/marketdata"
	"options-analytics/internal/models"
)

const expirationLayout = "2006-01-02"

var _ Store = (*SnapshotStore)(nil)

// SnapshotStore records underlying prices and option quotes in SQLite and
// serves them back as market data.
type SnapshotStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSnapshotStore opens (creating if needed) the database at dbPath.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SnapshotStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SnapshotStore) initSchema() error {
	schema := `
	-- Latest underlying price per symbol
	CREATE TABLE IF NOT EXISTS spots (
		symbol TEXT PRIMARY KEY,
		price REAL NOT NULL,
		observed_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Option quotes keyed by contract terms
	CREATE TABLE IF NOT EXISTS option_quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		expiration TEXT NOT NULL,
		strike_key TEXT NOT NULL,
		strike REAL NOT NULL,
		option_type TEXT NOT NULL,
		bid REAL NOT NULL DEFAULT 0,
		ask REAL NOT NULL DEFAULT 0,
		last REAL NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 0,
		open_interest INTEGER NOT NULL DEFAULT 0,
		iv_adjustment REAL NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, expiration, strike_key, option_type)
	);

	CREATE INDEX IF NOT EXISTS idx_quotes_symbol_expiration ON option_quotes(symbol, expiration);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// strikeKey gives strikes a stable text form so 102.5 and 102.50000000001
// from different float paths land on the same row.
func strikeKey(strike float64) string {
	return decimal.NewFromFloat(strike).StringFixed(4)
}

// ============================================================================
// Spots
// ============================================================================

// SaveSpot records the latest price for symbol. A zero at means now.
func (s *SnapshotStore) SaveSpot(ctx context.Context, symbol string, price float64, at time.Time) error {
	if !(price > 0) {
		return apperrors.NewValidationError("price", price, "must be positive")
	}
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO spots (symbol, price, observed_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, marketdata.NormalizeSymbol(symbol), price, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to save spot: %w", err)
	}
	return nil
}

// GetCurrentPrice implements marketdata.Provider.
func (s *SnapshotStore) GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	var price float64
	var at time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT price, observed_at FROM spots WHERE symbol = ?
	`, marketdata.NormalizeSymbol(symbol)).Scan(&price, &at)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, apperrors.Unavailable(symbol, nil)
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get spot: %w", err)
	}
	return price, at, nil
}

// ListSpots returns every recorded spot ordered by symbol.
func (s *SnapshotStore) ListSpots(ctx context.Context) ([]SpotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, observed_at FROM spots ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}
	defer rows.Close()

	var spots []SpotRecord
	for rows.Next() {
		var r SpotRecord
		if err := rows.Scan(&r.Symbol, &r.Price, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		spots = append(spots, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spots: %w", err)
	}
	return spots, nil
}

// ============================================================================
// Option quotes
// ============================================================================

// SaveQuote records a quote for contract, replacing any earlier one.
func (s *SnapshotStore) SaveQuote(ctx context.Context, contract models.OptionContract, q QuoteRecord) error {
	if !contract.Type.Valid() {
		return apperrors.NewValidationError("option_type", contract.Type, "must be call or put")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO option_quotes
			(symbol, expiration, strike_key, strike, option_type, bid, ask, last, volume, open_interest, iv_adjustment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, marketdata.NormalizeSymbol(contract.Symbol), contract.Expiration.Format(expirationLayout),
		strikeKey(contract.Strike), contract.Strike, string(contract.Type),
		q.Bid, q.Ask, q.Last, q.Volume, q.OpenInterest, q.IVAdjustment)
	if err != nil {
		return fmt.Errorf("failed to save quote: %w", err)
	}
	return nil
}

// SaveChain records the underlying price and every entry of a synthesized
// chain. Each entry's implied volatility is stored as its offset from the
// chain volatility.
func (s *SnapshotStore) SaveChain(ctx context.Context, c *models.Chain, observedAt time.Time) error {
	if err := s.SaveSpot(ctx, c.Symbol, c.Spot, observedAt); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_quotes
			(symbol, expiration, strike_key, strike, option_type, bid, ask, last, volume, open_interest, iv_adjustment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	symbol := marketdata.NormalizeSymbol(c.Symbol)
	expiration := c.Expiration.Format(expirationLayout)
	sides := []struct {
		typ     models.OptionType
		entries []models.ChainEntry
	}{
		{models.Call, c.Calls},
		{models.Put, c.Puts},
	}
	for _, side := range sides {
		for _, e := range side.entries {
			_, err := stmt.ExecContext(ctx, symbol, expiration, strikeKey(e.Strike), e.Strike, string(side.typ),
				e.Bid, e.Ask, e.Last, e.Volume, e.OpenInterest, e.ImpliedVolatility-c.Volatility)
			if err != nil {
				return fmt.Errorf("failed to insert quote: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SnapshotStore) getQuote(ctx context.Context, contract models.OptionContract) (QuoteRecord, bool, error) {
	var q QuoteRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT bid, ask, last, volume, open_interest, iv_adjustment
		FROM option_quotes
		WHERE symbol = ? AND expiration = ? AND strike_key = ? AND option_type = ?
	`, marketdata.NormalizeSymbol(contract.Symbol), contract.Expiration.Format(expirationLayout),
		strikeKey(contract.Strike), string(contract.Type)).
		Scan(&q.Bid, &q.Ask, &q.Last, &q.Volume, &q.OpenInterest, &q.IVAdjustment)
	if err == sql.ErrNoRows {
		return QuoteRecord{}, false, nil
	}
	if err != nil {
		return QuoteRecord{}, false, fmt.Errorf("failed to get quote: %w", err)
	}
	return q, true, nil
}

// GetOptionQuote implements marketdata.QuoteProvider.
func (s *SnapshotStore) GetOptionQuote(ctx context.Context, contract models.OptionContract) (marketdata.OptionQuote, error) {
	q, ok, err := s.getQuote(ctx, contract)
	if err != nil {
		return marketdata.OptionQuote{}, err
	}
	if !ok {
		return marketdata.OptionQuote{}, apperrors.NewDataError("option_quote", contract.Symbol,
			fmt.Sprintf("no recorded %s %s @ %s", contract.Expiration.Format(expirationLayout), contract.Type, strikeKey(contract.Strike)),
			apperrors.ErrMarketDataUnavailable)
	}
	return marketdata.OptionQuote{Bid: q.Bid, Ask: q.Ask, Last: q.Last}, nil
}

// Quote implements chain.QuoteSource. Contracts with no recorded quote get a
// zero quote so a chain can be synthesized around a partial recording.
func (s *SnapshotStore) Quote(ctx context.Context, contract models.OptionContract) (chain.Quote, error) {
	q, _, err := s.getQuote(ctx, contract)
	if err != nil {
		return chain.Quote{}, err
	}
	return chain.Quote{Volume: q.Volume, OpenInterest: q.OpenInterest, IVAdjustment: q.IVAdjustment}, nil
}

// CountQuotes returns how many quotes are recorded for symbol.
func (s *SnapshotStore) CountQuotes(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM option_quotes WHERE symbol = ?
	`, marketdata.NormalizeSymbol(symbol)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count quotes: %w", err)
	}
	return n, nil
}
