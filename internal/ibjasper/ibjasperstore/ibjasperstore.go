// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperstore provides the SQLite cache for downloaded market data.
//
// The cache holds daily closes, split events, and published FX rates, plus a
// coverage table recording which date range has already been fetched for each
// ticker or currency. Decimals are stored as text to preserve exactness, and
// dates as YYYY-MM-DD text so they sort lexically.
package ibjasperstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	// KindPrices is the coverage kind for daily closes, keyed by ticker.
	KindPrices Kind = "prices"
	// KindSplits is the coverage kind for split events, keyed by ticker.
	KindSplits Kind = "splits"
	// KindFxRates is the coverage kind for FX rates, keyed by currency.
	KindFxRates Kind = "fx_rates"
)

// Kind is a category of cached data.
type Kind string

// Coverage is the date range that has been fetched for a key.
type Coverage struct {
	Kind      Kind       `json:"kind"`
	Key       string     `json:"key"`
	Start     xtime.Date `json:"start"`
	End       xtime.Date `json:"end"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Covers returns true if the coverage includes all of [start, end].
func (c Coverage) Covers(start xtime.Date, end xtime.Date) bool {
	return c.Start.EqualOrBefore(start) && c.End.EqualOrAfter(end)
}

// Store is the market data cache.
//
// A Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache at filePath.
func Open(ctx context.Context, filePath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", filePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// SQLite serializes writers, and a single connection avoids SQLITE_BUSY
	// between our own goroutines.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("opening cache: %w", err), db.Close())
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return store, nil
}

// Close closes the cache.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutPrices upserts daily closes.
func (s *Store) PutPrices(ctx context.Context, points []ibjaspermarket.PricePoint) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO prices (ticker, date, price) VALUES (?, ?, ?)
			ON CONFLICT (ticker, date) DO UPDATE SET price = excluded.price`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, point := range points {
			if _, err := stmt.ExecContext(ctx, point.Ticker, point.Date.String(), point.Price.String()); err != nil {
				return fmt.Errorf("storing price for %s on %s: %w", point.Ticker, point.Date, err)
			}
		}
		return nil
	})
}

// Prices returns the cached closes for the tickers within [start, end], ordered
// by ticker and date.
func (s *Store) Prices(ctx context.Context, tickers []string, start xtime.Date, end xtime.Date) ([]ibjaspermarket.PricePoint, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	query := `SELECT ticker, date, price FROM prices WHERE ticker IN (` + placeholders(len(tickers)) + `)
		AND date >= ? AND date <= ? ORDER BY ticker, date`
	rows, err := s.db.QueryContext(ctx, query, tickerArgs(tickers, start, end)...)
	if err != nil {
		return nil, fmt.Errorf("querying prices: %w", err)
	}
	defer rows.Close()
	var points []ibjaspermarket.PricePoint
	for rows.Next() {
		var ticker, dateString, priceString string
		if err := rows.Scan(&ticker, &dateString, &priceString); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}
		date, price, err := parseDateDecimal(dateString, priceString)
		if err != nil {
			return nil, err
		}
		point, err := ibjaspermarket.NewPricePoint(date, ticker, price)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// PutSplits upserts split events.
func (s *Store) PutSplits(ctx context.Context, splits []ibjaspermarket.Split) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO splits (ticker, date, ratio) VALUES (?, ?, ?)
			ON CONFLICT (ticker, date) DO UPDATE SET ratio = excluded.ratio`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, split := range splits {
			if _, err := stmt.ExecContext(ctx, split.Ticker, split.Date.String(), split.Ratio.String()); err != nil {
				return fmt.Errorf("storing split for %s on %s: %w", split.Ticker, split.Date, err)
			}
		}
		return nil
	})
}

// Splits returns the cached split events for the tickers within [start, end].
func (s *Store) Splits(ctx context.Context, tickers []string, start xtime.Date, end xtime.Date) ([]ibjaspermarket.Split, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	query := `SELECT ticker, date, ratio FROM splits WHERE ticker IN (` + placeholders(len(tickers)) + `)
		AND date >= ? AND date <= ? ORDER BY ticker, date`
	rows, err := s.db.QueryContext(ctx, query, tickerArgs(tickers, start, end)...)
	if err != nil {
		return nil, fmt.Errorf("querying splits: %w", err)
	}
	defer rows.Close()
	var splits []ibjaspermarket.Split
	for rows.Next() {
		var ticker, dateString, ratioString string
		if err := rows.Scan(&ticker, &dateString, &ratioString); err != nil {
			return nil, fmt.Errorf("scanning split: %w", err)
		}
		date, ratio, err := parseDateDecimal(dateString, ratioString)
		if err != nil {
			return nil, err
		}
		split, err := ibjaspermarket.NewSplit(date, ticker, ratio)
		if err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	return splits, rows.Err()
}

// PutFxRates upserts published FX rates.
func (s *Store) PutFxRates(ctx context.Context, rates []ibjaspermarket.FxRate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO fx_rates (currency, date, rate) VALUES (?, ?, ?)
			ON CONFLICT (currency, date) DO UPDATE SET rate = excluded.rate`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, rate := range rates {
			if _, err := stmt.ExecContext(ctx, rate.Currency, rate.Date.String(), rate.Rate.String()); err != nil {
				return fmt.Errorf("storing fx rate for %s on %s: %w", rate.Currency, rate.Date, err)
			}
		}
		return nil
	})
}

// FxRates returns the published rates for the currencies within [start, end].
func (s *Store) FxRates(ctx context.Context, currencies []string, start xtime.Date, end xtime.Date) ([]ibjaspermarket.FxRate, error) {
	if len(currencies) == 0 {
		return nil, nil
	}
	query := `SELECT currency, date, rate FROM fx_rates WHERE currency IN (` + placeholders(len(currencies)) + `)
		AND date >= ? AND date <= ? ORDER BY currency, date`
	rows, err := s.db.QueryContext(ctx, query, tickerArgs(currencies, start, end)...)
	if err != nil {
		return nil, fmt.Errorf("querying fx rates: %w", err)
	}
	defer rows.Close()
	var rates []ibjaspermarket.FxRate
	for rows.Next() {
		var currency, dateString, rateString string
		if err := rows.Scan(&currency, &dateString, &rateString); err != nil {
			return nil, fmt.Errorf("scanning fx rate: %w", err)
		}
		date, value, err := parseDateDecimal(dateString, rateString)
		if err != nil {
			return nil, err
		}
		rate, err := ibjaspermarket.NewFxRate(date, currency, value)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// Coverage returns the recorded coverage for a key, or false if none exists.
func (s *Store) Coverage(ctx context.Context, kind Kind, key string) (Coverage, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT start_date, end_date, fetched_at FROM coverage WHERE kind = ? AND item = ?`, string(kind), key)
	var startString, endString, fetchedAtString string
	if err := row.Scan(&startString, &endString, &fetchedAtString); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Coverage{}, false, nil
		}
		return Coverage{}, false, fmt.Errorf("querying coverage for %s %s: %w", kind, key, err)
	}
	coverage, err := newCoverage(kind, key, startString, endString, fetchedAtString)
	if err != nil {
		return Coverage{}, false, err
	}
	return coverage, true, nil
}

// PutCoverage records coverage for a key, replacing any existing record.
func (s *Store) PutCoverage(ctx context.Context, coverage Coverage) error {
	if coverage.End.Before(coverage.Start) {
		return fmt.Errorf("coverage for %s %s ends %s before it starts %s", coverage.Kind, coverage.Key, coverage.End, coverage.Start)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO coverage (kind, item, start_date, end_date, fetched_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind, item) DO UPDATE SET start_date = excluded.start_date,
			end_date = excluded.end_date, fetched_at = excluded.fetched_at`,
		string(coverage.Kind),
		coverage.Key,
		coverage.Start.String(),
		coverage.End.String(),
		coverage.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing coverage for %s %s: %w", coverage.Kind, coverage.Key, err)
	}
	return nil
}

// Coverages returns every coverage record ordered by kind and key.
func (s *Store) Coverages(ctx context.Context) ([]Coverage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, item, start_date, end_date, fetched_at FROM coverage ORDER BY kind, item`)
	if err != nil {
		return nil, fmt.Errorf("querying coverage: %w", err)
	}
	defer rows.Close()
	var coverages []Coverage
	for rows.Next() {
		var kind, key, startString, endString, fetchedAtString string
		if err := rows.Scan(&kind, &key, &startString, &endString, &fetchedAtString); err != nil {
			return nil, fmt.Errorf("scanning coverage: %w", err)
		}
		coverage, err := newCoverage(Kind(kind), key, startString, endString, fetchedAtString)
		if err != nil {
			return nil, err
		}
		coverages = append(coverages, coverage)
	}
	return coverages, rows.Err()
}

// *** PRIVATE ***

const schema = `
CREATE TABLE IF NOT EXISTS prices (
	ticker TEXT NOT NULL,
	date TEXT NOT NULL,
	price TEXT NOT NULL,
	PRIMARY KEY (ticker, date)
);
CREATE TABLE IF NOT EXISTS splits (
	ticker TEXT NOT NULL,
	date TEXT NOT NULL,
	ratio TEXT NOT NULL,
	PRIMARY KEY (ticker, date)
);
CREATE TABLE IF NOT EXISTS fx_rates (
	currency TEXT NOT NULL,
	date TEXT NOT NULL,
	rate TEXT NOT NULL,
	PRIMARY KEY (currency, date)
);
CREATE TABLE IF NOT EXISTS coverage (
	kind TEXT NOT NULL,
	item TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (kind, item)
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating cache schema: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, f func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			retErr = errors.Join(retErr, tx.Rollback())
		}
	}()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func newCoverage(kind Kind, key string, startString string, endString string, fetchedAtString string) (Coverage, error) {
	start, err := xtime.ParseDate(startString)
	if err != nil {
		return Coverage{}, fmt.Errorf("parsing coverage start %q: %w", startString, err)
	}
	end, err := xtime.ParseDate(endString)
	if err != nil {
		return Coverage{}, fmt.Errorf("parsing coverage end %q: %w", endString, err)
	}
	fetchedAt, err := time.Parse(time.RFC3339, fetchedAtString)
	if err != nil {
		return Coverage{}, fmt.Errorf("parsing coverage fetch time %q: %w", fetchedAtString, err)
	}
	return Coverage{
		Kind:      kind,
		Key:       key,
		Start:     start,
		End:       end,
		FetchedAt: fetchedAt,
	}, nil
}

func parseDateDecimal(dateString string, decimalString string) (xtime.Date, decimal.Decimal, error) {
	date, err := xtime.ParseDate(dateString)
	if err != nil {
		return xtime.Date{}, decimal.Decimal{}, fmt.Errorf("parsing cached date %q: %w", dateString, err)
	}
	value, err := decimal.NewFromString(decimalString)
	if err != nil {
		return xtime.Date{}, decimal.Decimal{}, fmt.Errorf("parsing cached value %q: %w", decimalString, err)
	}
	return date, value, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func tickerArgs(keys []string, start xtime.Date, end xtime.Date) []any {
	args := make([]any, 0, len(keys)+2)
	for _, key := range keys {
		args = append(args, key)
	}
	return append(args, start.String(), end.String())
}
