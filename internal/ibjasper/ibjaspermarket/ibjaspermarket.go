// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjaspermarket provides immutable price, split, and FX tables and
// the Valuator that turns positions into portfolio values.
//
// The tables are handed to the engine by a Source, which owns fetching and
// caching. Nothing in this package performs I/O.
package ibjaspermarket

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable is returned when a nonzero position has no price
	// strictly before the valuation date.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrFxRateUnavailable is returned when an FX table has no rate for a
	// currency on a date.
	ErrFxRateUnavailable = errors.New("fx rate unavailable")
)

// PriceUnavailableError is the error returned when a ticker cannot be priced.
//
// It wraps ErrPriceUnavailable.
type PriceUnavailableError struct {
	Ticker string
	AsOf   xtime.Date
}

// Error implements error.
func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("%s: no price for %s before %s", ErrPriceUnavailable.Error(), e.Ticker, e.AsOf)
}

// Unwrap returns ErrPriceUnavailable.
func (e *PriceUnavailableError) Unwrap() error {
	return ErrPriceUnavailable
}

// Source provides market data for a ticker universe over a date range.
//
// Implementations may fetch and cache data, but the returned tables are
// immutable and complete for the requested range.
type Source interface {
	// PriceTable returns daily closes for the tickers within [start, end].
	PriceTable(ctx context.Context, tickers []string, start xtime.Date, end xtime.Date) (*PriceTable, error)
	// Splits returns the split events for the tickers within [start, end].
	Splits(ctx context.Context, tickers []string, start xtime.Date, end xtime.Date) ([]Split, error)
	// FxTable returns RUB rates for the currencies densified over [start, end].
	FxTable(ctx context.Context, currencies []string, start xtime.Date, end xtime.Date) (*FxTable, error)
}

// Valuator values positions against a PriceTable.
type Valuator struct {
	prices *PriceTable
}

// NewValuator returns a new Valuator.
func NewValuator(prices *PriceTable) *Valuator {
	return &Valuator{
		prices: prices,
	}
}

// ValueOf returns the sum of quantity times previous close over the position.
//
// Tickers with zero quantity contribute zero without a price lookup. Returns
// a *PriceUnavailableError if a ticker with nonzero quantity has no price
// strictly before asOf.
func (v *Valuator) ValueOf(position ibjasperledger.Position, asOf xtime.Date) (decimal.Decimal, error) {
	// Iterate in sorted order so the first reported error is deterministic.
	tickers := make([]string, 0, len(position))
	for ticker := range position {
		tickers = append(tickers, ticker)
	}
	slices.Sort(tickers)
	value := decimal.Zero
	for _, ticker := range tickers {
		quantity := position[ticker]
		if quantity.IsZero() {
			continue
		}
		price, err := v.prices.PreviousClose(ticker, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		value = value.Add(quantity.Mul(price))
	}
	return value, nil
}
