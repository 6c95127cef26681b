// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjaspermarket

import (
	"fmt"
	"slices"

	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency all FX rates convert to.
const BaseCurrency = "RUB"

// FxRate is the number of RUB per unit of a currency on a date.
type FxRate struct {
	Date     xtime.Date      `json:"date"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

// NewFxRate returns a validated FxRate.
func NewFxRate(date xtime.Date, currency string, rate decimal.Decimal) (FxRate, error) {
	if currency == "" {
		return FxRate{}, fmt.Errorf("fx rate on %s has no currency", date)
	}
	if !date.IsValid() {
		return FxRate{}, fmt.Errorf("fx rate for %s has invalid date %s", currency, date)
	}
	if !rate.IsPositive() {
		return FxRate{}, fmt.Errorf("fx rate for %s on %s is not positive: %s", currency, date, rate)
	}
	return FxRate{
		Date:     date,
		Currency: currency,
		Rate:     rate,
	}, nil
}

// FxTable holds one rate per calendar day per currency over a date range.
type FxTable struct {
	start xtime.Date
	end   xtime.Date
	// currencyToRates maps a currency to its rates, where index i is the rate on start+i days.
	currencyToRates map[string][]decimal.Decimal
}

// NewFxTable densifies the published rates over [start, end].
//
// A day without a published rate takes the most recent published rate before
// it. Days before a currency's first published rate take that first rate.
// Currencies with no published rates are absent from the table, except for
// BaseCurrency, which always has rate 1.
func NewFxTable(published []FxRate, start xtime.Date, end xtime.Date) (*FxTable, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("fx table end %s is before start %s", end, start)
	}
	currencyToPublished := make(map[string][]FxRate)
	for _, rate := range published {
		currencyToPublished[rate.Currency] = append(currencyToPublished[rate.Currency], rate)
	}
	numDays := end.DaysSince(start) + 1
	currencyToRates := make(map[string][]decimal.Decimal, len(currencyToPublished))
	for currency, rates := range currencyToPublished {
		slices.SortStableFunc(rates, func(a FxRate, b FxRate) int {
			return a.Date.Compare(b.Date)
		})
		dense := make([]decimal.Decimal, numDays)
		// Seed with the first published rate for days before it.
		current := rates[0].Rate
		next := 0
		for i := range numDays {
			date := start.AddDays(i)
			for next < len(rates) && rates[next].Date.EqualOrBefore(date) {
				current = rates[next].Rate
				next++
			}
			dense[i] = current
		}
		currencyToRates[currency] = dense
	}
	return &FxTable{
		start:           start,
		end:             end,
		currencyToRates: currencyToRates,
	}, nil
}

// RateOn returns the RUB rate for the currency on the date.
//
// Returns an error wrapping ErrFxRateUnavailable if the currency is unknown or
// the date is outside the table range.
func (f *FxTable) RateOn(currency string, date xtime.Date) (decimal.Decimal, error) {
	if currency == BaseCurrency {
		return decimal.NewFromInt(1), nil
	}
	rates, ok := f.currencyToRates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rates for %s", ErrFxRateUnavailable, currency)
	}
	if date.Before(f.start) || date.After(f.end) {
		return decimal.Zero, fmt.Errorf("%w: %s on %s is outside of %s to %s", ErrFxRateUnavailable, currency, date, f.start, f.end)
	}
	return rates[date.DaysSince(f.start)], nil
}

// Rates returns the densified rates for the currency in date order.
func (f *FxTable) Rates(currency string) []FxRate {
	rates := f.currencyToRates[currency]
	result := make([]FxRate, len(rates))
	for i, rate := range rates {
		result[i] = FxRate{
			Date:     f.start.AddDays(i),
			Currency: currency,
			Rate:     rate,
		}
	}
	return result
}

// Currencies returns the sorted currencies in the table, excluding BaseCurrency.
func (f *FxTable) Currencies() []string {
	currencies := make([]string, 0, len(f.currencyToRates))
	for currency := range f.currencyToRates {
		currencies = append(currencies, currency)
	}
	slices.Sort(currencies)
	return currencies
}
