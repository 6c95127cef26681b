// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjaspermarket

import (
	"fmt"
	"slices"
	"sort"

	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// PricePoint is the close of a ticker on a date.
type PricePoint struct {
	Date   xtime.Date      `json:"date"`
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
}

// NewPricePoint returns a validated PricePoint.
func NewPricePoint(date xtime.Date, ticker string, price decimal.Decimal) (PricePoint, error) {
	if ticker == "" {
		return PricePoint{}, fmt.Errorf("price on %s has no ticker", date)
	}
	if !date.IsValid() {
		return PricePoint{}, fmt.Errorf("price for %s has invalid date %s", ticker, date)
	}
	if !price.IsPositive() {
		return PricePoint{}, fmt.Errorf("price for %s on %s is not positive: %s", ticker, date, price)
	}
	return PricePoint{
		Date:   date,
		Ticker: ticker,
		Price:  price,
	}, nil
}

// PriceTable is an immutable per-ticker index of daily closes.
//
// Series may have gaps. Lookups always search backward from the query date.
type PriceTable struct {
	// tickerToPoints holds each ticker's points sorted by date, one per date.
	tickerToPoints map[string][]PricePoint
}

// NewPriceTable returns a new PriceTable.
//
// If there are multiple points for the same (ticker, date), the last one wins.
func NewPriceTable(points []PricePoint) *PriceTable {
	tickerToPoints := make(map[string][]PricePoint)
	for _, point := range points {
		tickerToPoints[point.Ticker] = append(tickerToPoints[point.Ticker], point)
	}
	for ticker, tickerPoints := range tickerToPoints {
		slices.SortStableFunc(tickerPoints, func(a PricePoint, b PricePoint) int {
			return a.Date.Compare(b.Date)
		})
		// Keep the last of each run of equal dates.
		deduped := tickerPoints[:0]
		for i, point := range tickerPoints {
			if i+1 < len(tickerPoints) && tickerPoints[i+1].Date == point.Date {
				continue
			}
			deduped = append(deduped, point)
		}
		tickerToPoints[ticker] = deduped
	}
	return &PriceTable{
		tickerToPoints: tickerToPoints,
	}
}

// PreviousClose returns the price with the maximum date strictly before asOf.
//
// Returns a *PriceUnavailableError if there is no such price.
func (p *PriceTable) PreviousClose(ticker string, asOf xtime.Date) (decimal.Decimal, error) {
	points := p.tickerToPoints[ticker]
	// Number of points strictly before asOf.
	n := sort.Search(len(points), func(i int) bool {
		return points[i].Date.EqualOrAfter(asOf)
	})
	if n == 0 {
		return decimal.Zero, &PriceUnavailableError{Ticker: ticker, AsOf: asOf}
	}
	return points[n-1].Price, nil
}

// Latest returns the most recent price point for the ticker.
func (p *PriceTable) Latest(ticker string) (PricePoint, bool) {
	points := p.tickerToPoints[ticker]
	if len(points) == 0 {
		return PricePoint{}, false
	}
	return points[len(points)-1], true
}

// LatestPrices returns the most recent price of each ticker that has one.
func (p *PriceTable) LatestPrices(tickers []string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(tickers))
	for _, ticker := range tickers {
		if point, ok := p.Latest(ticker); ok {
			prices[ticker] = point.Price
		}
	}
	return prices
}

// Points returns all points for the ticker sorted by date.
func (p *PriceTable) Points(ticker string) []PricePoint {
	return slices.Clone(p.tickerToPoints[ticker])
}

// Tickers returns the sorted tickers that have at least one price.
func (p *PriceTable) Tickers() []string {
	tickers := make([]string, 0, len(p.tickerToPoints))
	for ticker := range p.tickerToPoints {
		tickers = append(tickers, ticker)
	}
	slices.Sort(tickers)
	return tickers
}
