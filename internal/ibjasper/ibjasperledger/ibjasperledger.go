// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperledger indexes normalized trades and dividend accruals for
// as-of position and date-range cash-flow queries.
package ibjasperledger

import (
	"cmp"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// ErrEmptyLedger is returned when a ledger has no trades for the requested universe.
var ErrEmptyLedger = errors.New("ledger has no trades")

// Ledger is an immutable, indexed view over trades and dividend accruals.
//
// A Ledger is safe for concurrent use since it is never mutated after construction.
type Ledger struct {
	// trades is sorted by (timestamp, ticker), stable with respect to input order.
	trades []Trade
	// dividends is sorted by (ex-date, ticker), stable with respect to input order.
	dividends []DividendAccrual
	// tickerIndexes maps each ticker to its chronological trades and running quantity.
	tickerIndexes map[string]*tickerIndex
}

// NewLedger returns a new Ledger over copies of the given trades and dividends.
func NewLedger(trades []Trade, dividends []DividendAccrual) *Ledger {
	trades = slices.Clone(trades)
	dividends = slices.Clone(dividends)
	// Stable sort so that lot order within the same timestamp is preserved for FIFO.
	slices.SortStableFunc(trades, compareTrades)
	slices.SortStableFunc(dividends, func(a DividendAccrual, b DividendAccrual) int {
		if c := a.ExDate.Compare(b.ExDate); c != 0 {
			return c
		}
		return cmp.Compare(a.Ticker, b.Ticker)
	})
	tickerIndexes := make(map[string]*tickerIndex)
	for _, trade := range trades {
		index, ok := tickerIndexes[trade.Ticker]
		if !ok {
			index = &tickerIndex{}
			tickerIndexes[trade.Ticker] = index
		}
		index.add(trade)
	}
	return &Ledger{
		trades:        trades,
		dividends:     dividends,
		tickerIndexes: tickerIndexes,
	}
}

// Trades returns all trades sorted by (timestamp, ticker).
func (l *Ledger) Trades() []Trade {
	return slices.Clone(l.trades)
}

// Dividends returns all dividend accruals sorted by (ex-date, ticker).
func (l *Ledger) Dividends() []DividendAccrual {
	return slices.Clone(l.dividends)
}

// Tickers returns the sorted set of tickers that have at least one trade.
func (l *Ledger) Tickers() []string {
	tickers := make([]string, 0, len(l.tickerIndexes))
	for ticker := range l.tickerIndexes {
		tickers = append(tickers, ticker)
	}
	slices.Sort(tickers)
	return tickers
}

// TradesFor returns the trades for the ticker in chronological order.
func (l *Ledger) TradesFor(ticker string) []Trade {
	index, ok := l.tickerIndexes[ticker]
	if !ok {
		return nil
	}
	return slices.Clone(index.trades)
}

// Restrict returns a new Ledger containing only the trades and dividends for the given tickers.
func (l *Ledger) Restrict(tickers []string) *Ledger {
	universe := make(map[string]struct{}, len(tickers))
	for _, ticker := range tickers {
		universe[ticker] = struct{}{}
	}
	var trades []Trade
	for _, trade := range l.trades {
		if _, ok := universe[trade.Ticker]; ok {
			trades = append(trades, trade)
		}
	}
	var dividends []DividendAccrual
	for _, dividend := range l.dividends {
		if _, ok := universe[dividend.Ticker]; ok {
			dividends = append(dividends, dividend)
		}
	}
	return NewLedger(trades, dividends)
}

// Inception returns the date of the earliest trade.
//
// Returns ErrEmptyLedger if there are no trades.
func (l *Ledger) Inception() (xtime.Date, error) {
	if len(l.trades) == 0 {
		return xtime.Date{}, ErrEmptyLedger
	}
	return l.trades[0].Date(), nil
}

// PositionAt returns the held quantity of each ticker using only trades
// strictly before asOf.
//
// Every requested ticker is present in the result, with zero if it has no
// qualifying trades.
func (l *Ledger) PositionAt(tickers []string, asOf time.Time) Position {
	position := make(Position, len(tickers))
	for _, ticker := range tickers {
		index, ok := l.tickerIndexes[ticker]
		if !ok {
			position[ticker] = decimal.Zero
			continue
		}
		position[ticker] = index.quantityBefore(asOf)
	}
	return position
}

// CashFlow returns the trade and dividend cash flow within [start, end).
//
// Trades are selected by timestamp and dividends by ex-date. An empty
// range yields zero values.
func (l *Ledger) CashFlow(start xtime.Date, end xtime.Date) CashFlow {
	cashFlow := CashFlow{
		Deals:     decimal.Zero,
		Dividends: decimal.Zero,
	}
	if !start.Before(end) {
		return cashFlow
	}
	startTime, endTime := start.Start(), end.Start()
	for i := l.firstTradeAtOrAfter(startTime); i < len(l.trades); i++ {
		if !l.trades[i].Timestamp.Before(endTime) {
			break
		}
		cashFlow.Deals = cashFlow.Deals.Add(l.trades[i].CashFlow())
	}
	for i := l.firstDividendAtOrAfter(start); i < len(l.dividends); i++ {
		if !l.dividends[i].ExDate.Before(end) {
			break
		}
		cashFlow.Dividends = cashFlow.Dividends.Add(l.dividends[i].Total)
	}
	return cashFlow
}

// EventDates returns the sorted, distinct dates within [start, end) on which
// a trade executed or a dividend went ex, plus start and end themselves.
func (l *Ledger) EventDates(start xtime.Date, end xtime.Date) []xtime.Date {
	dates := []xtime.Date{start, end}
	if start.Before(end) {
		startTime, endTime := start.Start(), end.Start()
		for i := l.firstTradeAtOrAfter(startTime); i < len(l.trades); i++ {
			if !l.trades[i].Timestamp.Before(endTime) {
				break
			}
			dates = append(dates, l.trades[i].Date())
		}
		for i := l.firstDividendAtOrAfter(start); i < len(l.dividends); i++ {
			if !l.dividends[i].ExDate.Before(end) {
				break
			}
			dates = append(dates, l.dividends[i].ExDate)
		}
	}
	slices.SortFunc(dates, xtime.Date.Compare)
	return slices.Compact(dates)
}

// *** PRIVATE ***

// tickerIndex holds the chronological trades of a single ticker along with
// the running quantity after each trade.
type tickerIndex struct {
	trades []Trade
	// cumulative[i] is the sum of trades[0..i].Quantity.
	cumulative []decimal.Decimal
}

func (t *tickerIndex) add(trade Trade) {
	total := trade.Quantity
	if n := len(t.cumulative); n > 0 {
		total = t.cumulative[n-1].Add(total)
	}
	t.trades = append(t.trades, trade)
	t.cumulative = append(t.cumulative, total)
}

// quantityBefore returns the sum of quantities of trades with timestamp < asOf.
func (t *tickerIndex) quantityBefore(asOf time.Time) decimal.Decimal {
	// Number of trades strictly before asOf.
	n := sort.Search(len(t.trades), func(i int) bool {
		return !t.trades[i].Timestamp.Before(asOf)
	})
	if n == 0 {
		return decimal.Zero
	}
	return t.cumulative[n-1]
}

func (l *Ledger) firstTradeAtOrAfter(asOf time.Time) int {
	return sort.Search(len(l.trades), func(i int) bool {
		return !l.trades[i].Timestamp.Before(asOf)
	})
}

func (l *Ledger) firstDividendAtOrAfter(date xtime.Date) int {
	return sort.Search(len(l.dividends), func(i int) bool {
		return l.dividends[i].ExDate.EqualOrAfter(date)
	})
}

func compareTrades(a Trade, b Trade) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Ticker, b.Ticker)
}
