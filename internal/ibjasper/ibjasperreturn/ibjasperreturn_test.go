// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjasperreturn

import (
	"testing"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func TestPeriodReturnPriceDrift(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(2), "X", 10, 100, 0),
			mustTrade(t, day(3), "Y", 5, 40, 0),
		},
		nil,
	)
	prices := dailyPrices(t, "X", day(1), day(31), func(n int) int64 { return 100 + int64(n) })
	prices = append(prices, dailyPrices(t, "Y", day(1), day(31), func(n int) int64 { return 40 + 2*int64(n%3) })...)
	engine := newTestEngine(ledger, prices, []string{"X", "Y"})
	periodReturn, err := engine.PeriodReturn(day(10), day(20))
	require.NoError(t, err)
	// V(start) uses day 9 closes, V(end) uses day 19 closes.
	startValue := 10.0*109 + 5.0*(40+2*(9%3))
	endValue := 10.0*119 + 5.0*(40+2*(19%3))
	require.InDelta(t, endValue/startValue-1, periodReturn, tolerance)
}

func TestPeriodReturnTradesAreNotPerformance(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(2), "X", 10, 100, 0),
			mustTrade(t, day(12), "X", 10, 100, 0),
			mustTrade(t, day(14), "X", -5, 100, 0),
		},
		nil,
	)
	prices := dailyPrices(t, "X", day(1), day(31), func(int) int64 { return 100 })
	engine := newTestEngine(ledger, prices, []string{"X"})
	periodReturn, err := engine.PeriodReturn(day(10), day(20))
	require.NoError(t, err)
	require.InDelta(t, 0, periodReturn, tolerance)
}

func TestPeriodReturnDividendsAreNotPerformance(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(2), "X", 10, 100, 0),
		},
		[]ibjasperledger.DividendAccrual{
			mustDividend(t, day(15), "X", 10, 10),
		},
	)
	// The price drops by the dividend per share on the ex-date.
	prices := dailyPrices(t, "X", day(1), day(31), func(n int) int64 {
		if n >= 15 {
			return 99
		}
		return 100
	})
	engine := newTestEngine(ledger, prices, []string{"X"})
	periodReturn, err := engine.PeriodReturn(day(10), day(20))
	require.NoError(t, err)
	require.InDelta(t, 0, periodReturn, tolerance)
}

func TestPeriodReturnTelescoping(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(2), "X", 10, 100, -1),
			mustTrade(t, day(6), "Y", 7, 52, -1),
			mustTrade(t, day(11), "X", -3, 115, -1),
			mustTrade(t, day(15), "X", 4, 112, -1),
			mustTrade(t, day(22), "Y", -7, 49, -1),
		},
		[]ibjasperledger.DividendAccrual{
			mustDividend(t, day(18), "X", 11, 6),
		},
	)
	prices := dailyPrices(t, "X", day(1), day(31), func(n int) int64 { return 100 + int64((n*7)%13) })
	prices = append(prices, dailyPrices(t, "Y", day(1), day(31), func(n int) int64 { return 50 + int64((n*5)%9) })...)
	engine := newTestEngine(ledger, prices, []string{"X", "Y"})
	for _, boundaries := range [][3]int{
		{3, 11, 25},
		{3, 12, 25},
		{5, 15, 16},
		{10, 18, 30},
		{2, 22, 23},
	} {
		a, b, c := day(boundaries[0]), day(boundaries[1]), day(boundaries[2])
		left, err := engine.PeriodReturn(a, b)
		require.NoError(t, err)
		right, err := engine.PeriodReturn(b, c)
		require.NoError(t, err)
		whole, err := engine.PeriodReturn(a, c)
		require.NoError(t, err)
		require.InDelta(t, 1+whole, (1+left)*(1+right), tolerance, "%v", boundaries)
	}
}

func TestPeriodReturnIdempotent(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(2), "X", 10, 100, 0),
			mustTrade(t, day(8), "X", 3, 105, -1),
		},
		nil,
	)
	prices := dailyPrices(t, "X", day(1), day(31), func(n int) int64 { return 95 + int64(n) })
	engine := newTestEngine(ledger, prices, []string{"X"})
	first, err := engine.PeriodReturn(day(5), day(20))
	require.NoError(t, err)
	second, err := engine.PeriodReturn(day(5), day(20))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestPeriodReturnDegenerateValuation(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(5), "X", 10, 100, 0),
		},
		nil,
	)
	prices := dailyPrices(t, "X", day(1), day(31), func(n int) int64 { return 100 + int64(n) })
	// Inception inside the period: the zero opening value contributes 1.
	periodReturn, err := newTestEngine(ledger, prices, []string{"X"}).PeriodReturn(day(1), day(10))
	require.NoError(t, err)
	// Day 5: morning 0, evening 10*105 minus delta 1000 gives a factor of 1.
	// Day 10 morning is 10*109.
	require.InDelta(t, (10.0*109)/(10.0*105)*1-1, periodReturn, tolerance)

	_, err = newTestEngine(ledger, prices, []string{"X"}, EngineWithStrictValuation(true)).PeriodReturn(day(1), day(10))
	require.ErrorIs(t, err, ErrDegenerateValuation)
}

func TestPeriodReturnPriceUnavailable(t *testing.T) {
	t.Parallel()
	ledger := ibjasperledger.NewLedger(
		[]ibjasperledger.Trade{
			mustTrade(t, day(2), "X", 10, 100, 0),
		},
		nil,
	)
	prices := dailyPrices(t, "X", day(10), day(31), func(int) int64 { return 100 })
	_, err := newTestEngine(ledger, prices, []string{"X"}).PeriodReturn(day(5), day(20))
	require.ErrorIs(t, err, ibjaspermarket.ErrPriceUnavailable)
}

func TestPeriodReturnEmptyAndInvalidRange(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(ibjasperledger.NewLedger(nil, nil), nil, []string{"X"})
	periodReturn, err := engine.PeriodReturn(day(5), day(5))
	require.NoError(t, err)
	require.Zero(t, periodReturn)
	periodReturn, err = engine.PeriodReturn(day(5), day(10))
	require.NoError(t, err)
	require.Zero(t, periodReturn)
	_, err = engine.PeriodReturn(day(10), day(5))
	require.Error(t, err)
}

func newTestEngine(ledger *ibjasperledger.Ledger, prices []ibjaspermarket.PricePoint, tickers []string, options ...EngineOption) *Engine {
	return NewEngine(
		ledger,
		ibjaspermarket.NewValuator(ibjaspermarket.NewPriceTable(prices)),
		tickers,
		options...,
	)
}

// dailyPrices returns a close for every day in [start, end], where priceFunc
// is given the day of the month.
func dailyPrices(t *testing.T, ticker string, start xtime.Date, end xtime.Date, priceFunc func(int) int64) []ibjaspermarket.PricePoint {
	t.Helper()
	var points []ibjaspermarket.PricePoint
	for date := start; date.EqualOrBefore(end); date = date.AddDays(1) {
		point, err := ibjaspermarket.NewPricePoint(date, ticker, decimal.NewFromInt(priceFunc(date.Day)))
		require.NoError(t, err)
		points = append(points, point)
	}
	return points
}

func mustTrade(t *testing.T, date xtime.Date, ticker string, quantity int64, price int64, fee int64) ibjasperledger.Trade {
	t.Helper()
	trade, err := ibjasperledger.NewTrade(
		date.Start().Add(11*time.Hour),
		ticker,
		decimal.NewFromInt(quantity),
		decimal.NewFromInt(price),
		"USD",
		decimal.NewFromInt(fee),
		"Stocks",
		"",
	)
	require.NoError(t, err)
	return trade
}

func mustDividend(t *testing.T, exDate xtime.Date, ticker string, quantity int64, total int64) ibjasperledger.DividendAccrual {
	t.Helper()
	dividend, err := ibjasperledger.NewDividendAccrual(
		exDate,
		xtime.Date{},
		ticker,
		decimal.NewFromInt(quantity),
		decimal.NewFromInt(total).Div(decimal.NewFromInt(quantity)),
		decimal.NewFromInt(total),
		"USD",
		decimal.Zero,
	)
	require.NoError(t, err)
	return dividend
}

func day(n int) xtime.Date {
	return xtime.Date{Year: 2023, Month: time.January, Day: n}
}
