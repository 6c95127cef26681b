// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjasperledger

import (
	"testing"
	"time"

	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewTradeValidation(t *testing.T) {
	t.Parallel()
	timestamp := time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC)
	_, err := NewTrade(timestamp, "X", decimal.Zero, decimal.NewFromInt(100), "USD", decimal.Zero, "Stocks", "O")
	require.Error(t, err)
	_, err = NewTrade(timestamp, "X", decimal.NewFromInt(1), decimal.Zero, "USD", decimal.Zero, "Stocks", "O")
	require.Error(t, err)
	_, err = NewTrade(timestamp, "X", decimal.NewFromInt(1), decimal.NewFromInt(-1), "USD", decimal.Zero, "Stocks", "O")
	require.Error(t, err)
	_, err = NewTrade(timestamp, "", decimal.NewFromInt(1), decimal.NewFromInt(1), "USD", decimal.Zero, "Stocks", "O")
	require.Error(t, err)
	_, err = NewTrade(time.Time{}, "X", decimal.NewFromInt(1), decimal.NewFromInt(1), "USD", decimal.Zero, "Stocks", "O")
	require.Error(t, err)
	trade, err := NewTrade(timestamp, "X", decimal.NewFromInt(-3), decimal.NewFromInt(10), "USD", decimal.NewFromInt(-1), "Stocks", "C")
	require.NoError(t, err)
	require.False(t, trade.IsBuy())
	// -3*10 - (-1) = -29.
	require.True(t, trade.CashFlow().Equal(decimal.NewFromInt(-29)), trade.CashFlow().String())
	require.Equal(t, xtime.Date{Year: 2023, Month: time.January, Day: 2}, trade.Date())
}

func TestNewDividendAccrualValidation(t *testing.T) {
	t.Parallel()
	_, err := NewDividendAccrual(xtime.Date{}, xtime.Date{}, "X", decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(1), "USD", decimal.Zero)
	require.Error(t, err)
	_, err = NewDividendAccrual(mustDate(t, "2023-01-02"), xtime.Date{}, "", decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(1), "USD", decimal.Zero)
	require.Error(t, err)
	dividend, err := NewDividendAccrual(mustDate(t, "2023-01-02"), xtime.Date{}, "X", decimal.NewFromInt(10), decimal.NewFromFloat(0.5), decimal.NewFromInt(5), "USD", decimal.Zero)
	require.NoError(t, err)
	require.True(t, dividend.PayDate.IsZero())
}

func TestPositionAt(t *testing.T) {
	t.Parallel()
	ledger := newTestLedger(t)
	tickers := []string{"X", "Y", "Z"}
	// Before any trade every ticker is zero.
	requirePosition(t, map[string]int64{"X": 0, "Y": 0, "Z": 0}, ledger.PositionAt(tickers, day(t, 1).Start()))
	// Trades exactly at the cutoff are excluded.
	requirePosition(t, map[string]int64{"X": 0, "Y": 0, "Z": 0}, ledger.PositionAt(tickers, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)))
	requirePosition(t, map[string]int64{"X": 10, "Y": 0, "Z": 0}, ledger.PositionAt(tickers, time.Date(2023, 1, 1, 10, 0, 0, 1, time.UTC)))
	requirePosition(t, map[string]int64{"X": 10, "Y": 5, "Z": 0}, ledger.PositionAt(tickers, day(t, 5).Start()))
	requirePosition(t, map[string]int64{"X": 6, "Y": 5, "Z": 0}, ledger.PositionAt(tickers, day(t, 10).Start()))
	// Idempotent.
	require.Empty(t, cmp.Diff(ledger.PositionAt(tickers, day(t, 10).Start()), ledger.PositionAt(tickers, day(t, 10).Start())))
}

func TestPositionAtOnlyLaterTrades(t *testing.T) {
	t.Parallel()
	ledger := NewLedger(
		[]Trade{
			mustTrade(t, day(t, 20).Start().Add(time.Hour), "X", 3, 50, 0),
		},
		nil,
	)
	requirePosition(t, map[string]int64{"X": 0}, ledger.PositionAt([]string{"X"}, day(t, 10).Start()))
}

func TestCashFlow(t *testing.T) {
	t.Parallel()
	ledger := newTestLedger(t)
	// Day 1 buy: 10*100 - (-1) = 1001.
	cashFlow := ledger.CashFlow(day(t, 1), day(t, 2))
	require.True(t, cashFlow.Deals.Equal(decimal.NewFromInt(1001)), cashFlow.Deals.String())
	require.True(t, cashFlow.Dividends.IsZero())
	// Day 5 sell: -4*120 - (-1) = -479; day 3 buy: 5*20 = 100.
	cashFlow = ledger.CashFlow(day(t, 2), day(t, 10))
	require.True(t, cashFlow.Deals.Equal(decimal.NewFromInt(-379)), cashFlow.Deals.String())
	require.True(t, cashFlow.Dividends.Equal(decimal.NewFromInt(3)), cashFlow.Dividends.String())
	// Empty and inverted ranges yield zero.
	cashFlow = ledger.CashFlow(day(t, 20), day(t, 25))
	require.True(t, cashFlow.Deals.IsZero())
	require.True(t, cashFlow.Dividends.IsZero())
	cashFlow = ledger.CashFlow(day(t, 10), day(t, 1))
	require.True(t, cashFlow.Deals.IsZero())
}

func TestCashFlowAdditivity(t *testing.T) {
	t.Parallel()
	ledger := newTestLedger(t)
	for a := 1; a <= 12; a++ {
		for b := a; b <= 12; b++ {
			for c := b; c <= 12; c++ {
				whole := ledger.CashFlow(day(t, a), day(t, c))
				left := ledger.CashFlow(day(t, a), day(t, b))
				right := ledger.CashFlow(day(t, b), day(t, c))
				require.True(t, whole.Deals.Equal(left.Deals.Add(right.Deals)), "a=%d b=%d c=%d", a, b, c)
				require.True(t, whole.Dividends.Equal(left.Dividends.Add(right.Dividends)), "a=%d b=%d c=%d", a, b, c)
			}
		}
	}
}

func TestEventDates(t *testing.T) {
	t.Parallel()
	ledger := newTestLedger(t)
	require.Equal(
		t,
		[]xtime.Date{day(t, 1), day(t, 3), day(t, 5), day(t, 7), day(t, 10)},
		ledger.EventDates(day(t, 1), day(t, 10)),
	)
	// End itself is included even though events on end are outside the range.
	require.Equal(
		t,
		[]xtime.Date{day(t, 2), day(t, 3), day(t, 5)},
		ledger.EventDates(day(t, 2), day(t, 5)),
	)
	require.Equal(t, []xtime.Date{day(t, 20), day(t, 25)}, ledger.EventDates(day(t, 20), day(t, 25)))
}

func TestInceptionAndRestrict(t *testing.T) {
	t.Parallel()
	ledger := newTestLedger(t)
	inception, err := ledger.Inception()
	require.NoError(t, err)
	require.Equal(t, day(t, 1), inception)
	require.Equal(t, []string{"X", "Y"}, ledger.Tickers())

	restricted := ledger.Restrict([]string{"Y"})
	inception, err = restricted.Inception()
	require.NoError(t, err)
	require.Equal(t, day(t, 3), inception)
	require.Len(t, restricted.Trades(), 1)
	require.Empty(t, restricted.Dividends())

	_, err = ledger.Restrict([]string{"Z"}).Inception()
	require.ErrorIs(t, err, ErrEmptyLedger)
	_, err = NewLedger(nil, nil).Inception()
	require.ErrorIs(t, err, ErrEmptyLedger)
}

func TestTradesForStableOrder(t *testing.T) {
	t.Parallel()
	timestamp := day(t, 2).Start().Add(10 * time.Hour)
	ledger := NewLedger(
		[]Trade{
			mustTrade(t, day(t, 3).Start(), "X", 1, 30, 0),
			mustTrade(t, timestamp, "X", 1, 10, 0),
			mustTrade(t, timestamp, "X", 1, 20, 0),
		},
		nil,
	)
	trades := ledger.TradesFor("X")
	require.Len(t, trades, 3)
	require.True(t, trades[0].Price.Equal(decimal.NewFromInt(10)))
	require.True(t, trades[1].Price.Equal(decimal.NewFromInt(20)))
	require.True(t, trades[2].Price.Equal(decimal.NewFromInt(30)))
	require.Nil(t, ledger.TradesFor("Y"))
}

// newTestLedger returns a ledger where:
//
//   - day 1 10:00: buy 10 X at 100, fee -1
//   - day 3 12:00: buy 5 Y at 20
//   - day 5 15:00: sell 4 X at 120, fee -1
//   - day 7: X dividend of 3
func newTestLedger(t *testing.T) *Ledger {
	return NewLedger(
		[]Trade{
			mustTrade(t, day(t, 5).Start().Add(15*time.Hour), "X", -4, 120, -1),
			mustTrade(t, day(t, 1).Start().Add(10*time.Hour), "X", 10, 100, -1),
			mustTrade(t, day(t, 3).Start().Add(12*time.Hour), "Y", 5, 20, 0),
		},
		[]DividendAccrual{
			mustDividend(t, day(t, 7), "X", 6, 3),
		},
	)
}

func requirePosition(t *testing.T, expected map[string]int64, actual Position) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for ticker, quantity := range expected {
		require.True(t, actual.Quantity(ticker).Equal(decimal.NewFromInt(quantity)), "%s: expected %d, got %s", ticker, quantity, actual.Quantity(ticker))
	}
}

func mustTrade(t *testing.T, timestamp time.Time, ticker string, quantity int64, price int64, fee int64) Trade {
	t.Helper()
	trade, err := NewTrade(
		timestamp,
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

func mustDividend(t *testing.T, exDate xtime.Date, ticker string, quantity int64, total int64) DividendAccrual {
	t.Helper()
	dividend, err := NewDividendAccrual(
		exDate,
		exDate.AddDays(14),
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

// day returns the nth day of January 2023.
func day(t *testing.T, n int) xtime.Date {
	t.Helper()
	return xtime.Date{Year: 2023, Month: time.January, Day: n}
}

func mustDate(t *testing.T, s string) xtime.Date {
	t.Helper()
	date, err := xtime.ParseDate(s)
	require.NoError(t, err)
	return date
}
