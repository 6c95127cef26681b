// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjasperstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPrices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.PutPrices(ctx, []ibjaspermarket.PricePoint{
		mustPricePoint(t, "2023-01-03", "VOO", "351.34"),
		mustPricePoint(t, "2023-01-04", "VOO", "352.10"),
		mustPricePoint(t, "2023-01-03", "BND", "72.5"),
		mustPricePoint(t, "2023-02-01", "VOO", "370"),
	}))
	// Upsert replaces the existing close.
	require.NoError(t, store.PutPrices(ctx, []ibjaspermarket.PricePoint{
		mustPricePoint(t, "2023-01-04", "VOO", "352.2"),
	}))
	points, err := store.Prices(ctx, []string{"VOO", "BND"}, mustDate(t, "2023-01-01"), mustDate(t, "2023-01-31"))
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.Equal(t, "BND", points[0].Ticker)
	require.Equal(t, "VOO", points[1].Ticker)
	require.Equal(t, mustDate(t, "2023-01-03"), points[1].Date)
	require.Equal(t, "352.2", points[2].Price.String())

	points, err = store.Prices(ctx, nil, mustDate(t, "2023-01-01"), mustDate(t, "2023-01-31"))
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestSplits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	split, err := ibjaspermarket.NewSplit(mustDate(t, "2023-06-01"), "VOO", decimal.NewFromInt(4))
	require.NoError(t, err)
	require.NoError(t, store.PutSplits(ctx, []ibjaspermarket.Split{split}))
	splits, err := store.Splits(ctx, []string{"VOO"}, mustDate(t, "2023-01-01"), mustDate(t, "2023-12-31"))
	require.NoError(t, err)
	require.Len(t, splits, 1)
	require.Equal(t, "4", splits[0].Ratio.String())
	splits, err = store.Splits(ctx, []string{"VOO"}, mustDate(t, "2023-07-01"), mustDate(t, "2023-12-31"))
	require.NoError(t, err)
	require.Empty(t, splits)
}

func TestFxRates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	rate, err := ibjaspermarket.NewFxRate(mustDate(t, "2023-01-10"), "USD", decimal.RequireFromString("69.8759"))
	require.NoError(t, err)
	require.NoError(t, store.PutFxRates(ctx, []ibjaspermarket.FxRate{rate}))
	rates, err := store.FxRates(ctx, []string{"USD", "EUR"}, mustDate(t, "2023-01-01"), mustDate(t, "2023-01-31"))
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.Equal(t, "USD", rates[0].Currency)
	require.True(t, rates[0].Rate.Equal(decimal.RequireFromString("69.8759")))
}

func TestCoverage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	_, ok, err := store.Coverage(ctx, KindPrices, "VOO")
	require.NoError(t, err)
	require.False(t, ok)

	fetchedAt := time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutCoverage(ctx, Coverage{
		Kind:      KindPrices,
		Key:       "VOO",
		Start:     mustDate(t, "2023-01-02"),
		End:       mustDate(t, "2023-01-31"),
		FetchedAt: fetchedAt,
	}))
	require.NoError(t, store.PutCoverage(ctx, Coverage{
		Kind:      KindFxRates,
		Key:       "USD",
		Start:     mustDate(t, "2023-01-02"),
		End:       mustDate(t, "2023-01-31"),
		FetchedAt: fetchedAt,
	}))
	coverage, ok, err := store.Coverage(ctx, KindPrices, "VOO")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, coverage.FetchedAt.Equal(fetchedAt))
	require.True(t, coverage.Covers(mustDate(t, "2023-01-02"), mustDate(t, "2023-01-31")))
	require.True(t, coverage.Covers(mustDate(t, "2023-01-10"), mustDate(t, "2023-01-20")))
	require.False(t, coverage.Covers(mustDate(t, "2023-01-01"), mustDate(t, "2023-01-31")))
	require.False(t, coverage.Covers(mustDate(t, "2023-01-02"), mustDate(t, "2023-02-01")))

	coverages, err := store.Coverages(ctx)
	require.NoError(t, err)
	require.Len(t, coverages, 2)
	require.Equal(t, KindFxRates, coverages[0].Kind)
	require.Equal(t, KindPrices, coverages[1].Kind)

	require.Error(t, store.PutCoverage(ctx, Coverage{
		Kind:  KindSplits,
		Key:   "VOO",
		Start: mustDate(t, "2023-02-01"),
		End:   mustDate(t, "2023-01-01"),
	}))
}

func TestReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	filePath := filepath.Join(t.TempDir(), "nested", "market.db")
	store, err := Open(ctx, filePath)
	require.NoError(t, err)
	require.NoError(t, store.PutPrices(ctx, []ibjaspermarket.PricePoint{
		mustPricePoint(t, "2023-01-03", "VOO", "351.34"),
	}))
	require.NoError(t, store.Close())
	store, err = Open(ctx, filePath)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	points, err := store.Prices(ctx, []string{"VOO"}, mustDate(t, "2023-01-01"), mustDate(t, "2023-01-31"))
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func mustPricePoint(t *testing.T, date string, ticker string, price string) ibjaspermarket.PricePoint {
	t.Helper()
	point, err := ibjaspermarket.NewPricePoint(mustDate(t, date), ticker, decimal.RequireFromString(price))
	require.NoError(t, err)
	return point
}

func mustDate(t *testing.T, s string) xtime.Date {
	t.Helper()
	date, err := xtime.ParseDate(s)
	require.NoError(t, err)
	return date
}
