// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjasperdownload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperstore"
	"github.com/bufdev/ibjasper/internal/pkg/backoff"
	"github.com/bufdev/ibjasper/internal/pkg/cbr"
	"github.com/bufdev/ibjasper/internal/pkg/yahoo"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadRange(t *testing.T) {
	t.Parallel()
	start, end := LoadRange(mustDate(t, "2023-01-03"), mustDate(t, "2023-01-09"))
	require.Equal(t, mustDate(t, "2023-01-02"), start)
	require.Equal(t, mustDate(t, "2023-01-06"), end)
	// Monday inception: the previous business day is the Friday before.
	start, end = LoadRange(mustDate(t, "2023-01-09"), mustDate(t, "2023-01-09"))
	require.Equal(t, mustDate(t, "2023-01-06"), start)
	require.Equal(t, mustDate(t, "2023-01-06"), end)
}

func TestPriceTableFetchesOnlyGaps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	yahooClient := newFakeYahooClient()
	downloader := newTestDownloader(t, yahooClient, newFakeCBRClient())

	prices, err := downloader.PriceTable(ctx, []string{"VOO"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-10"))
	require.NoError(t, err)
	price, err := prices.PreviousClose("VOO", mustDate(t, "2023-01-06"))
	require.NoError(t, err)
	require.Equal(t, "105", price.String())
	require.Equal(t, []string{"VOO 2023-01-02 2023-01-10"}, yahooClient.calls())

	// Fully covered: no fetch.
	_, err = downloader.PriceTable(ctx, []string{"VOO"}, mustDate(t, "2023-01-03"), mustDate(t, "2023-01-09"))
	require.NoError(t, err)
	require.Len(t, yahooClient.calls(), 1)

	// Extended on both sides: only the missing edges.
	_, err = downloader.PriceTable(ctx, []string{"VOO"}, mustDate(t, "2022-12-28"), mustDate(t, "2023-01-20"))
	require.NoError(t, err)
	require.ElementsMatch(
		t,
		[]string{
			"VOO 2023-01-02 2023-01-10",
			"VOO 2022-12-28 2023-01-01",
			"VOO 2023-01-11 2023-01-20",
		},
		yahooClient.calls(),
	)
}

func TestSplits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	yahooClient := newFakeYahooClient()
	yahooClient.splitDate = mustDate(t, "2023-01-05")
	downloader := newTestDownloader(t, yahooClient, newFakeCBRClient())

	splits, err := downloader.Splits(ctx, []string{"VOO", "BND"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-10"))
	require.NoError(t, err)
	require.Len(t, splits, 2)
	require.Equal(t, "BND", splits[0].Ticker)
	require.Equal(t, "VOO", splits[1].Ticker)
	require.Equal(t, "2", splits[1].Ratio.String())
	// Splits share the price coverage.
	_, err = downloader.PriceTable(ctx, []string{"VOO", "BND"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-10"))
	require.NoError(t, err)
	require.Len(t, yahooClient.calls(), 2)
}

func TestFxTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cbrClient := newFakeCBRClient()
	downloader := newTestDownloader(t, newFakeYahooClient(), cbrClient)

	fxTable, err := downloader.FxTable(ctx, []string{"USD", "RUB"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-12"))
	require.NoError(t, err)
	// The lookback reaches the rate published on 2022-12-30.
	rate, err := fxTable.RateOn("USD", mustDate(t, "2023-01-02"))
	require.NoError(t, err)
	require.Equal(t, "70", rate.String())
	rate, err = fxTable.RateOn("USD", mustDate(t, "2023-01-11"))
	require.NoError(t, err)
	require.Equal(t, "69.5", rate.String())
	rate, err = fxTable.RateOn("RUB", mustDate(t, "2023-01-11"))
	require.NoError(t, err)
	require.Equal(t, "1", rate.String())
	require.Equal(t, []string{"USD 2022-12-19 2023-01-12"}, cbrClient.calls())
}

func TestRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	yahooClient := newFakeYahooClient()
	yahooClient.failures = 2
	downloader := newTestDownloader(t, yahooClient, newFakeCBRClient())
	_, err := downloader.PriceTable(ctx, []string{"VOO"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-10"))
	require.NoError(t, err)
	require.Len(t, yahooClient.calls(), 3)
}

func TestSymbolNotFoundNotRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	yahooClient := newFakeYahooClient()
	yahooClient.notFound = map[string]bool{"NOPE": true}
	downloader := newTestDownloader(t, yahooClient, newFakeCBRClient())
	_, err := downloader.PriceTable(ctx, []string{"NOPE"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-10"))
	require.ErrorIs(t, err, yahoo.ErrSymbolNotFound)
	require.Len(t, yahooClient.calls(), 1)
}

func TestCachedOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	yahooClient := newFakeYahooClient()
	store := openStore(t)
	downloader := NewDownloader(
		slog.New(slog.DiscardHandler),
		store,
		yahooClient,
		newFakeCBRClient(),
		DownloaderWithCachedOnly(true),
	)
	prices, err := downloader.PriceTable(ctx, []string{"VOO"}, mustDate(t, "2023-01-02"), mustDate(t, "2023-01-10"))
	require.NoError(t, err)
	require.Empty(t, prices.Points("VOO"))
	require.Empty(t, yahooClient.calls())
}

func TestDownloadInvalidRange(t *testing.T) {
	t.Parallel()
	downloader := newTestDownloader(t, newFakeYahooClient(), newFakeCBRClient())
	err := downloader.Download(context.Background(), []string{"VOO"}, nil, mustDate(t, "2023-01-10"), mustDate(t, "2023-01-02"))
	require.Error(t, err)
}

type fakeYahooClient struct {
	lock      sync.Mutex
	requests  []string
	failures  int
	notFound  map[string]bool
	splitDate xtime.Date
}

func newFakeYahooClient() *fakeYahooClient {
	return &fakeYahooClient{}
}

// GetChart returns a close of 100 plus the day of month on every weekday.
func (f *fakeYahooClient) GetChart(_ context.Context, symbol string, start xtime.Date, end xtime.Date) (*yahoo.Chart, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests = append(f.requests, fmt.Sprintf("%s %s %s", symbol, start, end))
	if f.notFound[symbol] {
		return nil, fmt.Errorf("%s: %w", symbol, yahoo.ErrSymbolNotFound)
	}
	if f.failures > 0 {
		f.failures--
		return nil, &backoff.StatusError{StatusCode: http.StatusServiceUnavailable}
	}
	chart := &yahoo.Chart{Symbol: symbol, Currency: "USD"}
	for date := start; date.EqualOrBefore(end); date = date.AddDays(1) {
		if weekday := date.Weekday(); weekday == time.Saturday || weekday == time.Sunday {
			continue
		}
		chart.Closes = append(chart.Closes, yahoo.DailyClose{
			Date:  date,
			Close: decimal.NewFromInt(int64(100 + date.Day)),
		})
	}
	if !f.splitDate.IsZero() && f.splitDate.EqualOrAfter(start) && f.splitDate.EqualOrBefore(end) {
		chart.Splits = append(chart.Splits, yahoo.Split{Date: f.splitDate, Ratio: decimal.NewFromInt(2)})
	}
	return chart, nil
}

func (f *fakeYahooClient) calls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.requests...)
}

type fakeCBRClient struct {
	lock      sync.Mutex
	requests  []string
	published map[string]string
}

func newFakeCBRClient() *fakeCBRClient {
	return &fakeCBRClient{
		published: map[string]string{
			"2022-12-30": "70",
			"2023-01-10": "69.5",
		},
	}
}

func (f *fakeCBRClient) GetRates(_ context.Context, currency string, start xtime.Date, end xtime.Date) ([]cbr.DailyRate, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests = append(f.requests, fmt.Sprintf("%s %s %s", currency, start, end))
	var rates []cbr.DailyRate
	for dateString, rateString := range f.published {
		date, err := xtime.ParseDate(dateString)
		if err != nil {
			return nil, err
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		rates = append(rates, cbr.DailyRate{Date: date, Rate: decimal.RequireFromString(rateString)})
	}
	return rates, nil
}

func (f *fakeCBRClient) calls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestDownloader(t *testing.T, yahooClient yahoo.Client, cbrClient cbr.Client) *Downloader {
	t.Helper()
	return NewDownloader(
		slog.New(slog.DiscardHandler),
		openStore(t),
		yahooClient,
		cbrClient,
		DownloaderWithRetry(3, time.Millisecond, time.Millisecond),
		DownloaderWithNow(func() time.Time { return time.Date(2023, 1, 21, 0, 0, 0, 0, time.UTC) }),
	)
}

func openStore(t *testing.T) *ibjasperstore.Store {
	t.Helper()
	store, err := ibjasperstore.Open(context.Background(), filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func mustDate(t *testing.T, s string) xtime.Date {
	t.Helper()
	date, err := xtime.ParseDate(s)
	require.NoError(t, err)
	return date
}
