// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperdownload fetches market data into the local cache and serves
// it back as immutable tables.
//
// Prices and splits come from Yahoo Finance, RUB rates from the Central Bank of
// Russia. For each ticker and currency only the part of the requested range not
// already recorded as covered is fetched.
package ibjasperdownload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperstore"
	"github.com/bufdev/ibjasper/internal/pkg/backoff"
	"github.com/bufdev/ibjasper/internal/pkg/cbr"
	"github.com/bufdev/ibjasper/internal/pkg/yahoo"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts  = 5
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultConcurrency  = 4
	// fxLookbackDays extends FX fetches backward so that the first day of a
	// range has a published rate on or before it across long holidays.
	fxLookbackDays = 14
)

// LoadRange returns the market data range for a portfolio with the given
// inception date: one business day before inception through the business day
// before today.
func LoadRange(inception xtime.Date, today xtime.Date) (xtime.Date, xtime.Date) {
	start := inception.AddBusinessDays(-1)
	end := today.AddBusinessDays(-1)
	if end.Before(start) {
		end = start
	}
	return start, end
}

// Downloader fetches and caches market data.
//
// It implements ibjaspermarket.Source.
type Downloader struct {
	logger       *slog.Logger
	store        *ibjasperstore.Store
	yahooClient  yahoo.Client
	cbrClient    cbr.Client
	cachedOnly   bool
	concurrency  int
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	now          func() time.Time
}

var _ ibjaspermarket.Source = &Downloader{}

// DownloaderOption is an option for a new Downloader.
type DownloaderOption func(*Downloader)

// DownloaderWithCachedOnly makes the Downloader serve only what is already
// cached, without any network access.
func DownloaderWithCachedOnly(cachedOnly bool) DownloaderOption {
	return func(downloader *Downloader) {
		downloader.cachedOnly = cachedOnly
	}
}

// DownloaderWithConcurrency sets the maximum number of concurrent fetches.
func DownloaderWithConcurrency(concurrency int) DownloaderOption {
	return func(downloader *Downloader) {
		if concurrency > 0 {
			downloader.concurrency = concurrency
		}
	}
}

// DownloaderWithRetry sets the retry policy for failed fetches.
func DownloaderWithRetry(maxAttempts int, initialDelay time.Duration, maxDelay time.Duration) DownloaderOption {
	return func(downloader *Downloader) {
		downloader.maxAttempts = maxAttempts
		downloader.initialDelay = initialDelay
		downloader.maxDelay = maxDelay
	}
}

// DownloaderWithNow sets the clock used to stamp coverage records.
func DownloaderWithNow(now func() time.Time) DownloaderOption {
	return func(downloader *Downloader) {
		downloader.now = now
	}
}

// NewDownloader returns a new Downloader.
func NewDownloader(
	logger *slog.Logger,
	store *ibjasperstore.Store,
	yahooClient yahoo.Client,
	cbrClient cbr.Client,
	options ...DownloaderOption,
) *Downloader {
	downloader := &Downloader{
		logger:       logger,
		store:        store,
		yahooClient:  yahooClient,
		cbrClient:    cbrClient,
		concurrency:  defaultConcurrency,
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		now:          time.Now,
	}
	for _, option := range options {
		option(downloader)
	}
	return downloader
}

// Download fetches whatever is missing from the cache for the tickers and
// currencies over [start, end].
func (d *Downloader) Download(ctx context.Context, tickers []string, currencies []string, start xtime.Date, end xtime.Date) error {
	if end.Before(start) {
		return fmt.Errorf("download end %s is before start %s", end, start)
	}
	if d.cachedOnly {
		return d.warnMissing(ctx, tickers, currencies, start, end)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)
	for _, ticker := range uniqueSorted(tickers) {
		eg.Go(func() error {
			return d.downloadTicker(ctx, ticker, start, end)
		})
	}
	for _, currency := range uniqueSorted(currencies) {
		if currency == ibjaspermarket.BaseCurrency {
			continue
		}
		eg.Go(func() error {
			return d.downloadCurrency(ctx, currency, start.AddDays(-fxLookbackDays), end)
		})
	}
	return eg.Wait()
}

// PriceTable implements ibjaspermarket.Source.
func (d *Downloader) PriceTable(ctx context.Context, tickers []string, start xtime.Date, end xtime.Date) (*ibjaspermarket.PriceTable, error) {
	if err := d.Download(ctx, tickers, nil, start, end); err != nil {
		return nil, err
	}
	points, err := d.store.Prices(ctx, tickers, start, end)
	if err != nil {
		return nil, err
	}
	return ibjaspermarket.NewPriceTable(points), nil
}

// Splits implements ibjaspermarket.Source.
func (d *Downloader) Splits(ctx context.Context, tickers []string, start xtime.Date, end xtime.Date) ([]ibjaspermarket.Split, error) {
	if err := d.Download(ctx, tickers, nil, start, end); err != nil {
		return nil, err
	}
	return d.store.Splits(ctx, tickers, start, end)
}

// FxTable implements ibjaspermarket.Source.
func (d *Downloader) FxTable(ctx context.Context, currencies []string, start xtime.Date, end xtime.Date) (*ibjaspermarket.FxTable, error) {
	if err := d.Download(ctx, nil, currencies, start, end); err != nil {
		return nil, err
	}
	rates, err := d.store.FxRates(ctx, currencies, start.AddDays(-fxLookbackDays), end)
	if err != nil {
		return nil, err
	}
	return ibjaspermarket.NewFxTable(rates, start, end)
}

// *** PRIVATE ***

func (d *Downloader) downloadTicker(ctx context.Context, ticker string, start xtime.Date, end xtime.Date) error {
	gaps, coverage, err := d.gaps(ctx, ibjasperstore.KindPrices, ticker, start, end)
	if err != nil {
		return err
	}
	for _, gap := range gaps {
		d.logger.Info("downloading prices", "ticker", ticker, "start", gap.start.String(), "end", gap.end.String())
		chart, err := retryFetch(ctx, d, func(ctx context.Context) (*yahoo.Chart, error) {
			return d.yahooClient.GetChart(ctx, ticker, gap.start, gap.end)
		})
		if err != nil {
			return fmt.Errorf("downloading prices for %s: %w", ticker, err)
		}
		points, splits, err := chartToMarketData(ticker, chart)
		if err != nil {
			return err
		}
		if err := d.store.PutPrices(ctx, points); err != nil {
			return err
		}
		if err := d.store.PutSplits(ctx, splits); err != nil {
			return err
		}
		d.logger.Debug("prices downloaded", "ticker", ticker, "closes", len(points), "splits", len(splits))
	}
	if len(gaps) == 0 {
		return nil
	}
	for _, kind := range []ibjasperstore.Kind{ibjasperstore.KindPrices, ibjasperstore.KindSplits} {
		coverage.Kind = kind
		if err := d.store.PutCoverage(ctx, coverage); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) downloadCurrency(ctx context.Context, currency string, start xtime.Date, end xtime.Date) error {
	gaps, coverage, err := d.gaps(ctx, ibjasperstore.KindFxRates, currency, start, end)
	if err != nil {
		return err
	}
	for _, gap := range gaps {
		d.logger.Info("downloading fx rates", "currency", currency, "start", gap.start.String(), "end", gap.end.String())
		dailyRates, err := retryFetch(ctx, d, func(ctx context.Context) ([]cbr.DailyRate, error) {
			return d.cbrClient.GetRates(ctx, currency, gap.start, gap.end)
		})
		if err != nil {
			return fmt.Errorf("downloading fx rates for %s: %w", currency, err)
		}
		rates := make([]ibjaspermarket.FxRate, 0, len(dailyRates))
		for _, dailyRate := range dailyRates {
			rate, err := ibjaspermarket.NewFxRate(dailyRate.Date, currency, dailyRate.Rate)
			if err != nil {
				return err
			}
			rates = append(rates, rate)
		}
		if err := d.store.PutFxRates(ctx, rates); err != nil {
			return err
		}
	}
	if len(gaps) == 0 {
		return nil
	}
	return d.store.PutCoverage(ctx, coverage)
}

type dateRange struct {
	start xtime.Date
	end   xtime.Date
}

// gaps returns the parts of [start, end] not yet covered for the key, and the
// coverage to record once they are fetched.
func (d *Downloader) gaps(ctx context.Context, kind ibjasperstore.Kind, key string, start xtime.Date, end xtime.Date) ([]dateRange, ibjasperstore.Coverage, error) {
	coverage := ibjasperstore.Coverage{
		Kind:      kind,
		Key:       key,
		Start:     start,
		End:       end,
		FetchedAt: d.now(),
	}
	existing, ok, err := d.store.Coverage(ctx, kind, key)
	if err != nil {
		return nil, coverage, err
	}
	if !ok {
		return []dateRange{{start: start, end: end}}, coverage, nil
	}
	if existing.Covers(start, end) {
		return nil, existing, nil
	}
	// Disjoint ranges would leave a hole, so fill from the request to the
	// existing coverage.
	var gaps []dateRange
	if start.Before(existing.Start) {
		gaps = append(gaps, dateRange{start: start, end: existing.Start.AddDays(-1)})
		coverage.Start = start
	} else {
		coverage.Start = existing.Start
	}
	if end.After(existing.End) {
		gaps = append(gaps, dateRange{start: existing.End.AddDays(1), end: end})
		coverage.End = end
	} else {
		coverage.End = existing.End
	}
	return gaps, coverage, nil
}

func (d *Downloader) warnMissing(ctx context.Context, tickers []string, currencies []string, start xtime.Date, end xtime.Date) error {
	check := func(kind ibjasperstore.Kind, key string, start xtime.Date) error {
		coverage, ok, err := d.store.Coverage(ctx, kind, key)
		if err != nil {
			return err
		}
		if !ok || !coverage.Covers(start, end) {
			d.logger.Warn("cache does not cover requested range", "kind", string(kind), "key", key, "start", start.String(), "end", end.String())
		}
		return nil
	}
	for _, ticker := range uniqueSorted(tickers) {
		if err := check(ibjasperstore.KindPrices, ticker, start); err != nil {
			return err
		}
	}
	for _, currency := range uniqueSorted(currencies) {
		if currency == ibjaspermarket.BaseCurrency {
			continue
		}
		if err := check(ibjasperstore.KindFxRates, currency, start.AddDays(-fxLookbackDays)); err != nil {
			return err
		}
	}
	return nil
}

func retryFetch[T any](ctx context.Context, d *Downloader, f func(ctx context.Context) (T, error)) (T, error) {
	return backoff.Retry(ctx, d.maxAttempts, d.initialDelay, d.maxDelay,
		func(ctx context.Context, attempt int) (T, bool, error) {
			if attempt > 0 {
				d.logger.Info("retrying fetch", "attempt", attempt+1)
			}
			result, err := f(ctx)
			retryable := backoff.IsRetryable(err) && !errors.Is(err, yahoo.ErrSymbolNotFound) && !errors.Is(err, cbr.ErrUnsupportedCurrency)
			if err != nil && retryable {
				d.logger.Warn("transient fetch error, will retry", "error", err)
			}
			return result, retryable, err
		},
	)
}

func chartToMarketData(ticker string, chart *yahoo.Chart) ([]ibjaspermarket.PricePoint, []ibjaspermarket.Split, error) {
	points := make([]ibjaspermarket.PricePoint, 0, len(chart.Closes))
	for _, dailyClose := range chart.Closes {
		point, err := ibjaspermarket.NewPricePoint(dailyClose.Date, ticker, dailyClose.Close)
		if err != nil {
			return nil, nil, err
		}
		points = append(points, point)
	}
	splits := make([]ibjaspermarket.Split, 0, len(chart.Splits))
	for _, chartSplit := range chart.Splits {
		split, err := ibjaspermarket.NewSplit(chartSplit.Date, ticker, chartSplit.Ratio)
		if err != nil {
			return nil, nil, err
		}
		splits = append(splits, split)
	}
	return points, splits, nil
}

func uniqueSorted(values []string) []string {
	values = slices.Clone(values)
	slices.Sort(values)
	return slices.Compact(values)
}
