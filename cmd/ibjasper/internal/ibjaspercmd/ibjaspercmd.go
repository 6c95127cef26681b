// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjaspercmd provides shared wiring for ibjasper commands: flag names,
// and loading the config, ledger, and market data from the base directory.
package ibjaspercmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperconfig"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperdownload"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermerge"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperpath"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperstore"
	"github.com/bufdev/ibjasper/internal/pkg/cbr"
	"github.com/bufdev/ibjasper/internal/pkg/yahoo"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/spf13/pflag"
)

const (
	// DirFlagName is the flag name for the base directory.
	DirFlagName = "dir"
	// FormatFlagName is the flag name for the output format.
	FormatFlagName = "format"
	// CachedFlagName is the flag name for skipping download and using cached data only.
	CachedFlagName = "cached"
	// PortfolioFlagName is the flag name for selecting a portfolio.
	PortfolioFlagName = "portfolio"

	httpTimeout = time.Minute
)

// BindDir registers the --dir flag.
func BindDir(flagSet *pflag.FlagSet, dir *string) {
	flagSet.StringVar(dir, DirFlagName, ".", "The ibjasper directory containing ibjasper.yaml")
}

// BindFormat registers the --format flag.
func BindFormat(flagSet *pflag.FlagSet, format *string) {
	flagSet.StringVar(format, FormatFlagName, "table", "Output format (table, csv, json)")
}

// BindCached registers the --cached flag.
func BindCached(flagSet *pflag.FlagSet, cached *bool) {
	flagSet.BoolVar(cached, CachedFlagName, false, "Skip downloading and use only cached data")
}

// BindPortfolio registers the --portfolio flag.
func BindPortfolio(flagSet *pflag.FlagSet, portfolio *string) {
	flagSet.StringVar(portfolio, PortfolioFlagName, "", "The portfolio to show, all portfolios if unset")
}

// Workspace is everything a report command needs, loaded from the base directory.
//
// Close must be called when done.
type Workspace struct {
	// Config is the validated configuration.
	Config *ibjasperconfig.Config
	// Ledger holds all trades, restated in post-split shares, and dividends.
	Ledger *ibjasperledger.Ledger
	// Downloader serves market data from the cache, fetching what is missing
	// unless the workspace was opened with cached set.
	Downloader *ibjasperdownload.Downloader
	// Start is the first day of the market data range.
	Start xtime.Date
	// End is the last day of the market data range.
	End xtime.Date
	// Today is the date the workspace was opened.
	Today xtime.Date

	store *ibjasperstore.Store
}

// OpenWorkspace reads the config and activity statements in dirPath, opens the
// market data cache, and adjusts trades for splits.
func OpenWorkspace(ctx context.Context, container appext.Container, dirPath string, cached bool) (_ *Workspace, retErr error) {
	logger := container.Logger()
	config, err := ibjasperconfig.ReadConfig(dirPath)
	if err != nil {
		return nil, err
	}
	for _, ticker := range config.SharedTickers() {
		logger.Warn("ticker is targeted by several portfolios, its trades count toward each", "ticker", ticker)
	}
	mergedData, err := ibjaspermerge.Merge(logger, ibjasperpath.ActivityStatementsDirPath(dirPath))
	if err != nil {
		return nil, err
	}
	ledger := ibjasperledger.NewLedger(mergedData.Trades, mergedData.Dividends)
	inception, err := ledger.Inception()
	if err != nil {
		if errors.Is(err, ibjasperledger.ErrEmptyLedger) {
			return nil, errors.New("no trades found, export IBKR Activity Statements as CSV into " + ibjasperpath.ActivityStatementsDirPath(dirPath))
		}
		return nil, err
	}
	for _, ticker := range ledger.Tickers() {
		if !isTargeted(config, ticker) {
			logger.Debug("traded ticker is not targeted by any portfolio", "ticker", ticker)
		}
	}
	today := xtime.TimeToDate(time.Now())
	start, end := ibjasperdownload.LoadRange(inception, today)
	store, err := ibjasperstore.Open(ctx, ibjasperpath.MarketDataFilePath(dirPath))
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			retErr = errors.Join(retErr, store.Close())
		}
	}()
	downloader := NewDownloader(logger, store, cached)
	splits, err := downloader.Splits(ctx, ledger.Tickers(), start, end)
	if err != nil {
		return nil, err
	}
	if len(splits) > 0 {
		logger.Debug("adjusting trades for splits", "splits", len(splits))
		ledger = ibjasperledger.NewLedger(ibjaspermarket.AdjustForSplits(ledger.Trades(), splits), ledger.Dividends())
	}
	return &Workspace{
		Config:     config,
		Ledger:     ledger,
		Downloader: downloader,
		Start:      start,
		End:        end,
		Today:      today,
		store:      store,
	}, nil
}

// PriceTable returns the daily closes of the tickers over the workspace range.
func (w *Workspace) PriceTable(ctx context.Context, tickers []string) (*ibjaspermarket.PriceTable, error) {
	return w.Downloader.PriceTable(ctx, tickers, w.Start, w.End)
}

// FxTable returns the configured currencies' RUB rates over the workspace range.
func (w *Workspace) FxTable(ctx context.Context) (*ibjaspermarket.FxTable, error) {
	return w.Downloader.FxTable(ctx, w.Config.FxCurrencies, w.Start, w.End)
}

// Coverages returns what the market data cache holds.
func (w *Workspace) Coverages(ctx context.Context) ([]ibjasperstore.Coverage, error) {
	return w.store.Coverages(ctx)
}

// Portfolios returns the named portfolio, or all portfolios if name is empty.
func (w *Workspace) Portfolios(name string) ([]*ibjasperconfig.PortfolioConfig, error) {
	if name == "" {
		return w.Config.Portfolios, nil
	}
	portfolio, err := w.Config.Portfolio(name)
	if err != nil {
		return nil, appcmd.NewInvalidArgumentError(err.Error())
	}
	return []*ibjasperconfig.PortfolioConfig{portfolio}, nil
}

// Close closes the market data cache.
func (w *Workspace) Close() error {
	return w.store.Close()
}

// NewDownloader constructs a Downloader with production API clients.
func NewDownloader(logger *slog.Logger, store *ibjasperstore.Store, cached bool) *ibjasperdownload.Downloader {
	httpClient := &http.Client{Timeout: httpTimeout}
	return ibjasperdownload.NewDownloader(
		logger,
		store,
		yahoo.NewClient(yahoo.ClientWithHTTPClient(httpClient)),
		cbr.NewClient(cbr.ClientWithHTTPClient(httpClient)),
		ibjasperdownload.DownloaderWithCachedOnly(cached),
	)
}

func isTargeted(config *ibjasperconfig.Config, ticker string) bool {
	for _, portfolio := range config.Portfolios {
		if _, ok := portfolio.TargetPercents[ticker]; ok {
			return true
		}
	}
	return false
}
