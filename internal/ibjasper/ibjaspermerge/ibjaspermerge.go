// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjaspermerge merges Activity Statement CSVs into the normalized
// trades, dividend accruals, and deposits that the ledger is built from.
//
// Statements may overlap (for example, a yearly statement and the monthly
// statements of the same year), so exact duplicate rows are collapsed.
package ibjaspermerge

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/pkg/ibkractivitycsv"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

const (
	// stocksAssetCategory is the only asset category the ledger tracks.
	stocksAssetCategory = "Stocks"
	// reversalCode marks the accrual reversal that is booked when a dividend is paid.
	reversalCode = "Re"
)

// MergedData contains all data merged from Activity Statement CSVs.
type MergedData struct {
	// Trades is the deduplicated list of stock trades, sorted by (timestamp, ticker).
	Trades []ibjasperledger.Trade
	// Dividends is the deduplicated list of paid dividend accruals, sorted by (ex-date, ticker).
	Dividends []ibjasperledger.DividendAccrual
	// Deposits is the deduplicated list of deposits and withdrawals, sorted by date.
	Deposits []Deposit
}

// Deposit is a cash deposit (positive) or withdrawal (negative).
type Deposit struct {
	Date        xtime.Date      `json:"date"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// NetDeposits returns the sum of deposit amounts per currency.
func (m *MergedData) NetDeposits() map[string]decimal.Decimal {
	currencyToAmount := make(map[string]decimal.Decimal)
	for _, deposit := range m.Deposits {
		currencyToAmount[deposit.Currency] = currencyToAmount[deposit.Currency].Add(deposit.Amount)
	}
	return currencyToAmount
}

// Merge reads all Activity Statement CSVs under the directory and merges them.
func Merge(logger *slog.Logger, activityStatementsDirPath string) (*MergedData, error) {
	statements, err := ibkractivitycsv.ParseDirectory(activityStatementsDirPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("parsed activity statements", "dir", activityStatementsDirPath, "count", len(statements))
	return MergeStatements(logger, statements)
}

// MergeStatements merges already-parsed Activity Statements.
func MergeStatements(logger *slog.Logger, statements []*ibkractivitycsv.ActivityStatement) (*MergedData, error) {
	mergedData := &MergedData{}
	seenTradeIDs := make(map[string]struct{})
	// Dividends are grouped and the last row of each group wins.
	dividendKeyToIndex := make(map[string]int)
	seenDeposits := make(map[string]struct{})
	for _, statement := range statements {
		for i := range statement.Trades {
			csvTrade := &statement.Trades[i]
			if csvTrade.AssetCategory != stocksAssetCategory {
				logger.Debug("skipping non-stock trade", "symbol", csvTrade.Symbol, "asset_category", csvTrade.AssetCategory)
				continue
			}
			tradeID := generateTradeID(csvTrade)
			if _, ok := seenTradeIDs[tradeID]; ok {
				continue
			}
			seenTradeIDs[tradeID] = struct{}{}
			trade, err := csvTradeToTrade(csvTrade)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", statement.FilePath, err)
			}
			mergedData.Trades = append(mergedData.Trades, trade)
		}
		for i := range statement.DividendAccruals {
			csvDividendAccrual := &statement.DividendAccruals[i]
			if csvDividendAccrual.Code != reversalCode {
				continue
			}
			dividend, err := csvDividendAccrualToDividendAccrual(csvDividendAccrual)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", statement.FilePath, err)
			}
			key := dividendKey(dividend)
			if index, ok := dividendKeyToIndex[key]; ok {
				mergedData.Dividends[index] = dividend
				continue
			}
			dividendKeyToIndex[key] = len(mergedData.Dividends)
			mergedData.Dividends = append(mergedData.Dividends, dividend)
		}
		for i := range statement.DepositsWithdrawals {
			deposit, err := csvDepositWithdrawalToDeposit(&statement.DepositsWithdrawals[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", statement.FilePath, err)
			}
			key := depositKey(deposit)
			if _, ok := seenDeposits[key]; ok {
				continue
			}
			seenDeposits[key] = struct{}{}
			mergedData.Deposits = append(mergedData.Deposits, deposit)
		}
	}
	// Sort for deterministic output. Stable so that same-timestamp lots keep statement order.
	slices.SortStableFunc(mergedData.Trades, func(a ibjasperledger.Trade, b ibjasperledger.Trade) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.Ticker, b.Ticker)
	})
	slices.SortStableFunc(mergedData.Dividends, func(a ibjasperledger.DividendAccrual, b ibjasperledger.DividendAccrual) int {
		if c := a.ExDate.Compare(b.ExDate); c != 0 {
			return c
		}
		return strings.Compare(a.Ticker, b.Ticker)
	})
	slices.SortStableFunc(mergedData.Deposits, func(a Deposit, b Deposit) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Currency, b.Currency)
	})
	return mergedData, nil
}

// *** PRIVATE ***

// csvTradeToTrade converts an Activity Statement CSV trade to a validated Trade.
func csvTradeToTrade(csvTrade *ibkractivitycsv.Trade) (ibjasperledger.Trade, error) {
	quantity, err := decimal.NewFromString(csvTrade.Quantity)
	if err != nil {
		return ibjasperledger.Trade{}, fmt.Errorf("parsing quantity %q for %s: %w", csvTrade.Quantity, csvTrade.Symbol, err)
	}
	price, err := decimal.NewFromString(csvTrade.TradePrice)
	if err != nil {
		return ibjasperledger.Trade{}, fmt.Errorf("parsing price %q for %s: %w", csvTrade.TradePrice, csvTrade.Symbol, err)
	}
	fee, err := parseOptionalDecimal(csvTrade.Commission)
	if err != nil {
		return ibjasperledger.Trade{}, fmt.Errorf("parsing commission %q for %s: %w", csvTrade.Commission, csvTrade.Symbol, err)
	}
	return ibjasperledger.NewTrade(
		csvTrade.DateTime.UTC(),
		csvTrade.Symbol,
		quantity,
		price,
		csvTrade.CurrencyCode,
		fee,
		csvTrade.AssetCategory,
		csvTrade.Code,
	)
}

// csvDividendAccrualToDividendAccrual converts an accrual reversal to a DividendAccrual.
//
// The reversal books the accrual back out when the dividend is paid, so the
// cash received is the negated gross amount.
func csvDividendAccrualToDividendAccrual(csvDividendAccrual *ibkractivitycsv.DividendAccrual) (ibjasperledger.DividendAccrual, error) {
	symbol := csvDividendAccrual.Symbol
	quantity, err := decimal.NewFromString(csvDividendAccrual.Quantity)
	if err != nil {
		return ibjasperledger.DividendAccrual{}, fmt.Errorf("parsing dividend quantity %q for %s: %w", csvDividendAccrual.Quantity, symbol, err)
	}
	perShare, err := decimal.NewFromString(csvDividendAccrual.GrossRate)
	if err != nil {
		return ibjasperledger.DividendAccrual{}, fmt.Errorf("parsing gross rate %q for %s: %w", csvDividendAccrual.GrossRate, symbol, err)
	}
	grossAmount, err := decimal.NewFromString(csvDividendAccrual.GrossAmount)
	if err != nil {
		return ibjasperledger.DividendAccrual{}, fmt.Errorf("parsing gross amount %q for %s: %w", csvDividendAccrual.GrossAmount, symbol, err)
	}
	tax, err := parseOptionalDecimal(csvDividendAccrual.Tax)
	if err != nil {
		return ibjasperledger.DividendAccrual{}, fmt.Errorf("parsing tax %q for %s: %w", csvDividendAccrual.Tax, symbol, err)
	}
	var payDate xtime.Date
	if !csvDividendAccrual.PayDate.IsZero() {
		payDate = xtime.TimeToDate(csvDividendAccrual.PayDate)
	}
	return ibjasperledger.NewDividendAccrual(
		xtime.TimeToDate(csvDividendAccrual.ExDate),
		payDate,
		symbol,
		quantity,
		perShare,
		grossAmount.Neg(),
		csvDividendAccrual.CurrencyCode,
		tax,
	)
}

func csvDepositWithdrawalToDeposit(csvDepositWithdrawal *ibkractivitycsv.DepositWithdrawal) (Deposit, error) {
	amount, err := decimal.NewFromString(csvDepositWithdrawal.Amount)
	if err != nil {
		return Deposit{}, fmt.Errorf("parsing deposit amount %q: %w", csvDepositWithdrawal.Amount, err)
	}
	return Deposit{
		Date:        xtime.TimeToDate(csvDepositWithdrawal.SettleDate),
		Currency:    csvDepositWithdrawal.CurrencyCode,
		Amount:      amount,
		Description: csvDepositWithdrawal.Description,
	}, nil
}

// generateTradeID creates a deterministic trade ID from trade fields, since
// Activity Statements do not carry one.
func generateTradeID(csvTrade *ibkractivitycsv.Trade) string {
	raw := strings.Join(
		[]string{
			csvTrade.Symbol,
			csvTrade.DateTime.Format(time.RFC3339),
			csvTrade.Quantity,
			csvTrade.TradePrice,
			csvTrade.Commission,
			csvTrade.CurrencyCode,
			csvTrade.Code,
		},
		"|",
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("csv-%x", hash[:8])
}

// dividendKey groups accruals by (ex-date, ticker, quantity, per share, currency).
func dividendKey(dividend ibjasperledger.DividendAccrual) string {
	return strings.Join(
		[]string{
			dividend.ExDate.String(),
			dividend.Ticker,
			dividend.Quantity.String(),
			dividend.PerShare.String(),
			dividend.Currency,
		},
		"|",
	)
}

// depositKey keys on the canonical amount string, since decimal.Decimal holds a pointer.
func depositKey(deposit Deposit) string {
	return strings.Join(
		[]string{
			deposit.Date.String(),
			deposit.Currency,
			deposit.Amount.String(),
			deposit.Description,
		},
		"|",
	)
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
