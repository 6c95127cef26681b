// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjasperledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// Trade is a single normalized trade execution.
//
// Quantity is signed: positive for buys, negative for sells. Fee follows the
// broker convention where commissions are negative amounts.
type Trade struct {
	// Timestamp is the execution time as a naive wall-clock time in UTC.
	Timestamp time.Time `json:"timestamp"`
	// Ticker is the symbol of the traded security.
	Ticker string `json:"ticker"`
	// Quantity is the signed number of shares.
	Quantity decimal.Decimal `json:"quantity"`
	// Price is the per-share price in the trade currency.
	Price decimal.Decimal `json:"price"`
	// Currency is the ISO currency code of the trade.
	Currency string `json:"currency"`
	// Fee is the commission charged for the trade.
	Fee decimal.Decimal `json:"fee"`
	// AssetType is the broker asset category (e.g., "Stocks").
	AssetType string `json:"asset_type"`
	// Code is the broker trade code (e.g., "O", "C;P").
	Code string `json:"code,omitempty"`
}

// NewTrade returns a validated Trade.
func NewTrade(
	timestamp time.Time,
	ticker string,
	quantity decimal.Decimal,
	price decimal.Decimal,
	currency string,
	fee decimal.Decimal,
	assetType string,
	code string,
) (Trade, error) {
	if strings.TrimSpace(ticker) == "" {
		return Trade{}, errors.New("trade ticker is required")
	}
	if timestamp.IsZero() {
		return Trade{}, fmt.Errorf("trade for %s has no timestamp", ticker)
	}
	if quantity.IsZero() {
		return Trade{}, fmt.Errorf("trade for %s on %s has zero quantity", ticker, timestamp.Format(time.DateTime))
	}
	if !price.IsPositive() {
		return Trade{}, fmt.Errorf("trade for %s on %s has non-positive price %s", ticker, timestamp.Format(time.DateTime), price)
	}
	if currency == "" {
		return Trade{}, fmt.Errorf("trade for %s on %s has no currency", ticker, timestamp.Format(time.DateTime))
	}
	return Trade{
		Timestamp: timestamp,
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		Currency:  currency,
		Fee:       fee,
		AssetType: assetType,
		Code:      code,
	}, nil
}

// Date returns the calendar date the trade was executed on.
func (t Trade) Date() xtime.Date {
	return xtime.TimeToDate(t.Timestamp)
}

// IsBuy returns true if the trade increases the position.
func (t Trade) IsBuy() bool {
	return t.Quantity.IsPositive()
}

// CashFlow returns quantity*price - fee, the signed cash attributable to the trade.
func (t Trade) CashFlow() decimal.Decimal {
	return t.Quantity.Mul(t.Price).Sub(t.Fee)
}

// DividendAccrual is a dividend attributed to its ex-dividend date.
type DividendAccrual struct {
	// ExDate is the ex-dividend date the cash is attributed to.
	ExDate xtime.Date `json:"ex_date"`
	// PayDate is the payment date, zero if not yet known.
	PayDate xtime.Date `json:"pay_date"`
	// Ticker is the symbol paying the dividend.
	Ticker string `json:"ticker"`
	// Quantity is the number of shares entitled to the dividend.
	Quantity decimal.Decimal `json:"quantity"`
	// PerShare is the gross dividend per share.
	PerShare decimal.Decimal `json:"div_per_share"`
	// Total is the cash amount, positive when received.
	Total decimal.Decimal `json:"div_total"`
	// Currency is the ISO currency code of the dividend.
	Currency string `json:"currency"`
	// Tax is the withholding tax on the dividend.
	Tax decimal.Decimal `json:"tax"`
}

// NewDividendAccrual returns a validated DividendAccrual.
func NewDividendAccrual(
	exDate xtime.Date,
	payDate xtime.Date,
	ticker string,
	quantity decimal.Decimal,
	perShare decimal.Decimal,
	total decimal.Decimal,
	currency string,
	tax decimal.Decimal,
) (DividendAccrual, error) {
	if strings.TrimSpace(ticker) == "" {
		return DividendAccrual{}, errors.New("dividend ticker is required")
	}
	if !exDate.IsValid() {
		return DividendAccrual{}, fmt.Errorf("dividend for %s has invalid ex-date %s", ticker, exDate)
	}
	if !payDate.IsZero() && !payDate.IsValid() {
		return DividendAccrual{}, fmt.Errorf("dividend for %s has invalid pay date %s", ticker, payDate)
	}
	return DividendAccrual{
		ExDate:   exDate,
		PayDate:  payDate,
		Ticker:   ticker,
		Quantity: quantity,
		PerShare: perShare,
		Total:    total,
		Currency: currency,
		Tax:      tax,
	}, nil
}

// Position maps tickers to signed held quantities as of a point in time.
type Position map[string]decimal.Decimal

// Quantity returns the held quantity for the ticker, zero if absent.
func (p Position) Quantity(ticker string) decimal.Decimal {
	return p[ticker]
}

// CashFlow is the aggregate cash flow of trades and dividends in a date range.
type CashFlow struct {
	// Deals is the sum of quantity*price - fee over trades in the range.
	Deals decimal.Decimal `json:"deals"`
	// Dividends is the sum of dividend totals with ex-date in the range.
	Dividends decimal.Decimal `json:"dividends"`
}
