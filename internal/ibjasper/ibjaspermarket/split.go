// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjaspermarket

import (
	"fmt"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// Split is a stock split event. A 4-for-1 split has a Ratio of 4.
type Split struct {
	Date   xtime.Date      `json:"date"`
	Ticker string          `json:"ticker"`
	Ratio  decimal.Decimal `json:"ratio"`
}

// NewSplit returns a validated Split.
func NewSplit(date xtime.Date, ticker string, ratio decimal.Decimal) (Split, error) {
	if ticker == "" {
		return Split{}, fmt.Errorf("split on %s has no ticker", date)
	}
	if !date.IsValid() {
		return Split{}, fmt.Errorf("split for %s has invalid date %s", ticker, date)
	}
	if !ratio.IsPositive() {
		return Split{}, fmt.Errorf("split for %s on %s has non-positive ratio %s", ticker, date, ratio)
	}
	return Split{
		Date:   date,
		Ticker: ticker,
		Ratio:  ratio,
	}, nil
}

// AdjustForSplits restates trades in post-split shares.
//
// Each trade's quantity is multiplied and its price divided by the product of
// the ratios of its ticker's splits dated at or after the trade timestamp.
// The input slice is not modified.
func AdjustForSplits(trades []ibjasperledger.Trade, splits []Split) []ibjasperledger.Trade {
	tickerToSplits := make(map[string][]Split)
	for _, split := range splits {
		tickerToSplits[split.Ticker] = append(tickerToSplits[split.Ticker], split)
	}
	adjusted := make([]ibjasperledger.Trade, len(trades))
	for i, trade := range trades {
		coefficient := decimal.NewFromInt(1)
		for _, split := range tickerToSplits[trade.Ticker] {
			// Splits are effective at the start of their date.
			if !split.Date.Start().Before(trade.Timestamp) {
				coefficient = coefficient.Mul(split.Ratio)
			}
		}
		if !coefficient.Equal(decimal.NewFromInt(1)) {
			trade.Quantity = trade.Quantity.Mul(coefficient)
			trade.Price = trade.Price.Div(coefficient)
		}
		adjusted[i] = trade
	}
	return adjusted
}
