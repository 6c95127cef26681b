// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjaspertlh selects still-held purchase lots that are trading below
// their purchase price, for tax-loss harvesting.
//
// Sells are matched against buys first-in-first-out, so a lot is only
// reported for the shares of it that remain held. Losses are compared in RUB.
package ibjaspertlh

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// ErrAllocationMismatch is returned when sells cannot be matched against buys.
//
// This indicates corrupted or incomplete trade data and is not recoverable.
var ErrAllocationMismatch = errors.New("tax lot allocation mismatch")

// Lot is a held purchase lot with an unrealized loss.
type Lot struct {
	// Ticker is the symbol of the lot.
	Ticker string `json:"ticker"`
	// TradeDate is the date the lot was bought.
	TradeDate xtime.Date `json:"trade_date"`
	// Quantity is the part of the lot still held after FIFO matching of sells.
	Quantity decimal.Decimal `json:"quantity"`
	// BuyPrice is the per-share purchase price in Currency.
	BuyPrice decimal.Decimal `json:"buy_price"`
	// CurrentPrice is the latest per-share price in Currency.
	CurrentPrice decimal.Decimal `json:"current_price"`
	// Currency is the trade currency.
	Currency string `json:"currency"`
	// Diff is min(0, CurrentPrice-BuyPrice).
	Diff decimal.Decimal `json:"diff"`
	// Rate is the RUB rate of Currency on TradeDate.
	Rate decimal.Decimal `json:"rate"`
	// BuyPriceRUB is BuyPrice converted at Rate.
	BuyPriceRUB decimal.Decimal `json:"buy_price_rub"`
	// CurrentPriceRUB is CurrentPrice converted at Rate.
	CurrentPriceRUB decimal.Decimal `json:"current_price_rub"`
	// LossRUB is Quantity*min(0, CurrentPriceRUB-BuyPriceRUB).
	LossRUB decimal.Decimal `json:"loss_rub"`
}

// SelectLots returns the held lots of the tickers that have an unrealized
// loss, sorted by LossRUB ascending so that the largest loss comes first.
//
// Tickers whose position is fully closed, or where no buy is above the current
// price, are skipped. currentPrices must contain every other ticker.
func SelectLots(
	ledger *ibjasperledger.Ledger,
	tickers []string,
	currentPrices map[string]decimal.Decimal,
	fxTable *ibjaspermarket.FxTable,
) ([]Lot, error) {
	var lots []Lot
	for _, ticker := range tickers {
		tickerLots, err := selectTickerLots(ledger.TradesFor(ticker), ticker, currentPrices, fxTable)
		if err != nil {
			return nil, err
		}
		lots = append(lots, tickerLots...)
	}
	slices.SortStableFunc(lots, func(a Lot, b Lot) int {
		return a.LossRUB.Cmp(b.LossRUB)
	})
	return lots, nil
}

// RemainingLots matches the sells of a single ticker against its buys FIFO.
//
// Trades must be in chronological order. The result has one entry per buy, in
// the same order, with Quantity set to the part of the buy still held, which
// may be zero. Returns ErrAllocationMismatch if sells exceed buys.
func RemainingLots(trades []ibjasperledger.Trade) ([]ibjasperledger.Trade, error) {
	var buys []ibjasperledger.Trade
	buysTotal := decimal.Zero
	sellsTotal := decimal.Zero
	for _, trade := range trades {
		if trade.IsBuy() {
			buys = append(buys, trade)
			buysTotal = buysTotal.Add(trade.Quantity)
		} else {
			sellsTotal = sellsTotal.Add(trade.Quantity)
		}
	}
	// Remaining sell quantity to consume, as a positive number.
	remaining := sellsTotal.Neg()
	for i := range buys {
		if !remaining.IsPositive() {
			break
		}
		if buys[i].Quantity.LessThan(remaining) {
			// The whole lot was sold.
			remaining = remaining.Sub(buys[i].Quantity)
			buys[i].Quantity = decimal.Zero
		} else {
			// The lot was partially sold, and covers all remaining sells.
			buys[i].Quantity = buys[i].Quantity.Sub(remaining)
			remaining = decimal.Zero
		}
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: %s unmatched sell quantity", ErrAllocationMismatch, remaining)
	}
	// Leftover plus consumed must equal bought.
	leftover := decimal.Zero
	for _, buy := range buys {
		leftover = leftover.Add(buy.Quantity)
	}
	if !leftover.Sub(sellsTotal).Equal(buysTotal) {
		return nil, fmt.Errorf("%w: leftover %s and sold %s do not add up to bought %s", ErrAllocationMismatch, leftover, sellsTotal.Neg(), buysTotal)
	}
	return buys, nil
}

// TotalLossRUB returns the sum of LossRUB over the lots.
func TotalLossRUB(lots []Lot) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.LossRUB)
	}
	return total
}

// Headers returns the column headers for table/CSV output.
func Headers() []string {
	return []string{
		"TICKER",
		"DATE",
		"QUANTITY",
		"BUY",
		"CURRENT",
		"DIFF",
		"RATE",
		"BUY RUB",
		"CURRENT RUB",
		"LOSS RUB",
	}
}

// LotToTableRow converts a Lot to a string slice for table output.
func LotToTableRow(lot Lot) []string {
	return []string{
		lot.Ticker,
		lot.TradeDate.String(),
		lot.Quantity.String(),
		cliio.FormatMoney(lot.BuyPrice, lot.Currency),
		cliio.FormatMoney(lot.CurrentPrice, lot.Currency),
		cliio.FormatMoney(lot.Diff, lot.Currency),
		cliio.FormatDecimal(lot.Rate, 4),
		cliio.FormatMoney(lot.BuyPriceRUB, ibjaspermarket.BaseCurrency),
		cliio.FormatMoney(lot.CurrentPriceRUB, ibjaspermarket.BaseCurrency),
		cliio.FormatMoney(lot.LossRUB, ibjaspermarket.BaseCurrency),
	}
}

// LotToRow converts a Lot to a string slice for CSV output.
func LotToRow(lot Lot) []string {
	return []string{
		lot.Ticker,
		lot.TradeDate.String(),
		lot.Quantity.String(),
		lot.BuyPrice.String(),
		lot.CurrentPrice.String(),
		lot.Diff.String(),
		lot.Rate.String(),
		cliio.FormatDecimal(lot.BuyPriceRUB, 2),
		cliio.FormatDecimal(lot.CurrentPriceRUB, 2),
		cliio.FormatDecimal(lot.LossRUB, 2),
	}
}

// TotalsRow returns the totals row for table output.
func TotalsRow(lots []Lot) []string {
	row := make([]string, len(Headers()))
	row[0] = "TOTAL"
	row[len(row)-1] = cliio.FormatMoney(TotalLossRUB(lots), ibjaspermarket.BaseCurrency)
	return row
}

// *** PRIVATE ***

func selectTickerLots(
	trades []ibjasperledger.Trade,
	ticker string,
	currentPrices map[string]decimal.Decimal,
	fxTable *ibjaspermarket.FxTable,
) ([]Lot, error) {
	netQuantity := decimal.Zero
	for _, trade := range trades {
		netQuantity = netQuantity.Add(trade.Quantity)
	}
	// Fully closed positions have nothing to harvest.
	if netQuantity.IsZero() {
		return nil, nil
	}
	currentPrice, ok := currentPrices[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: no current price for %s", ibjaspermarket.ErrPriceUnavailable, ticker)
	}
	if !slices.ContainsFunc(trades, func(trade ibjasperledger.Trade) bool {
		return trade.IsBuy() && trade.Price.GreaterThan(currentPrice)
	}) {
		return nil, nil
	}
	remainingLots, err := RemainingLots(trades)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	var lots []Lot
	for _, remainingLot := range remainingLots {
		diff := decimal.Min(decimal.Zero, currentPrice.Sub(remainingLot.Price))
		if !remainingLot.Quantity.IsPositive() || !diff.IsNegative() {
			continue
		}
		tradeDate := remainingLot.Date()
		rate, err := fxTable.RateOn(remainingLot.Currency, tradeDate)
		if err != nil {
			return nil, fmt.Errorf("%s lot on %s: %w", ticker, tradeDate, err)
		}
		buyPriceRUB := remainingLot.Price.Mul(rate)
		currentPriceRUB := currentPrice.Mul(rate)
		lots = append(
			lots,
			Lot{
				Ticker:          ticker,
				TradeDate:       tradeDate,
				Quantity:        remainingLot.Quantity,
				BuyPrice:        remainingLot.Price,
				CurrentPrice:    currentPrice,
				Currency:        remainingLot.Currency,
				Diff:            diff,
				Rate:            rate,
				BuyPriceRUB:     buyPriceRUB,
				CurrentPriceRUB: currentPriceRUB,
				LossRUB:         remainingLot.Quantity.Mul(decimal.Min(decimal.Zero, currentPriceRUB.Sub(buyPriceRUB))),
			},
		)
	}
	return lots, nil
}
