// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjasperreport

import (
	"fmt"
	"slices"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// WeightRow compares the current and target weight of a ticker.
type WeightRow struct {
	// Ticker is the symbol.
	Ticker string `json:"ticker"`
	// TargetPercent is the target weight in percent.
	TargetPercent decimal.Decimal `json:"target_percent"`
	// CurrentPercent is the current value as a percent of the reference value.
	CurrentPercent decimal.Decimal `json:"current_percent"`
	// DiffPercent is TargetPercent - CurrentPercent.
	DiffPercent decimal.Decimal `json:"diff_percent"`
	// Price is the latest known price.
	Price decimal.Decimal `json:"price"`
	// TargetValue is TargetPercent of the reference value.
	TargetValue decimal.Decimal `json:"target_value"`
	// CurrentValue is the current value of the position.
	CurrentValue decimal.Decimal `json:"current_value"`
	// LotsToBuy is (TargetValue - CurrentValue) / Price.
	LotsToBuy decimal.Decimal `json:"lots_to_buy"`
}

// Weights is the result of CurrentWeights.
type Weights struct {
	// Rows has one entry per ticker with a nonzero target or current weight, sorted by ticker.
	Rows []WeightRow `json:"rows"`
	// TotalValue is the current value of the whole position.
	TotalValue decimal.Decimal `json:"total_value"`
	// ReferenceValue is the value weights are relative to.
	ReferenceValue decimal.Decimal `json:"reference_value"`
}

// CurrentWeights compares the current position against target weights.
//
// Weights are percentages of targetValue, or of the current total value if
// targetValue is not positive. The position includes all trades before asOf
// and is valued at the previous close.
func CurrentWeights(
	ledger *ibjasperledger.Ledger,
	prices *ibjaspermarket.PriceTable,
	targetPercents map[string]decimal.Decimal,
	targetValue decimal.Decimal,
	asOf time.Time,
) (*Weights, error) {
	tickers := make([]string, 0, len(targetPercents))
	for ticker := range targetPercents {
		tickers = append(tickers, ticker)
	}
	slices.Sort(tickers)
	asOfDate := xtime.TimeToDate(asOf.UTC())
	position := ledger.PositionAt(tickers, asOf)
	valuator := ibjaspermarket.NewValuator(prices)
	tickerToValue := make(map[string]decimal.Decimal, len(tickers))
	totalValue := decimal.Zero
	for _, ticker := range tickers {
		value, err := valuator.ValueOf(ibjasperledger.Position{ticker: position.Quantity(ticker)}, asOfDate)
		if err != nil {
			return nil, err
		}
		tickerToValue[ticker] = value
		totalValue = totalValue.Add(value)
	}
	referenceValue := targetValue
	if !referenceValue.IsPositive() {
		referenceValue = totalValue
	}
	weights := &Weights{
		TotalValue:     totalValue,
		ReferenceValue: referenceValue,
	}
	for _, ticker := range tickers {
		targetPercent := targetPercents[ticker]
		currentValue := tickerToValue[ticker]
		currentPercent := decimal.Zero
		if referenceValue.IsPositive() {
			currentPercent = currentValue.Div(referenceValue).Mul(hundred)
		}
		if targetPercent.IsZero() && currentPercent.IsZero() {
			continue
		}
		latest, ok := prices.Latest(ticker)
		if !ok {
			return nil, fmt.Errorf("%w: no latest price for %s", ibjaspermarket.ErrPriceUnavailable, ticker)
		}
		rowTargetValue := targetPercent.Mul(referenceValue).Div(hundred)
		weights.Rows = append(
			weights.Rows,
			WeightRow{
				Ticker:         ticker,
				TargetPercent:  targetPercent,
				CurrentPercent: currentPercent,
				DiffPercent:    targetPercent.Sub(currentPercent),
				Price:          latest.Price,
				TargetValue:    rowTargetValue,
				CurrentValue:   currentValue,
				LotsToBuy:      rowTargetValue.Sub(currentValue).Div(latest.Price),
			},
		)
	}
	return weights, nil
}

// WeightHeaders returns the column headers for weights table/CSV output.
func WeightHeaders() []string {
	return []string{"TICKER", "TARGET", "CURRENT", "DIFF", "PRICE", "TARGET VALUE", "CURRENT VALUE", "LOTS TO BUY"}
}

// WeightRowToTableRow converts a WeightRow to a string slice for table output.
func WeightRowToTableRow(row WeightRow, currencyCode string) []string {
	return []string{
		row.Ticker,
		row.TargetPercent.StringFixed(0) + "%",
		row.CurrentPercent.StringFixed(1) + "%",
		row.DiffPercent.StringFixed(1) + "%",
		row.Price.StringFixed(2),
		cliio.FormatMoney(row.TargetValue.Round(0), currencyCode),
		cliio.FormatMoney(row.CurrentValue.Round(0), currencyCode),
		row.LotsToBuy.StringFixed(0),
	}
}

// WeightRowToRow converts a WeightRow to a string slice for CSV output.
func WeightRowToRow(row WeightRow) []string {
	return []string{
		row.Ticker,
		row.TargetPercent.String(),
		row.CurrentPercent.StringFixed(4),
		row.DiffPercent.StringFixed(4),
		row.Price.String(),
		row.TargetValue.StringFixed(2),
		row.CurrentValue.StringFixed(2),
		row.LotsToBuy.StringFixed(4),
	}
}

// WeightTotalsRow returns the totals row aligned with WeightHeaders.
func WeightTotalsRow(weights *Weights, currencyCode string) []string {
	totalsRow := make([]string, len(WeightHeaders()))
	totalsRow[0] = "TOTAL"
	totalsRow[5] = cliio.FormatMoney(weights.ReferenceValue.Round(0), currencyCode)
	totalsRow[6] = cliio.FormatMoney(weights.TotalValue.Round(0), currencyCode)
	return totalsRow
}
