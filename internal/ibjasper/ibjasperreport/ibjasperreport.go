// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperreport builds the monthly portfolio report and the current
// weights table.
package ibjasperreport

import (
	"iter"
	"time"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperreturn"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// Row is a single month of the report.
//
// A Row with Separator set carries no data and marks the end of a year.
type Row struct {
	// Separator is true for the blank row following a December.
	Separator bool `json:"-"`
	// Month is the first day of the month.
	Month xtime.Date `json:"month"`
	// Position is the position at the start of the month.
	Position ibjasperledger.Position `json:"position"`
	// StartValue is the value of Position at the previous close before Month.
	StartValue decimal.Decimal `json:"start_value"`
	// Deals is the trade cash flow within the month.
	Deals decimal.Decimal `json:"deals"`
	// Dividends is the dividend cash flow within the month.
	Dividends decimal.Decimal `json:"dividends"`
	// EndValue is the value at the previous close before the next month.
	EndValue decimal.Decimal `json:"end_value"`
	// Return is the chain-linked return over the month.
	Return float64 `json:"return"`
}

// Builder builds monthly report rows.
type Builder struct {
	ledger   *ibjasperledger.Ledger
	valuator *ibjaspermarket.Valuator
	engine   *ibjasperreturn.Engine
	tickers  []string
	now      func() time.Time
}

// BuilderOption is a functional option for configuring the Builder.
type BuilderOption func(*Builder)

// BuilderWithNow sets the function used to determine the current month.
//
// The default is time.Now.
func BuilderWithNow(now func() time.Time) BuilderOption {
	return func(builder *Builder) {
		builder.now = now
	}
}

// NewBuilder returns a new Builder.
//
// The ledger should already be restricted to the tickers.
func NewBuilder(
	ledger *ibjasperledger.Ledger,
	valuator *ibjaspermarket.Valuator,
	engine *ibjasperreturn.Engine,
	tickers []string,
	options ...BuilderOption,
) *Builder {
	builder := &Builder{
		ledger:   ledger,
		valuator: valuator,
		engine:   engine,
		tickers:  tickers,
		now:      time.Now,
	}
	for _, option := range options {
		option(builder)
	}
	return builder
}

// Rows returns one row per month from the month containing inception through
// the current month, with a separator after each December that is not the
// last row.
//
// The sequence is lazy and may be iterated multiple times. Iteration stops
// after the first error.
func (b *Builder) Rows(inception xtime.Date) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		lastMonth := xtime.TimeToDate(b.now().UTC()).FirstOfMonth()
		for month := inception.FirstOfMonth(); month.EqualOrBefore(lastMonth); month = month.FirstOfNextMonth() {
			row, err := b.row(month)
			if err != nil {
				yield(Row{}, err)
				return
			}
			if !yield(row, nil) {
				return
			}
			if month.Month == time.December && month != lastMonth {
				if !yield(Row{Separator: true}, nil) {
					return
				}
			}
		}
	}
}

// Headers returns the column headers for table/CSV output.
func Headers(tickers []string) []string {
	headers := make([]string, 0, len(tickers)+6)
	headers = append(headers, "MONTH")
	headers = append(headers, tickers...)
	return append(headers, "START", "DEALS", "DIVIDENDS", "END", "RETURN")
}

// RowToTableRow converts a Row to a string slice for table output.
//
// Separator rows become nil, which cliio writes as blank lines.
func RowToTableRow(row Row, tickers []string, currencyCode string) []string {
	if row.Separator {
		return nil
	}
	return rowToStrings(
		row,
		tickers,
		func(value decimal.Decimal) string {
			return cliio.FormatMoney(value, currencyCode)
		},
	)
}

// RowToRow converts a Row to a string slice for CSV output.
func RowToRow(row Row, tickers []string) []string {
	if row.Separator {
		return nil
	}
	return rowToStrings(
		row,
		tickers,
		func(value decimal.Decimal) string {
			return cliio.FormatDecimal(value, 2)
		},
	)
}

// *** PRIVATE ***

func (b *Builder) row(month xtime.Date) (Row, error) {
	nextMonth := month.FirstOfNextMonth()
	position := b.ledger.PositionAt(b.tickers, month.Start())
	startValue, err := b.valuator.ValueOf(position, month)
	if err != nil {
		return Row{}, err
	}
	cashFlow := b.ledger.CashFlow(month, nextMonth)
	endValue, err := b.valuator.ValueOf(b.ledger.PositionAt(b.tickers, nextMonth.Start()), nextMonth)
	if err != nil {
		return Row{}, err
	}
	periodReturn, err := b.engine.PeriodReturn(month, nextMonth)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Month:      month,
		Position:   position,
		StartValue: startValue,
		Deals:      cashFlow.Deals,
		Dividends:  cashFlow.Dividends,
		EndValue:   endValue,
		Return:     periodReturn,
	}, nil
}

func rowToStrings(row Row, tickers []string, formatValue func(decimal.Decimal) string) []string {
	result := make([]string, 0, len(tickers)+6)
	result = append(result, row.Month.String())
	for _, ticker := range tickers {
		result = append(result, row.Position.Quantity(ticker).String())
	}
	return append(
		result,
		formatValue(row.StartValue),
		formatValue(row.Deals),
		formatValue(row.Dividends),
		formatValue(row.EndValue),
		cliio.FormatPercent(row.Return),
	)
}
