// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package cliio provides output formatting for CLI commands (table, CSV, JSON).
package cliio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Format represents the output format for CLI commands.
type Format string

const (
	// FormatTable is the default table output format.
	FormatTable Format = "table"
	// FormatCSV is the CSV output format.
	FormatCSV Format = "csv"
	// FormatJSON is the JSON output format.
	FormatJSON Format = "json"
)

// ParseFormat parses a string into a Format, returning an error for unknown formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q, must be one of: table, csv, json", s)
	}
}

// Table is tabular output for WriteTable.
type Table struct {
	// Headers are the column headers.
	Headers []string
	// Rows are the data rows. A nil row is written as a blank separator line.
	Rows [][]string
	// Totals is an optional totals row, written after a blank line.
	Totals []string
}

// WriteTable writes the table to the writer using tabwriter for aligned columns.
//
// Separators and totals go through the same tabwriter so that all columns align.
func WriteTable(writer io.Writer, table Table) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	// Tabs on blank lines preserve column alignment.
	blankRow := make([]string, len(table.Headers))
	lines := make([][]string, 0, len(table.Rows)+3)
	lines = append(lines, table.Headers)
	for _, row := range table.Rows {
		if row == nil {
			row = blankRow
		}
		lines = append(lines, row)
	}
	if len(table.Totals) > 0 {
		lines = append(lines, blankRow, table.Totals)
	}
	for _, line := range lines {
		// AlignRight requires a trailing tab to terminate the last cell.
		if _, err := fmt.Fprintln(tw, strings.Join(line, "\t")+"\t"); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteCSVRecords writes CSV records to the writer.
//
// Nil records are skipped, so that table separators do not leak into CSV.
func WriteCSVRecords(writer io.Writer, records [][]string) error {
	csvWriter := csv.NewWriter(writer)
	for _, record := range records {
		if record == nil {
			continue
		}
		if err := csvWriter.Write(record); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteJSON writes objects as JSON with newlines between each object.
func WriteJSON[O any](writer io.Writer, objects ...O) error {
	encoder := json.NewEncoder(writer)
	for _, object := range objects {
		if err := encoder.Encode(object); err != nil {
			return err
		}
	}
	return nil
}

// FormatMoney formats the amount with the symbol, grouping, and number of
// fraction digits of the currency, rounding half away from zero.
//
// Unknown currency codes are formatted with two fraction digits and the code as suffix.
func FormatMoney(amount decimal.Decimal, currencyCode string) string {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		return amount.StringFixed(2) + " " + currencyCode
	}
	minorUnits := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return currency.Formatter().Format(minorUnits)
}

// FormatDecimal formats the value with a fixed number of fraction digits.
func FormatDecimal(value decimal.Decimal, places int32) string {
	return value.StringFixed(places)
}

// FormatPercent formats a fraction (0.0123) as a percentage ("1.23%").
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", 100*fraction)
}
