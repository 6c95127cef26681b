// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibkractivitycsv parses IBKR Activity Statement CSV files.
//
// Activity Statement CSVs are multi-section files where each row starts with
// a section name and row type (Header, Data, SubTotal, Total). Different sections
// have different column layouts, and layouts differ between statement versions
// (for example, multi-account statements add an Account column), so columns are
// resolved by header name rather than position. This parser extracts trades,
// dividend accrual changes, and deposits and withdrawals.
//
// Account Information sections are intentionally skipped to avoid reading
// identifying information like account numbers.
package ibkractivitycsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bufdev/ibjasper/internal/standard/xos"
)

const (
	sectionTrades                   = "Trades"
	sectionChangeInDividendAccruals = "Change in Dividend Accruals"
	sectionDepositsWithdrawals      = "Deposits & Withdrawals"
	sectionAccountInformation       = "Account Information"
)

// ActivityStatement contains all parsed sections from a single Activity Statement CSV file.
type ActivityStatement struct {
	// FilePath is the path the statement was read from, empty if parsed from a reader.
	FilePath string
	// Trades contains trade executions of all asset categories.
	Trades []Trade
	// DividendAccruals contains changes in dividend accruals.
	DividendAccruals []DividendAccrual
	// DepositsWithdrawals contains cash deposits and withdrawals.
	DepositsWithdrawals []DepositWithdrawal
}

// Trade represents a trade execution.
type Trade struct {
	AssetCategory string
	CurrencyCode  string
	Symbol        string
	// DateTime is the wall-clock execution time, in UTC.
	DateTime time.Time
	// Quantity is positive for buys, negative for sells.
	Quantity   string
	TradePrice string
	// Commission is the commission and fees, negative when charged. Empty is zero.
	Commission string
	Code       string
}

// DividendAccrual represents a change in a dividend accrual.
type DividendAccrual struct {
	AssetCategory string
	CurrencyCode  string
	Symbol        string
	Date          time.Time
	ExDate        time.Time
	// PayDate is zero if the statement reports it as "-".
	PayDate     time.Time
	Quantity    string
	Tax         string
	GrossRate   string
	GrossAmount string
	// Code is "Po" for a posted accrual and "Re" for a reversal.
	Code string
}

// DepositWithdrawal represents a cash deposit (positive) or withdrawal (negative).
type DepositWithdrawal struct {
	CurrencyCode string
	SettleDate   time.Time
	Description  string
	Amount       string
}

// ParseDirectory reads all *.csv files recursively from the directory and parses them.
//
// Files are parsed in lexical path order.
func ParseDirectory(dirPath string) ([]*ActivityStatement, error) {
	filePaths, err := xos.FilePathsWithSuffix(dirPath, ".csv")
	if err != nil {
		return nil, err
	}
	statements := make([]*ActivityStatement, 0, len(filePaths))
	for _, filePath := range filePaths {
		statement, err := ParseFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filePath, err)
		}
		statements = append(statements, statement)
	}
	return statements, nil
}

// ParseFile parses a single IBKR Activity Statement CSV file.
func ParseFile(filePath string) (*ActivityStatement, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	statement, err := Parse(file)
	if err != nil {
		return nil, err
	}
	statement.FilePath = filePath
	return statement, nil
}

// Parse parses an IBKR Activity Statement CSV from the reader.
func Parse(reader io.Reader) (*ActivityStatement, error) {
	csvReader := csv.NewReader(reader)
	// Allow variable number of fields per record (sections have different column counts).
	csvReader.FieldsPerRecord = -1
	// Don't treat leading spaces as significant.
	csvReader.TrimLeadingSpace = true
	// Statements exported on some platforms have stray quotes in descriptions.
	csvReader.LazyQuotes = true

	statement := &ActivityStatement{}
	// Track the current header for each section to map column names to indices.
	sectionHeaders := make(map[string]header)

	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		// Exports may start with a UTF-8 byte order mark.
		sectionName := strings.TrimPrefix(record[0], "\ufeff")
		rowType := record[1]

		// Skip Account Information entirely, it contains identifying info.
		if sectionName == sectionAccountInformation {
			continue
		}
		// Track headers for each section. A section may be repeated with a
		// different layout, in which case the latest header applies.
		if rowType == "Header" {
			sectionHeaders[sectionName] = newHeader(record)
			continue
		}
		// Only process Data rows (skip SubTotal, Total, Notes).
		if rowType != "Data" {
			continue
		}
		switch sectionName {
		case sectionTrades, sectionChangeInDividendAccruals, sectionDepositsWithdrawals:
		default:
			continue
		}
		header, ok := sectionHeaders[sectionName]
		if !ok {
			return nil, fmt.Errorf("%s data row before header", sectionName)
		}
		row := row{header: header, record: record}
		switch sectionName {
		case sectionTrades:
			if err := parseTrade(row, statement); err != nil {
				return nil, fmt.Errorf("parsing trade: %w", err)
			}
		case sectionChangeInDividendAccruals:
			if err := parseDividendAccrual(row, statement); err != nil {
				return nil, fmt.Errorf("parsing dividend accrual: %w", err)
			}
		case sectionDepositsWithdrawals:
			if err := parseDepositWithdrawal(row, statement); err != nil {
				return nil, fmt.Errorf("parsing deposit or withdrawal: %w", err)
			}
		}
	}
	return statement, nil
}

// *** PRIVATE ***

// header maps column names to indices within a record.
type header map[string]int

func newHeader(record []string) header {
	h := make(header, len(record))
	for i, name := range record {
		// First occurrence wins, some sections repeat blank column names.
		if _, ok := h[name]; !ok {
			h[name] = i
		}
	}
	return h
}

type row struct {
	header header
	record []string
}

// get returns the value of the named column, or empty if the column is absent.
func (r row) get(name string) string {
	i, ok := r.header[name]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// isTotal returns true for the per-currency total rows embedded as Data rows.
func (r row) isTotal() bool {
	return strings.HasPrefix(r.get("Currency"), "Total") ||
		strings.HasPrefix(r.get("Asset Category"), "Total")
}

// parseTrade parses a Trades,Data row. Only execution rows are processed,
// which newer statements discriminate as "Order" and older ones as "Trade".
func parseTrade(row row, statement *ActivityStatement) error {
	switch row.get("DataDiscriminator") {
	case "Order", "Trade":
	default:
		return nil
	}
	symbol := row.get("Symbol")
	dateTimeString := row.get("Date/Time")
	dateTime, err := parseDateTime(dateTimeString)
	if err != nil {
		return fmt.Errorf("parsing date %q for %s: %w", dateTimeString, symbol, err)
	}
	statement.Trades = append(statement.Trades, Trade{
		AssetCategory: row.get("Asset Category"),
		CurrencyCode:  row.get("Currency"),
		Symbol:        symbol,
		DateTime:      dateTime,
		Quantity:      cleanNumber(row.get("Quantity")),
		TradePrice:    cleanNumber(row.get("T. Price")),
		Commission:    cleanNumber(commission(row)),
		Code:          row.get("Code"),
	})
	return nil
}

// parseDividendAccrual parses a Change in Dividend Accruals,Data row. Skips Total rows.
func parseDividendAccrual(row row, statement *ActivityStatement) error {
	if row.isTotal() {
		return nil
	}
	symbol := row.get("Symbol")
	date, err := parseOptionalDate(row.get("Date"))
	if err != nil {
		return fmt.Errorf("parsing date for %s: %w", symbol, err)
	}
	exDate, err := parseDate(row.get("Ex Date"))
	if err != nil {
		return fmt.Errorf("parsing ex-date for %s: %w", symbol, err)
	}
	payDate, err := parseOptionalDate(row.get("Pay Date"))
	if err != nil {
		return fmt.Errorf("parsing pay date for %s: %w", symbol, err)
	}
	statement.DividendAccruals = append(statement.DividendAccruals, DividendAccrual{
		AssetCategory: row.get("Asset Category"),
		CurrencyCode:  row.get("Currency"),
		Symbol:        symbol,
		Date:          date,
		ExDate:        exDate,
		PayDate:       payDate,
		Quantity:      cleanNumber(row.get("Quantity")),
		Tax:           cleanNumber(row.get("Tax")),
		GrossRate:     cleanNumber(row.get("Gross Rate")),
		GrossAmount:   cleanNumber(row.get("Gross Amount")),
		Code:          row.get("Code"),
	})
	return nil
}

// parseDepositWithdrawal parses a Deposits & Withdrawals,Data row. Skips Total rows.
func parseDepositWithdrawal(row row, statement *ActivityStatement) error {
	if row.isTotal() {
		return nil
	}
	settleDate, err := parseDate(row.get("Settle Date"))
	if err != nil {
		return err
	}
	statement.DepositsWithdrawals = append(statement.DepositsWithdrawals, DepositWithdrawal{
		CurrencyCode: row.get("Currency"),
		SettleDate:   settleDate,
		Description:  row.get("Description"),
		Amount:       cleanNumber(row.get("Amount")),
	})
	return nil
}

// commission returns the commission column, which is named "Comm/Fee" for
// stocks and "Comm in USD" (or another base currency) for forex.
func commission(row row) string {
	if value := row.get("Comm/Fee"); value != "" {
		return value
	}
	for name, i := range row.header {
		if strings.HasPrefix(name, "Comm in ") && i < len(row.record) {
			return strings.TrimSpace(row.record[i])
		}
	}
	return ""
}

// parseDateTime parses an IBKR date/time string in "2026-01-02, 09:30:00" format.
//
// Older statements omit the comma.
func parseDateTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", strings.ReplaceAll(s, ",", ""))
}

// parseDate parses an IBKR date string in "2026-01-02" format.
func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// parseOptionalDate parses a date, returning the zero time for "-" or empty.
func parseOptionalDate(s string) (time.Time, error) {
	if s == "" || s == "-" {
		return time.Time{}, nil
	}
	return parseDate(s)
}

// cleanNumber strips commas from numeric strings (e.g., "-2,290" → "-2290").
func cleanNumber(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
