// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibjaspercmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperconfig"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperreport"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperreturn"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
)

// WriteMonthlyReport writes the monthly report of the portfolio.
func WriteMonthlyReport(
	ctx context.Context,
	container appext.Container,
	workspace *Workspace,
	portfolio *ibjasperconfig.PortfolioConfig,
	format cliio.Format,
) error {
	ledger := workspace.Ledger.Restrict(portfolio.Tickers)
	inception, err := ledger.Inception()
	if err != nil {
		return fmt.Errorf("portfolio %q: %w", portfolio.Name, err)
	}
	prices, err := workspace.PriceTable(ctx, portfolio.Tickers)
	if err != nil {
		return err
	}
	valuator := ibjaspermarket.NewValuator(prices)
	engine := ibjasperreturn.NewEngine(
		ledger,
		valuator,
		portfolio.Tickers,
		ibjasperreturn.EngineWithLogger(container.Logger()),
	)
	builder := ibjasperreport.NewBuilder(ledger, valuator, engine, portfolio.Tickers)
	var rows []ibjasperreport.Row
	for row, err := range builder.Rows(inception) {
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	writer := container.Stdout()
	switch format {
	case cliio.FormatTable:
		tableRows := make([][]string, 0, len(rows))
		for _, row := range rows {
			tableRows = append(tableRows, ibjasperreport.RowToTableRow(row, portfolio.Tickers, portfolio.Currency))
		}
		if _, err := fmt.Fprintf(writer, "%s\n\n", portfolio.Name); err != nil {
			return err
		}
		return cliio.WriteTable(
			writer,
			cliio.Table{
				Headers: ibjasperreport.Headers(portfolio.Tickers),
				Rows:    tableRows,
			},
		)
	case cliio.FormatCSV:
		records := make([][]string, 0, len(rows)+1)
		records = append(records, ibjasperreport.Headers(portfolio.Tickers))
		for _, row := range rows {
			records = append(records, ibjasperreport.RowToRow(row, portfolio.Tickers))
		}
		return cliio.WriteCSVRecords(writer, records)
	case cliio.FormatJSON:
		dataRows := make([]ibjasperreport.Row, 0, len(rows))
		for _, row := range rows {
			if !row.Separator {
				dataRows = append(dataRows, row)
			}
		}
		return cliio.WriteJSON(writer, dataRows...)
	default:
		return appcmd.NewInvalidArgumentErrorf("unsupported format: %s", format)
	}
}

// WriteWeights writes the current against target weights of the portfolio.
func WriteWeights(
	ctx context.Context,
	container appext.Container,
	workspace *Workspace,
	portfolio *ibjasperconfig.PortfolioConfig,
	format cliio.Format,
) error {
	prices, err := workspace.PriceTable(ctx, portfolio.Tickers)
	if err != nil {
		return err
	}
	weights, err := ibjasperreport.CurrentWeights(
		workspace.Ledger.Restrict(portfolio.Tickers),
		prices,
		portfolio.TargetPercents,
		portfolio.TargetValue,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	writer := container.Stdout()
	switch format {
	case cliio.FormatTable:
		tableRows := make([][]string, 0, len(weights.Rows))
		for _, row := range weights.Rows {
			tableRows = append(tableRows, ibjasperreport.WeightRowToTableRow(row, portfolio.Currency))
		}
		return cliio.WriteTable(
			writer,
			cliio.Table{
				Headers: ibjasperreport.WeightHeaders(),
				Rows:    tableRows,
				Totals:  ibjasperreport.WeightTotalsRow(weights, portfolio.Currency),
			},
		)
	case cliio.FormatCSV:
		records := make([][]string, 0, len(weights.Rows)+1)
		records = append(records, ibjasperreport.WeightHeaders())
		for _, row := range weights.Rows {
			records = append(records, ibjasperreport.WeightRowToRow(row))
		}
		return cliio.WriteCSVRecords(writer, records)
	case cliio.FormatJSON:
		return cliio.WriteJSON(writer, weights)
	default:
		return appcmd.NewInvalidArgumentErrorf("unsupported format: %s", format)
	}
}

// WriteBlankLine writes an empty line between sections of table output.
func WriteBlankLine(writer io.Writer, format cliio.Format) error {
	if format != cliio.FormatTable {
		return nil
	}
	_, err := fmt.Fprintln(writer)
	return err
}
