// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tlh implements the "tlh" command.
package tlh

import (
	"context"
	"errors"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/ibjaspercmd"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspertlh"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
	"github.com/spf13/pflag"
)

// NewCommand returns a new tlh command that lists lots worth selling for a tax loss.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "List held lots with an unrealized loss in RUB, largest loss first",
		Args:  appcmd.NoArgs,
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags: flags.Bind,
	}
}

type flags struct {
	Dir    string
	Format string
	Cached bool
	// Portfolio restricts the lots to the tickers of one portfolio.
	Portfolio string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	ibjaspercmd.BindDir(flagSet, &f.Dir)
	ibjaspercmd.BindFormat(flagSet, &f.Format)
	ibjaspercmd.BindCached(flagSet, &f.Cached)
	ibjaspercmd.BindPortfolio(flagSet, &f.Portfolio)
}

func run(ctx context.Context, container appext.Container, flags *flags) (retErr error) {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	workspace, err := ibjaspercmd.OpenWorkspace(ctx, container, flags.Dir, flags.Cached)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, workspace.Close())
	}()
	tickers := workspace.Ledger.Tickers()
	if flags.Portfolio != "" {
		portfolios, err := workspace.Portfolios(flags.Portfolio)
		if err != nil {
			return err
		}
		tickers = portfolios[0].Tickers
	}
	prices, err := workspace.PriceTable(ctx, tickers)
	if err != nil {
		return err
	}
	fxTable, err := workspace.FxTable(ctx)
	if err != nil {
		return err
	}
	lots, err := ibjaspertlh.SelectLots(workspace.Ledger, tickers, prices.LatestPrices(tickers), fxTable)
	if err != nil {
		return err
	}
	writer := container.Stdout()
	switch format {
	case cliio.FormatJSON:
		return cliio.WriteJSON(writer, lots...)
	case cliio.FormatCSV:
		records := make([][]string, 0, len(lots)+1)
		records = append(records, ibjaspertlh.Headers())
		for _, lot := range lots {
			records = append(records, ibjaspertlh.LotToRow(lot))
		}
		return cliio.WriteCSVRecords(writer, records)
	default:
		rows := make([][]string, 0, len(lots))
		for _, lot := range lots {
			rows = append(rows, ibjaspertlh.LotToTableRow(lot))
		}
		return cliio.WriteTable(writer, cliio.Table{
			Headers: ibjaspertlh.Headers(),
			Rows:    rows,
			Totals:  ibjaspertlh.TotalsRow(lots),
		})
	}
}
