// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package download implements the "download" command.
package download

import (
	"context"
	"errors"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/ibjaspercmd"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
	"github.com/spf13/pflag"
)

// NewCommand returns a new download command that fills the market data cache.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Download prices, splits, and RUB rates for all traded tickers",
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
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	ibjaspercmd.BindDir(flagSet, &f.Dir)
	ibjaspercmd.BindFormat(flagSet, &f.Format)
}

func run(ctx context.Context, container appext.Container, flags *flags) (retErr error) {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	workspace, err := ibjaspercmd.OpenWorkspace(ctx, container, flags.Dir, false)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, workspace.Close())
	}()
	tickers := workspace.Ledger.Tickers()
	tickers = append(tickers, workspace.Config.Tickers()...)
	if err := workspace.Downloader.Download(ctx, tickers, workspace.Config.FxCurrencies, workspace.Start, workspace.End); err != nil {
		return err
	}
	container.Logger().Info("download complete", "start", workspace.Start.String(), "end", workspace.End.String())
	coverages, err := workspace.Coverages(ctx)
	if err != nil {
		return err
	}
	headers := []string{"KIND", "KEY", "START", "END", "FETCHED"}
	rows := make([][]string, 0, len(coverages))
	for _, coverage := range coverages {
		rows = append(rows, []string{
			string(coverage.Kind),
			coverage.Key,
			coverage.Start.String(),
			coverage.End.String(),
			coverage.FetchedAt.Local().Format(time.DateTime),
		})
	}
	writer := container.Stdout()
	switch format {
	case cliio.FormatTable:
		return cliio.WriteTable(writer, cliio.Table{Headers: headers, Rows: rows})
	case cliio.FormatCSV:
		return cliio.WriteCSVRecords(writer, append([][]string{headers}, rows...))
	case cliio.FormatJSON:
		return cliio.WriteJSON(writer, coverages...)
	default:
		return appcmd.NewInvalidArgumentErrorf("unsupported format: %s", format)
	}
}
