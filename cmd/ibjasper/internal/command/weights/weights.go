// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package weights implements the "weights" command.
package weights

import (
	"context"
	"errors"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/ibjaspercmd"
	"github.com/bufdev/ibjasper/internal/pkg/cliio"
	"github.com/spf13/pflag"
)

// NewCommand returns a new weights command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Compare current portfolio weights against targets",
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
	// Dir is the base directory containing ibjasper.yaml and activity statements.
	Dir string
	// Format is the output format (table, csv, json).
	Format string
	// Cached skips downloading and uses only cached data.
	Cached bool
	// Portfolio is the portfolio name, or empty for all portfolios.
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
	portfolios, err := workspace.Portfolios(flags.Portfolio)
	if err != nil {
		return err
	}
	writer := container.Stdout()
	for i, portfolio := range portfolios {
		if i > 0 {
			if err := ibjaspercmd.WriteBlankLine(writer, format); err != nil {
				return err
			}
		}
		if err := ibjaspercmd.WriteWeights(ctx, container, workspace, portfolio, format); err != nil {
			return err
		}
	}
	return nil
}
