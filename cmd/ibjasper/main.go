// Copyright 2026 Peter Edge
//
// All rights reserved.

package main

import (
	"context"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/command/config"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/command/download"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/command/report"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/command/status"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/command/tlh"
	"github.com/bufdev/ibjasper/cmd/ibjasper/internal/command/weights"
)

func main() {
	appcmd.Main(context.Background(), newRootCommand("ibjasper"))
}

// newRootCommand creates the root ibjasper command with all sub-commands.
func newRootCommand(name string) *appcmd.Command {
	builder := appext.NewBuilder(name)
	return &appcmd.Command{
		Use:                 name,
		Short:               "Attribute returns of Interactive Brokers portfolios and find tax-loss harvesting lots",
		BindPersistentFlags: builder.BindRoot,
		SubCommands: []*appcmd.Command{
			config.NewCommand("config", builder),
			download.NewCommand("download", builder),
			status.NewCommand("status", builder),
			report.NewCommand("report", builder),
			weights.NewCommand("weights", builder),
			tlh.NewCommand("tlh", builder),
		},
	}
}
