// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"
)

// rootCommand builds the quackgated command tree: serve and version.
func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quackgated",
		Short:         "Asynchronous gateway in front of an embedded analytical SQL engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(versionCommand())
	return cmd
}
