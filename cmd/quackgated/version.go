// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/quackgate/quackgate/internal/buildinfo"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the quackgated version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(buildinfo.String())
			return nil
		},
	}
}
