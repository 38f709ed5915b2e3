// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the hookhost CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hookhost",
		Short: "hookhost - Lua script host for hub events",
		Long: `hookhost loads Lua scripts that hook hub events, dispatches
events to them in priority order, and exposes an operator command
interface for inspecting and toggling them.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewEventsCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
