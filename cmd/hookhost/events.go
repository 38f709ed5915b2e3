// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hookhost/hookhost/internal/event"
)

// NewEventsCmd creates the events subcommand.
func NewEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the events scripts can hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT\tFORMAT\tARGUMENTS")
			for _, name := range event.Names() {
				spec, _ := event.Lookup(name)
				fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, spec.Format, strings.Join(spec.Args, ", "))
			}
			return w.Flush()
		},
	}
}
