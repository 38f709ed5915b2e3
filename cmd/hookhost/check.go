// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/logging"
	"github.com/hookhost/hookhost/internal/plugin"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	var (
		mode    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "check <script>...",
		Short: "Load scripts in a scratch host and report problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := execctx.ParseMode(mode)
			if err != nil {
				return err
			}

			var sink io.Writer = io.Discard
			if verbose {
				sink = cmd.ErrOrStderr()
			}
			logger := logging.Setup("hookhost", version, "text", slog.LevelDebug, sink)

			var failed error
			for _, path := range args {
				report, err := plugin.Check(cmd.Context(), path, m, logger)
				if err != nil {
					cmd.Printf("FAIL %s: %s\n", path, describe(err))
					failed = err
					continue
				}
				cmd.Printf("ok   %s (%s): %s\n", path, report.Name, strings.Join(report.Events, ", "))
				for _, name := range report.Unknown {
					cmd.Printf("     warning: %s is not a known event\n", name)
				}
			}
			return failed
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(execctx.ModeShared), "execution mode: shared or isolated")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show script log output")
	return cmd
}

// describe renders err with its code for the check report.
func describe(err error) string {
	msg := err.Error()
	if code := errutil.Code(err); code != "" {
		msg = code + ": " + plugin.FormatSchemaError(err)
	}
	return msg
}
