// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cliFlags holds values bound to persistent and per-command flags.
type cliFlags struct {
	logLevel     string
	settingsFile string

	// convert
	indent int
	ascii  bool
	flow   bool
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state from leaking between tests.
func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Project scaffold with encoded file I/O and structured logging",
		Long: `Scaffold bundles encoded file helpers, a structured logging pipeline
and log export to files or an OpenTelemetry collector.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Hello from Scaffold!")
			return err
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"minimum log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&flags.settingsFile, "settings", "",
		"optional YAML settings file; environment variables take precedence")

	// --- File conversion ---
	convertCmd := &cobra.Command{
		Use:   "convert SRC DST",
		Short: "Convert a file between JSON and YAML based on file extensions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, flags, args[0], args[1])
		},
	}
	convertCmd.Flags().IntVar(&flags.indent, "indent", 0,
		"indentation width (default 4 for JSON, 2 for YAML)")
	convertCmd.Flags().BoolVar(&flags.ascii, "ascii", false, "escape non-ASCII characters in JSON output")
	convertCmd.Flags().BoolVar(&flags.flow, "flow", false, "write YAML collections in flow style")

	// --- Logging ---
	logCmd := &cobra.Command{
		Use:   "log MESSAGE [key=value...]",
		Short: "Emit one log event through the configured pipeline and exporters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, flags, args[0], args[1:])
		},
	}

	rootCmd.AddCommand(convertCmd, logCmd)
	return rootCmd
}
