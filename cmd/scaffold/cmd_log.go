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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/scaffold/pkg/bootstrap"
	"github.com/AleutianAI/scaffold/pkg/logging"
	"github.com/AleutianAI/scaffold/pkg/settings"
)

// shutdownTimeout bounds the final exporter flush.
const shutdownTimeout = 5 * time.Second

// loadSettings resolves settings from the environment, an optional
// settings file, and the --log-level flag, in increasing priority.
func loadSettings(flags *cliFlags) (settings.Settings, error) {
	var (
		s   settings.Settings
		err error
	)
	if flags.settingsFile != "" {
		s, err = settings.LoadFile(flags.settingsFile)
	} else {
		s, err = settings.Load()
	}
	if err != nil {
		return settings.Settings{}, err
	}
	if flags.logLevel != "" {
		level, err := logging.ParseLevel(flags.logLevel)
		if err != nil {
			return settings.Settings{}, fmt.Errorf("--log-level: %w", err)
		}
		s.LogLevel = level.String()
	}
	return s, nil
}

// parsePairs turns key=value arguments into alternating logger arguments.
func parsePairs(pairs []string) ([]any, error) {
	args := make([]any, 0, len(pairs)*2)
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", p)
		}
		args = append(args, key, value)
	}
	return args, nil
}

// runLog sets up logging from settings, emits one info event and shuts the
// pipeline down so exporters flush before the process exits.
func runLog(cmd *cobra.Command, flags *cliFlags, msg string, pairs []string) (err error) {
	args, err := parsePairs(pairs)
	if err != nil {
		return err
	}
	s, err := loadSettings(flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := bootstrap.SetupApplicationLogging(ctx, s, bootstrap.WithOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := shutdown(flushCtx); shutdownErr != nil && err == nil {
			err = fmt.Errorf("flush log exporters: %w", shutdownErr)
		}
	}()

	logging.GetLogger("cli").Log(ctx, logging.LevelInfo, msg, args...)
	return nil
}
