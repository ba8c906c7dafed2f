// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bootstrap wires settings, exporters and the logging pipeline
// together at application startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/scaffold/pkg/exporter"
	"github.com/AleutianAI/scaffold/pkg/logging"
	"github.com/AleutianAI/scaffold/pkg/settings"
)

// ErrNilContext is returned when SetupApplicationLogging is given a nil context.
var ErrNilContext = errors.New("context must not be nil")

type options struct {
	registerer prometheus.Registerer
	output     io.Writer
}

// Option configures SetupApplicationLogging.
type Option func(*options)

// WithRegisterer registers exporter counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithOutput sends console output to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// SetupApplicationLogging configures the process-wide logging pipeline
// from s.
//
// # Description
//
// The level and format come from s. The exporters requested by s are
// created with exporter.NewFromSettings and installed behind a single
// Multiplexer. LOG_FILE_PATH is only ever written by the file exporter; the
// pipeline's own file sink stays off, so each event lands in the file once.
//
// # Outputs
//
//   - shutdown: flushes and closes every exporter. If no later setup has
//     replaced this one, logging is reset to the default pipeline; a newer
//     configuration is left untouched. Safe to call more than once.
//   - err: non-nil for an unparsable level or format, or a nil context.
//
// # Examples
//
//	s, err := settings.Load()
//	if err != nil { ... }
//	shutdown, err := bootstrap.SetupApplicationLogging(ctx, s)
//	if err != nil { ... }
//	defer shutdown(context.Background())
func SetupApplicationLogging(ctx context.Context, s settings.Settings, opts ...Option) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	format, err := logging.ParseFormat(s.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("log format: %w", err)
	}

	config := logging.Config{
		Level:         level,
		Format:        format,
		IncludeCaller: s.IncludeCaller,
		Output:        o.output,
	}

	var mux *exporter.Multiplexer
	if exporters := exporter.NewFromSettings(ctx, s); len(exporters) > 0 {
		var muxOpts []exporter.Option
		if o.registerer != nil {
			muxOpts = append(muxOpts, exporter.WithMetrics(exporter.NewMetrics(o.registerer)))
		}
		mux = exporter.NewMultiplexer(exporters, muxOpts...)
		config.Processors = []logging.Processor{mux}
	}

	installed, err := logging.Install(config)
	if err != nil {
		if mux != nil {
			_ = mux.Shutdown(ctx)
		}
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	logger := logging.GetLogger("bootstrap")
	logger.Debug("Logging configured",
		"level", level.String(),
		"format", format.String(),
		"export_mode", string(s.ExportMode),
		"exporters", exporterNames(mux),
	)

	var (
		once        sync.Once
		shutdownErr error
	)
	shutdown = func(ctx context.Context) error {
		once.Do(func() {
			var errs []error
			if mux != nil {
				if err := mux.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
			}
			if err := installed.Shutdown(); err != nil {
				errs = append(errs, err)
			}
			shutdownErr = errors.Join(errs...)
		})
		return shutdownErr
	}
	return shutdown, nil
}

func exporterNames(mux *exporter.Multiplexer) []string {
	if mux == nil {
		return nil
	}
	exporters := mux.Exporters()
	names := make([]string, len(exporters))
	for i, e := range exporters {
		names[i] = e.Name()
	}
	return names
}
