// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

// Multiplexer hands every event to a list of exporters.
//
// # Description
//
// Multiplexer implements logging.Processor. For each event it calls Export
// on every exporter in order and then returns the event unchanged, so the
// console and file sinks render exactly what they would without it.
//
// An exporter that returns an error or panics is logged and counted; the
// remaining exporters still run and the logging call is unaffected.
//
// # Thread Safety
//
// Safe for concurrent use if the exporters are.
type Multiplexer struct {
	exporters []LogExporter
	metrics   *Metrics
	diag      *logging.Logger
	limiter   *rate.Limiter
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithMetrics records export outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(mx *Multiplexer) { mx.metrics = m }
}

// NewMultiplexer creates a Multiplexer over exporters. The slice is copied.
func NewMultiplexer(exporters []LogExporter, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		exporters: append([]LogExporter(nil), exporters...),
		diag:      logging.Diagnostic("exporter.multiplexer"),
		limiter:   rate.NewLimiter(rate.Every(10*time.Second), 5),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Exporters returns a copy of the exporter list.
func (m *Multiplexer) Exporters() []LogExporter {
	return append([]LogExporter(nil), m.exporters...)
}

// Process exports ev to every exporter and returns it unchanged.
func (m *Multiplexer) Process(ctx context.Context, ev logging.Event) logging.Event {
	for _, exp := range m.exporters {
		panicked, err := safeCall(func() error { return exp.Export(ctx, ev) })
		switch {
		case panicked:
			m.metrics.recordEvent(exp.Name(), ResultPanic)
			if m.limiter.Allow() {
				m.diag.Error("Log exporter panicked", "exporter", exp.Name(), "error", err)
			}
		case err != nil:
			m.metrics.recordEvent(exp.Name(), ResultError)
			if m.limiter.Allow() {
				m.diag.Error("Log exporter failed", "exporter", exp.Name(), "error", err)
			}
		default:
			m.metrics.recordEvent(exp.Name(), ResultSuccess)
		}
	}
	return ev
}

// Shutdown shuts down every exporter, even if earlier ones fail. The joined
// failures are returned for the caller's information.
func (m *Multiplexer) Shutdown(ctx context.Context) error {
	var errs []error
	for _, exp := range m.exporters {
		panicked, err := safeCall(func() error { return exp.Shutdown(ctx) })
		result := ResultSuccess
		switch {
		case panicked:
			result = ResultPanic
		case err != nil:
			result = ResultError
		}
		m.metrics.recordShutdown(exp.Name(), result)
		if err != nil {
			m.diag.Error("Log exporter shutdown failed", "exporter", exp.Name(), "error", err)
			errs = append(errs, fmt.Errorf("shutdown %s: %w", exp.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// safeCall runs fn, converting a panic into an error.
func safeCall(fn func() error) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return false, fn()
}

var _ logging.Processor = (*Multiplexer)(nil)
