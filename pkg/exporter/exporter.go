// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exporter forwards finished log events to external destinations.
//
// # Description
//
// A LogExporter receives every event the logging pipeline produces. Two
// implementations are provided: FileExporter appends JSON lines to a local
// file, and OTLPExporter ships events to an OpenTelemetry collector over
// gRPC. NewFromSettings picks the exporters that the settings ask for, and
// a Multiplexer installs them into the pipeline as a logging.Processor.
//
// # Architecture
//
//	┌──────────────┐   Process   ┌─────────────┐   Export   ┌──────────────┐
//	│ logging call │ ──────────► │ Multiplexer │ ─────────► │ FileExporter │
//	└──────────────┘             └─────────────┘     │      └──────────────┘
//	                                                 │      ┌──────────────┐
//	                                                 └────► │ OTLPExporter │
//	                                                        └──────────────┘
//
// # Failure Model
//
// Export is best effort. An exporter that fails or panics is logged through
// the diagnostic logger and never affects the logging call or the other
// exporters.
package exporter

import (
	"context"
	"sync"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

// LogExporter is a destination for log events.
//
// # Implementation Requirements
//
//  1. Export must not block the caller for long. Slow destinations should
//     buffer internally.
//
//  2. Export receives a read-only event. It must not retain references to
//     values it intends to modify.
//
//  3. Shutdown flushes pending output and releases resources. It must be
//     safe to call more than once; only the first call has an effect.
type LogExporter interface {
	// Export forwards one event. A non-nil error is logged by the caller
	// and otherwise ignored.
	Export(ctx context.Context, ev logging.Event) error

	// Shutdown flushes and releases resources.
	Shutdown(ctx context.Context) error

	// Name identifies the exporter in diagnostics and metrics.
	Name() string
}

// BufferedExporter collects events in memory.
//
// Useful for testing to verify what reaches the exporters:
//
//	buf := exporter.NewBufferedExporter()
//	mux := exporter.NewMultiplexer([]exporter.LogExporter{buf})
//	logging.Configure(logging.Config{Processors: []logging.Processor{mux}})
//
//	logging.GetLogger("app").Info("test message")
//	events := buf.Events()
type BufferedExporter struct {
	mu       sync.Mutex
	events   []logging.Event
	shutdown int
}

// NewBufferedExporter creates a new BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{events: make([]logging.Event, 0, 100)}
}

// Export appends the event to the buffer.
func (e *BufferedExporter) Export(_ context.Context, ev logging.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

// Shutdown records the call. Events remain readable afterwards.
func (e *BufferedExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown++
	return nil
}

// Name returns "buffer".
func (e *BufferedExporter) Name() string { return "buffer" }

// Events returns a copy of all collected events.
func (e *BufferedExporter) Events() []logging.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]logging.Event, len(e.events))
	copy(result, e.events)
	return result
}

// ShutdownCalls reports how many times Shutdown was called.
func (e *BufferedExporter) ShutdownCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

var (
	_ LogExporter = (*BufferedExporter)(nil)
	_ LogExporter = (*FileExporter)(nil)
	_ LogExporter = (*OTLPExporter)(nil)
)
