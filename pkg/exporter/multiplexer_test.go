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
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

type failingExporter struct {
	name     string
	err      error
	calls    int
	shutdown int
}

func (f *failingExporter) Export(context.Context, logging.Event) error {
	f.calls++
	return f.err
}

func (f *failingExporter) Shutdown(context.Context) error {
	f.shutdown++
	return f.err
}

func (f *failingExporter) Name() string { return f.name }

type panickingExporter struct{}

func (panickingExporter) Export(context.Context, logging.Event) error { panic("exporter exploded") }
func (panickingExporter) Shutdown(context.Context) error              { panic("shutdown exploded") }
func (panickingExporter) Name() string                                { return "panicky" }

func TestMultiplexer_IsolatesFailures(t *testing.T) {
	diag := quietDiagnostics(t)
	failing := &failingExporter{name: "failing", err: errors.New("network down")}
	buf := NewBufferedExporter()
	mux := NewMultiplexer([]LogExporter{failing, panickingExporter{}, buf})

	ev := testEvent("hello")
	out := mux.Process(context.Background(), ev)

	assert.Equal(t, ev.Fields(), out.Fields(), "event must pass through unchanged")
	assert.Equal(t, 1, failing.calls)
	require.Len(t, buf.Events(), 1)
	assert.Equal(t, "hello", buf.Events()[0].Message())
	assert.Contains(t, diag.String(), "Log exporter failed")
	assert.Contains(t, diag.String(), "Log exporter panicked")
}

func TestMultiplexer_Empty(t *testing.T) {
	mux := NewMultiplexer(nil)
	ev := testEvent("alone")
	assert.Equal(t, "alone", mux.Process(context.Background(), ev).Message())
	assert.NoError(t, mux.Shutdown(context.Background()))
}

func TestMultiplexer_CopiesExporterSlice(t *testing.T) {
	exporters := []LogExporter{NewBufferedExporter()}
	mux := NewMultiplexer(exporters)
	exporters[0] = &failingExporter{name: "swapped"}
	assert.Equal(t, "buffer", mux.Exporters()[0].Name())
}

func TestMultiplexer_ShutdownJoinsErrors(t *testing.T) {
	quietDiagnostics(t)
	first := &failingExporter{name: "first", err: errors.New("flush failed")}
	buf := NewBufferedExporter()
	mux := NewMultiplexer([]LogExporter{first, panickingExporter{}, buf})

	err := mux.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, first.err)
	assert.Contains(t, err.Error(), "shutdown panicky")
	assert.Equal(t, 1, first.shutdown)
	assert.Equal(t, 1, buf.ShutdownCalls(), "later exporters must still be shut down")
}

func TestMultiplexer_Metrics(t *testing.T) {
	quietDiagnostics(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	failing := &failingExporter{name: "failing", err: errors.New("nope")}
	mux := NewMultiplexer([]LogExporter{failing, panickingExporter{}, NewBufferedExporter()}, WithMetrics(metrics))

	ctx := context.Background()
	mux.Process(ctx, testEvent("one"))
	mux.Process(ctx, testEvent("two"))
	_ = mux.Shutdown(ctx)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("failing", ResultError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("panicky", ResultPanic)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("buffer", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ShutdownsTotal.WithLabelValues("buffer", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ShutdownsTotal.WithLabelValues("failing", ResultError)))

	count, err := testutil.GatherAndCount(reg, "scaffold_log_export_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMultiplexer_AsPipelineProcessor(t *testing.T) {
	quietDiagnostics(t)
	buf := NewBufferedExporter()
	mux := NewMultiplexer([]LogExporter{&failingExporter{name: "failing", err: errors.New("x")}, buf})

	var console bytes.Buffer
	require.NoError(t, logging.Configure(logging.Config{
		Level:      logging.LevelInfo,
		Format:     logging.FormatJSON,
		Output:     &console,
		Processors: []logging.Processor{mux},
	}))
	t.Cleanup(func() { _ = logging.Shutdown() })

	logging.GetLogger("app").With("request_id", "r1").Info("processed", "items", 3)

	events := buf.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "processed", ev.Message())
	assert.Equal(t, "info", ev.Level())
	assert.Equal(t, "app", ev.Logger())
	rid, _ := ev.Get("request_id")
	assert.Equal(t, "r1", rid)
	assert.Contains(t, console.String(), `"event":"processed"`, "sink output must be unaffected by exporter failure")
}
