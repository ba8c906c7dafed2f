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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "scaffold"
	metricsSubsystem = "log_export"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPanic   = "panic"
)

// Metrics counts exporter outcomes.
type Metrics struct {
	// EventsTotal counts Export calls.
	// Labels: exporter (file, otlp, ...), result (success, error, panic)
	EventsTotal *prometheus.CounterVec

	// ShutdownsTotal counts Shutdown calls.
	// Labels: exporter, result
	ShutdownsTotal *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "events_total",
				Help:      "Total number of log events handed to each exporter by result",
			},
			[]string{"exporter", "result"},
		),
		ShutdownsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "shutdowns_total",
				Help:      "Total number of exporter shutdowns by result",
			},
			[]string{"exporter", "result"},
		),
	}
}

func (m *Metrics) recordEvent(exporter, result string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(exporter, result).Inc()
}

func (m *Metrics) recordShutdown(exporter, result string) {
	if m == nil {
		return
	}
	m.ShutdownsTotal.WithLabelValues(exporter, result).Inc()
}
