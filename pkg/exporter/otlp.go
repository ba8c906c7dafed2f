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
	"math"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

const (
	// DefaultOTLPPort is used when the endpoint names no port.
	DefaultOTLPPort = "4317"

	// DefaultProbeTimeout bounds the reachability check.
	DefaultProbeTimeout = 500 * time.Millisecond

	instrumentationScope = "github.com/AleutianAI/scaffold/pkg/exporter"
)

// ErrInvalidEndpoint is returned by ParseEndpoint for endpoints that are not
// host:port, http://host:port or https://host:port.
var ErrInvalidEndpoint = errors.New("invalid OTLP endpoint")

// OTLPConfig configures NewOTLPExporter.
type OTLPConfig struct {
	// Endpoint is the collector address: "http://host:port", "https://host:port"
	// or "host:port". http and bare endpoints use plaintext gRPC.
	Endpoint string

	// ServiceName and ServiceVersion become the service.name and
	// service.version resource attributes.
	ServiceName    string
	ServiceVersion string

	// Timeout bounds each export. Zero keeps the SDK default.
	Timeout time.Duration

	// ProbeTimeout bounds the TCP reachability check. Zero means
	// DefaultProbeTimeout.
	ProbeTimeout time.Duration
}

// OTLPExporter ships events to an OpenTelemetry collector through the
// OpenTelemetry logs SDK.
//
// # Description
//
// At construction the collector endpoint is probed with a short TCP dial.
// If nothing is listening the exporter is created disabled: every export is
// a no-op and nothing is ever sent. Otherwise events are converted to OTel
// log records and handed to a batching LoggerProvider.
//
// # Thread Safety
//
// Safe for concurrent use.
type OTLPExporter struct {
	endpoint string
	provider *sdklog.LoggerProvider
	logger   otellog.Logger
	resource *resource.Resource

	stopped      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewOTLPExporter probes the collector and builds the export pipeline.
//
// An unreachable or unparsable endpoint is not an error: a warning is logged
// and a disabled exporter is returned. An error is returned only when the
// SDK exporter cannot be constructed.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (*OTLPExporter, error) {
	diag := logging.Diagnostic("exporter.otlp")

	hostPort, insecure, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		diag.Warn("OTLP endpoint invalid, log export disabled", "endpoint", cfg.Endpoint, "error", err)
		return &OTLPExporter{endpoint: cfg.Endpoint}, nil
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if err := probe(ctx, hostPort, probeTimeout); err != nil {
		diag.Warn("OTLP endpoint unreachable, log export disabled", "endpoint", cfg.Endpoint, "error", err)
		return &OTLPExporter{endpoint: cfg.Endpoint}, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(hostPort)}
	if insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlploggrpc.WithTimeout(cfg.Timeout))
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}

	diag.Info("OTLP log export enabled", "endpoint", cfg.Endpoint, "service", cfg.ServiceName)
	return newOTLPExporter(cfg, exp), nil
}

// newOTLPExporter wires an SDK exporter into a batching LoggerProvider.
func newOTLPExporter(cfg OTLPConfig, exp sdklog.Exporter) *OTLPExporter {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.ServiceInstanceID(uuid.NewString()),
	)

	var batchOpts []sdklog.BatchProcessorOption
	if cfg.Timeout > 0 {
		batchOpts = append(batchOpts, sdklog.WithExportTimeout(cfg.Timeout))
	}
	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, batchOpts...)),
	)

	return &OTLPExporter{
		endpoint: cfg.Endpoint,
		provider: provider,
		logger:   provider.Logger(instrumentationScope),
		resource: res,
	}
}

// Name returns "otlp".
func (e *OTLPExporter) Name() string { return "otlp" }

// Enabled reports whether the exporter is sending events.
func (e *OTLPExporter) Enabled() bool {
	return e.provider != nil && !e.stopped.Load()
}

// Export converts ev to an OTel log record and emits it. The event's level
// becomes the severity and its message the body. Every other field becomes
// an attribute, except keys starting with "_", which are bookkeeping.
func (e *OTLPExporter) Export(ctx context.Context, ev logging.Event) error {
	if !e.Enabled() {
		return nil
	}

	var rec otellog.Record
	if at := ev.Time(); !at.IsZero() {
		rec.SetTimestamp(at)
	}
	rec.SetObservedTimestamp(time.Now())
	sev := severity(ev.Level())
	rec.SetSeverity(sev)
	rec.SetSeverityText(sev.String())
	rec.SetBody(otellog.StringValue(ev.Message()))

	ev.Range(func(key string, value any) bool {
		if key == logging.KeyEvent || key == logging.KeyLevel || strings.HasPrefix(key, "_") {
			return true
		}
		rec.AddAttributes(otellog.KeyValue{Key: key, Value: logValue(value)})
		return true
	})

	e.logger.Emit(ctx, rec)
	return nil
}

// ForceFlush exports any batched records now.
func (e *OTLPExporter) ForceFlush(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	return e.provider.ForceFlush(ctx)
}

// Shutdown flushes batched records and stops the provider. Only the first
// call has an effect; later calls return its result.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		e.stopped.Store(true)
		if e.provider != nil {
			e.shutdownErr = e.provider.Shutdown(ctx)
		}
	})
	return e.shutdownErr
}

// =============================================================================
// Endpoint handling
// =============================================================================

// ParseEndpoint splits an OTLP endpoint into host:port and reports whether
// the connection should be plaintext. The port defaults to 4317.
//
// # Examples
//
//	ParseEndpoint("http://localhost:4317")  // "localhost:4317", true
//	ParseEndpoint("https://otel.example")   // "otel.example:4317", false
//	ParseEndpoint("collector:4317")         // "collector:4317", true
func ParseEndpoint(endpoint string) (hostPort string, insecure bool, err error) {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		return "", false, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch u.Scheme {
	case "http":
		insecure = true
	case "https":
		insecure = false
	default:
		return "", false, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", false, fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, endpoint)
	}
	port := u.Port()
	if port == "" {
		port = DefaultOTLPPort
	}
	return net.JoinHostPort(host, port), insecure, nil
}

// probe reports whether something accepts TCP connections at hostPort.
// Refused connections, timeouts and DNS failures all count as unreachable.
func probe(ctx context.Context, hostPort string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return err
	}
	return conn.Close()
}

// =============================================================================
// Conversion
// =============================================================================

// severity maps a level name to an OTel severity. Unknown names map to info.
func severity(level string) otellog.Severity {
	switch strings.ToLower(level) {
	case "debug":
		return otellog.SeverityDebug
	case "info":
		return otellog.SeverityInfo
	case "warn", "warning":
		return otellog.SeverityWarn
	case "error":
		return otellog.SeverityError
	case "critical", "fatal":
		return otellog.SeverityFatal
	}
	return otellog.SeverityInfo
}

// logValue converts a plain Go value to an OTel log value.
func logValue(v any) otellog.Value {
	switch x := v.(type) {
	case nil:
		return otellog.Value{}
	case string:
		return otellog.StringValue(x)
	case bool:
		return otellog.BoolValue(x)
	case int:
		return otellog.IntValue(x)
	case int8:
		return otellog.Int64Value(int64(x))
	case int16:
		return otellog.Int64Value(int64(x))
	case int32:
		return otellog.Int64Value(int64(x))
	case int64:
		return otellog.Int64Value(x)
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return otellog.Int64Value(int64(x))
	case uint16:
		return otellog.Int64Value(int64(x))
	case uint32:
		return otellog.Int64Value(int64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return otellog.Float64Value(float64(x))
	case float64:
		return otellog.Float64Value(x)
	case []byte:
		return otellog.BytesValue(x)
	case []string:
		vals := make([]otellog.Value, len(x))
		for i, s := range x {
			vals[i] = otellog.StringValue(s)
		}
		return otellog.SliceValue(vals...)
	case []any:
		vals := make([]otellog.Value, len(x))
		for i, item := range x {
			vals[i] = logValue(item)
		}
		return otellog.SliceValue(vals...)
	case map[string]any:
		kvs := make([]otellog.KeyValue, 0, len(x))
		for k, item := range x {
			kvs = append(kvs, otellog.KeyValue{Key: k, Value: logValue(item)})
		}
		return otellog.MapValue(kvs...)
	case error:
		return otellog.StringValue(x.Error())
	case fmt.Stringer:
		return otellog.StringValue(x.String())
	}
	return otellog.StringValue(fmt.Sprint(v))
}

func uintValue(u uint64) otellog.Value {
	if u > math.MaxInt64 {
		return otellog.StringValue(fmt.Sprint(u))
	}
	return otellog.Int64Value(int64(u))
}
