// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides process-wide structured logging for scaffold.
//
// The package keeps one logging pipeline per process. Configure builds a new
// pipeline and swaps it in atomically; loggers obtained with GetLogger resolve
// the current pipeline on every call, so a logger created at package init
// time follows later reconfiguration.
//
// # Pipeline
//
//	Logger.Info ──► Event ──► Processor 1 ──► ... ──► Processor N ──► sinks
//	                                                              ├── console (text or JSON)
//	                                                              └── log file (JSON lines)
//
// Processors are side-effecting steps such as the export multiplexer in
// package exporter. They receive an immutable Event and return the event the
// next step should see.
//
// # Basic Usage
//
//	if err := logging.Configure(logging.Config{
//	    Level:   logging.LevelDebug,
//	    Format:  logging.FormatJSON,
//	    LogFile: "/var/log/app/app.log",
//	}); err != nil {
//	    return err
//	}
//	defer logging.Shutdown()
//
//	logger := logging.GetLogger("billing")
//	logger.Info("invoice sent", "invoice_id", id)
//
//	reqLogger := logger.With("request_id", reqID)
//	reqLogger.Warn("slow upstream", "duration_ms", ms)
//
// # Defaults
//
// Before Configure is called, loggers write Info and above to stderr in
// console format.
//
// # Thread Safety
//
// All functions and Logger methods are safe for concurrent use.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels.
//
// Levels are ordered by severity: Debug < Info < Warn < Error.
// Setting a minimum level filters out all logs below that level.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations.
	LevelWarn

	// LevelError is for error conditions.
	LevelError
)

// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
var ErrUnknownLevel = errors.New("unknown log level")

// ErrUnknownFormat is returned by ParseFormat for unrecognised names.
var ErrUnknownFormat = errors.New("unknown log format")

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel converts our Level to slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name to a Level.
//
// Matching is case-insensitive. "warning" is accepted for Warn, and
// "critical" and "fatal" map to Error. An empty string is Info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "critical", "fatal":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// levelName is the lowercase name written into events.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "debug"
	case l < slog.LevelWarn:
		return "info"
	case l < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Format selects how the console sink renders events.
type Format int

const (
	// FormatConsole renders human-readable single lines.
	FormatConsole Format = iota

	// FormatJSON renders one JSON object per line.
	FormatJSON
)

// String returns "console" or "json".
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "console"
}

// ParseFormat converts a format name to a Format. "text" is accepted as an
// alias of "console"; an empty string is console.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console", "text", "":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatConsole, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Config configures the process-wide logging pipeline.
//
// A zero-value Config writes Info+ messages to stderr in console format.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// Format selects console rendering. File logs are always JSON.
	Format Format

	// LogFile enables JSON-lines file logging to this path. The parent
	// directory is created with 0750 permissions. Supports ~ expansion.
	LogFile string

	// Quiet disables console output. If nothing else is configured the
	// pipeline still falls back to the console.
	Quiet bool

	// IncludeCaller adds filename, func_name and lineno to every event.
	IncludeCaller bool

	// Processors run in order on every event before the sinks.
	Processors []Processor

	// Output is the console destination. Default: os.Stderr.
	Output io.Writer
}

// Processor is a step in the logging pipeline.
//
// Process receives the event built for a log call and returns the event the
// next step should see. Implementations that only observe events return ev.
type Processor interface {
	Process(ctx context.Context, ev Event) Event
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, ev Event) Event

// Process calls f(ctx, ev).
func (f ProcessorFunc) Process(ctx context.Context, ev Event) Event { return f(ctx, ev) }

// =============================================================================
// Process-wide pipeline
// =============================================================================

// pipeline is one immutable logging configuration.
type pipeline struct {
	config  Config
	handler slog.Handler
	file    *os.File

	closeOnce sync.Once
	closeErr  error
}

var (
	current     atomic.Pointer[pipeline]
	configureMu sync.Mutex

	defaultPipeline = sync.OnceValue(func() *pipeline {
		p, _ := newPipeline(Config{Level: LevelInfo})
		return p
	})
)

// Configure replaces the process-wide logging pipeline.
//
// The previous pipeline is discarded entirely; nothing is merged. Its log
// file, if any, is closed. Configure returns an error only when the log file
// cannot be created, in which case the previous pipeline stays in place.
func Configure(config Config) error {
	_, err := Install(config)
	return err
}

// Installation is one pipeline installed by Install.
type Installation struct {
	p *pipeline
}

// Install behaves like Configure and returns a handle to the new pipeline.
// Shutting the handle down later only affects that pipeline, so an owner
// that has since been replaced cannot reset its successor.
func Install(config Config) (*Installation, error) {
	p, err := newPipeline(config)
	if err != nil {
		return nil, err
	}

	configureMu.Lock()
	defer configureMu.Unlock()
	if old := current.Swap(p); old != nil {
		_ = old.close()
	}
	return &Installation{p: p}, nil
}

// Current reports whether this installation is still the process-wide
// pipeline.
func (i *Installation) Current() bool {
	return current.Load() == i.p
}

// Shutdown closes the installation's log file. If the installation is still
// current the default pipeline is restored; otherwise the pipeline that
// replaced it stays in place.
func (i *Installation) Shutdown() error {
	configureMu.Lock()
	defer configureMu.Unlock()
	current.CompareAndSwap(i.p, nil)
	return i.p.close()
}

// Shutdown closes the current pipeline's log file and restores the default
// pipeline.
func Shutdown() error {
	configureMu.Lock()
	defer configureMu.Unlock()
	if old := current.Swap(nil); old != nil {
		return old.close()
	}
	return nil
}

// Configured reports whether Configure has been called since the last
// Shutdown.
func Configured() bool {
	return current.Load() != nil
}

func load() *pipeline {
	if p := current.Load(); p != nil {
		return p
	}
	return defaultPipeline()
}

func newPipeline(config Config) (*pipeline, error) {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var sinks []slog.Handler
	if !config.Quiet {
		if config.Format == FormatJSON {
			sinks = append(sinks, newJSONSink(out, config.Level))
		} else {
			sinks = append(sinks, newConsoleSink(out, config.Level))
		}
	}

	p := &pipeline{config: config}

	if config.LogFile != "" {
		logPath := expandPath(config.LogFile)
		if err := os.MkdirAll(filepath.Dir(logPath), 0750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		p.file = file
		// Always use JSON for file logs (machine-parseable)
		sinks = append(sinks, newJSONSink(file, config.Level))
	}

	var sink slog.Handler
	switch len(sinks) {
	case 0:
		// Fallback: at least write to the console
		sink = newConsoleSink(out, config.Level)
	case 1:
		sink = sinks[0]
	default:
		sink = &multiHandler{handlers: sinks}
	}

	p.handler = &pipelineHandler{
		level:         config.Level,
		processors:    config.Processors,
		includeCaller: config.IncludeCaller,
		sink:          sink,
	}
	return p, nil
}

// close releases the log file. Only the first call does any work.
func (p *pipeline) close() error {
	p.closeOnce.Do(func() {
		if p.file == nil {
			return
		}
		var errs []error
		if err := p.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := p.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// =============================================================================
// Logger
// =============================================================================

// Logger emits events into the current pipeline under a logical source name.
//
// Loggers are cheap values; With returns a child that carries additional
// bound fields. The parent is never modified.
type Logger struct {
	name  string
	attrs []slog.Attr

	// pinned, when set, is used instead of the process-wide pipeline.
	pinned func() *pipeline
}

// GetLogger returns a logger bound to the logical source name.
func GetLogger(name string) *Logger {
	return &Logger{name: name}
}

// Name returns the logical source name.
func (l *Logger) Name() string { return l.name }

// Debug logs a message at Debug level.
//
// args are key-value pairs or slog.Attr values:
//
//	logger.Debug("reading file", "path", path)
func (l *Logger) Debug(msg string, args ...any) {
	l.logAt(context.Background(), 3, LevelDebug, msg, args...)
}

// Info logs a message at Info level.
func (l *Logger) Info(msg string, args ...any) {
	l.logAt(context.Background(), 3, LevelInfo, msg, args...)
}

// Warn logs a message at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.logAt(context.Background(), 3, LevelWarn, msg, args...)
}

// Error logs a message at Error level.
func (l *Logger) Error(msg string, args ...any) {
	l.logAt(context.Background(), 3, LevelError, msg, args...)
}

// Log logs a message at the given level with a context. Span context found
// in ctx is added to the event as trace_id and span_id.
func (l *Logger) Log(ctx context.Context, level Level, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.logAt(ctx, 3, level, msg, args...)
}

// With returns a child logger with additional bound fields.
//
// The fields appear in every event the child emits:
//
//	reqLogger := logger.With("request_id", reqID, "user_id", userID)
//	reqLogger.Info("processing")  // includes request_id and user_id
func (l *Logger) With(args ...any) *Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, argsToAttrs(args)...)
	return &Logger{name: l.name, attrs: attrs, pinned: l.pinned}
}

// Slog returns a *slog.Logger that writes through the same pipeline.
func (l *Logger) Slog() *slog.Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+1)
	if l.name != "" {
		attrs = append(attrs, slog.String(KeyLogger, l.name))
	}
	attrs = append(attrs, l.attrs...)
	return slog.New(&dynamicHandler{resolve: l.resolve, attrs: attrs})
}

func (l *Logger) resolve() *pipeline {
	if l.pinned != nil {
		return l.pinned()
	}
	return load()
}

// logAt builds the record with the caller skip frames above it.
func (l *Logger) logAt(ctx context.Context, skip int, level Level, msg string, args ...any) {
	h := l.resolve().handler
	if !h.Enabled(ctx, level.toSlogLevel()) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	l.emit(ctx, h, pcs[0], level, msg, args...)
}

func (l *Logger) emit(ctx context.Context, h slog.Handler, pc uintptr, level Level, msg string, args ...any) {
	r := slog.NewRecord(time.Now(), level.toSlogLevel(), msg, pc)
	if l.name != "" {
		r.AddAttrs(slog.String(KeyLogger, l.name))
	}
	r.AddAttrs(l.attrs...)
	r.AddAttrs(argsToAttrs(args)...)
	_ = h.Handle(ctx, r)
}

// =============================================================================
// Diagnostic logger
// =============================================================================

var (
	diagnosticMu     sync.Mutex
	diagnosticOutput io.Writer = os.Stderr
	diagnostic       atomic.Pointer[pipeline]
)

// Diagnostic returns a logger for the logging system's own problems, such
// as an exporter that cannot write. It writes straight to its own console
// destination and never runs processors, so a failing exporter cannot
// recurse into itself.
func Diagnostic(name string) *Logger {
	return &Logger{name: name, pinned: diagnosticPipeline}
}

// SetDiagnosticOutput redirects diagnostic loggers. A nil writer restores
// os.Stderr.
func SetDiagnosticOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	diagnosticMu.Lock()
	defer diagnosticMu.Unlock()
	diagnosticOutput = w
	diagnostic.Store(nil)
}

func diagnosticPipeline() *pipeline {
	if p := diagnostic.Load(); p != nil {
		return p
	}
	diagnosticMu.Lock()
	defer diagnosticMu.Unlock()
	if p := diagnostic.Load(); p != nil {
		return p
	}
	p, _ := newPipeline(Config{Level: LevelDebug, Output: diagnosticOutput})
	diagnostic.Store(p)
	return p
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans out log records to multiple slog handlers.
//
// This enables simultaneous output to the console and a file with
// different formats (console vs JSON).
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled returns true if any handler is enabled for the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to all enabled handlers. Every handler is tried;
// the errors are joined.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WithAttrs returns a new handler with additional attributes.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup returns a new handler with a group name.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

// expandPath expands ~ to the user's home directory.
//
// Examples:
//   - "~/.scaffold/logs/app.log" -> "/home/user/.scaffold/logs/app.log"
//   - "/var/log/app.log" -> "/var/log/app.log" (unchanged)
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// badKey is the key slog uses for a value without a key.
const badKey = "!BADKEY"

// argsToAttrs converts slog-style key-value args to attributes.
//
// Example:
//
//	argsToAttrs([]any{"key1", "value1", slog.Int("key2", 2)})
//	// Returns: [key1=value1 key2=2]
func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	for len(args) > 0 {
		switch x := args[0].(type) {
		case slog.Attr:
			attrs = append(attrs, x)
			args = args[1:]
		case string:
			if len(args) == 1 {
				attrs = append(attrs, slog.String(badKey, x))
				args = nil
				continue
			}
			attrs = append(attrs, slog.Any(x, args[1]))
			args = args[2:]
		default:
			attrs = append(attrs, slog.Any(badKey, x))
			args = args[1:]
		}
	}
	return attrs
}
