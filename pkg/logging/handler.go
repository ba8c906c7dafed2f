// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Pipeline handler
// =============================================================================

// pipelineHandler turns slog records into Events, runs the processors, and
// hands the resulting event to the sinks.
type pipelineHandler struct {
	level         Level
	processors    []Processor
	includeCaller bool
	sink          slog.Handler

	// name and attrs come from WithAttrs; group from WithGroup.
	name  string
	attrs []slog.Attr
	group string
}

func (h *pipelineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.toSlogLevel()
}

func (h *pipelineHandler) Handle(ctx context.Context, r slog.Record) error {
	ev := h.buildEvent(ctx, r)
	for _, p := range h.processors {
		ev = p.Process(ctx, ev)
	}
	return h.sink.Handle(ctx, ev.record())
}

func (h *pipelineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group == "" && a.Key == KeyLogger {
			h2.name = a.Value.String()
			continue
		}
		a.Key = h.prefixed(a.Key)
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *pipelineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.prefixed(name)
	return &h2
}

func (h *pipelineHandler) prefixed(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// buildEvent lays the fields out in the documented order: message, bound
// fields, call fields, level, logger, timestamp, caller, trace.
func (h *pipelineHandler) buildEvent(ctx context.Context, r slog.Record) Event {
	fields := make([]Field, 0, 1+len(h.attrs)+r.NumAttrs()+8)
	fields = append(fields, Field{Key: KeyEvent, Value: r.Message})

	name := h.name
	for _, a := range h.attrs {
		fields = appendField(fields, Field{Key: a.Key, Value: attrValue(a.Value)})
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		if h.group == "" && a.Key == KeyLogger {
			name = a.Value.String()
			return true
		}
		fields = appendField(fields, Field{Key: h.prefixed(a.Key), Value: attrValue(a.Value)})
		return true
	})

	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	fields = appendField(fields, Field{Key: KeyLevel, Value: levelName(r.Level)})
	if name != "" {
		fields = appendField(fields, Field{Key: KeyLogger, Value: name})
	}
	fields = appendField(fields, Field{Key: KeyTimestamp, Value: at.UTC().Format(time.RFC3339Nano)})

	if h.includeCaller && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		fn := f.Function
		if i := strings.LastIndex(fn, "/"); i >= 0 {
			fn = fn[i+1:]
		}
		fields = appendField(fields, Field{Key: KeyFilename, Value: filepath.Base(f.File)})
		fields = appendField(fields, Field{Key: KeyFuncName, Value: fn})
		fields = appendField(fields, Field{Key: KeyLineno, Value: int64(f.Line)})
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = appendField(fields, Field{Key: KeyTraceID, Value: sc.TraceID().String()})
		fields = appendField(fields, Field{Key: KeySpanID, Value: sc.SpanID().String()})
	}

	return Event{fields: fields, at: at}
}

// =============================================================================
// Dynamic handler
// =============================================================================

// dynamicHandler resolves the pipeline at Handle time so *slog.Logger values
// handed out by Logger.Slog follow reconfiguration.
type dynamicHandler struct {
	resolve func() *pipeline
	attrs   []slog.Attr
	groups  []string
}

func (h *dynamicHandler) current() slog.Handler {
	var handler slog.Handler = h.resolve().handler
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().handler.Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		// Attributes added after a group belong to it.
		prefix := strings.Join(h.groups, ".") + "."
		grouped := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			a.Key = prefix + a.Key
			grouped[i] = a
		}
		attrs = grouped
	}
	h2 := &dynamicHandler{resolve: h.resolve, groups: h.groups}
	h2.attrs = append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return h2
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &dynamicHandler{
		resolve: h.resolve,
		attrs:   h.attrs,
		groups:  append(append([]string(nil), h.groups...), name),
	}
}

// =============================================================================
// Sinks
// =============================================================================

// jsonSink writes one JSON object per line: timestamp, level and event
// first, then the remaining fields in order. Keys are written exactly as
// given, so fields named "time", "msg" or "source" are ordinary fields.
type jsonSink struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func newJSONSink(w io.Writer, level Level) *jsonSink {
	return &jsonSink{mu: &sync.Mutex{}, w: w, level: level.toSlogLevel()}
}

func (s *jsonSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.level
}

func (s *jsonSink) Handle(_ context.Context, r slog.Record) error {
	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	fields := make([]Field, 0, 3+len(s.attrs)+r.NumAttrs())
	fields = append(fields,
		Field{Key: KeyTimestamp, Value: at.UTC().Format(time.RFC3339Nano)},
		Field{Key: KeyLevel, Value: levelName(r.Level)},
		Field{Key: KeyEvent, Value: r.Message},
	)
	add := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		switch a.Key {
		case KeyTimestamp, KeyLevel, KeyEvent:
			// The record's own values win.
			return
		}
		fields = append(fields, Field{Key: a.Key, Value: attrValue(a.Value)})
	}
	for _, a := range s.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if s.group != "" {
			a.Key = s.group + "." + a.Key
		}
		add(a)
		return true
	})

	line, err := NewEvent(fields...).MarshalJSON()
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

func (s *jsonSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	s2 := *s
	s2.attrs = append(append(make([]slog.Attr, 0, len(s.attrs)+len(attrs)), s.attrs...), attrs...)
	if s.group != "" {
		for i := len(s.attrs); i < len(s2.attrs); i++ {
			s2.attrs[i].Key = s.group + "." + s2.attrs[i].Key
		}
	}
	return &s2
}

func (s *jsonSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	s2 := *s
	if s.group != "" {
		name = s.group + "." + name
	}
	s2.group = name
	return &s2
}

// consoleSink renders human-readable lines:
//
//	2026-01-02T15:04:05.000Z [info     ] invoice sent                   [billing] invoice_id=42
//
// The level is coloured when the destination is a terminal.
type consoleSink struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	styles map[string]lipgloss.Style
	attrs  []slog.Attr
	group  string
}

const consoleMessageWidth = 30

func newConsoleSink(w io.Writer, level Level) *consoleSink {
	s := &consoleSink{mu: &sync.Mutex{}, w: w, level: level.toSlogLevel()}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		r := lipgloss.NewRenderer(w)
		s.styles = map[string]lipgloss.Style{
			"debug": r.NewStyle().Foreground(lipgloss.Color("6")),
			"info":  r.NewStyle().Foreground(lipgloss.Color("2")),
			"warn":  r.NewStyle().Foreground(lipgloss.Color("3")),
			"error": r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		}
	}
	return s
}

func (s *consoleSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.level
}

func (s *consoleSink) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	buf.WriteString(at.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')

	name := levelName(r.Level)
	tag := fmt.Sprintf("[%-9s]", name)
	if style, ok := s.styles[name]; ok {
		tag = style.Render(tag)
	}
	buf.WriteString(tag)
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, "%-*s", consoleMessageWidth, r.Message)

	var logger string
	var rest []slog.Attr
	collect := func(a slog.Attr) {
		if a.Key == KeyLogger && logger == "" {
			logger = a.Value.String()
			return
		}
		rest = append(rest, a)
	}
	for _, a := range s.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if s.group != "" {
			a.Key = s.group + "." + a.Key
		}
		collect(a)
		return true
	})

	if logger != "" {
		buf.WriteString(" [")
		buf.WriteString(logger)
		buf.WriteByte(']')
	}
	for _, a := range rest {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(consoleValue(a.Value))
	}
	buf.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(buf.Bytes())
	return err
}

func (s *consoleSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	s2 := *s
	s2.attrs = append(append(make([]slog.Attr, 0, len(s.attrs)+len(attrs)), s.attrs...), attrs...)
	if s.group != "" {
		for i := len(s.attrs); i < len(s2.attrs); i++ {
			s2.attrs[i].Key = s.group + "." + s2.attrs[i].Key
		}
	}
	return &s2
}

func (s *consoleSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	s2 := *s
	if s.group != "" {
		name = s.group + "." + name
	}
	s2.group = name
	return &s2
}

// consoleValue quotes strings that would be ambiguous in key=value form.
func consoleValue(v slog.Value) string {
	s := fmt.Sprint(attrValue(v))
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
