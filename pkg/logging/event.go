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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Well-known event keys.
const (
	KeyEvent     = "event"
	KeyLevel     = "level"
	KeyLogger    = "logger"
	KeyTimestamp = "timestamp"

	KeyFilename = "filename"
	KeyFuncName = "func_name"
	KeyLineno   = "lineno"

	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyFunctionName = "function_name"
	KeyDurationMs   = "duration_ms"
)

// Field is a single key/value pair of an Event.
type Field struct {
	Key   string
	Value any
}

// Event is one log call as seen by processors and exporters.
//
// An Event is an ordered list of fields. It has no mutating methods: every
// accessor returns values or copies, so a processor or exporter cannot change
// what its siblings or the sinks see.
type Event struct {
	fields []Field
	at     time.Time
}

// NewEvent builds an Event from fields in order. A later field with the same
// key replaces the earlier value in place. If a "timestamp" field holds an
// RFC 3339 string or a time.Time it becomes the event time.
func NewEvent(fields ...Field) Event {
	ev := Event{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		ev.fields = appendField(ev.fields, f)
	}
	if v, ok := ev.Get(KeyTimestamp); ok {
		switch t := v.(type) {
		case time.Time:
			ev.at = t
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				ev.at = parsed
			}
		}
	}
	return ev
}

// Get returns the value stored under key.
func (e Event) Get(key string) (any, bool) {
	for _, f := range e.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Message returns the "event" field as a string.
func (e Event) Message() string { return e.str(KeyEvent) }

// Level returns the "level" field as a string.
func (e Event) Level() string { return e.str(KeyLevel) }

// Logger returns the logical source name.
func (e Event) Logger() string { return e.str(KeyLogger) }

// Time returns the time the event was created, or the zero time for events
// built without a timestamp.
func (e Event) Time() time.Time { return e.at }

// Len returns the number of fields.
func (e Event) Len() int { return len(e.fields) }

// Range calls fn for each field in order until fn returns false.
func (e Event) Range(fn func(key string, value any) bool) {
	for _, f := range e.fields {
		if !fn(f.Key, f.Value) {
			return
		}
	}
}

// Fields returns a copy of the fields in order.
func (e Event) Fields() []Field {
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Map returns the fields as a new map.
func (e Event) Map() map[string]any {
	m := make(map[string]any, len(e.fields))
	for _, f := range e.fields {
		m[f.Key] = f.Value
	}
	return m
}

// MarshalJSON encodes the event as a JSON object, preserving field order.
// Non-ASCII text is written as-is and HTML characters are not escaped.
// json.Marshal compacts this output again and escapes <, > and &, so callers
// that need the literal form call MarshalJSON directly.
// Values that cannot be encoded are written as their fmt representation.
func (e Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeJSON(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := encodeJSON(f.Value)
		if err != nil {
			val, _ = encodeJSON(fmt.Sprint(f.Value))
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e Event) str(key string) string {
	v, ok := e.Get(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// record converts the event back into a slog.Record for the sinks.
func (e Event) record() slog.Record {
	at := e.at
	if at.IsZero() {
		at = time.Now()
	}
	level, err := ParseLevel(e.Level())
	if err != nil {
		level = LevelInfo
	}
	r := slog.NewRecord(at, level.toSlogLevel(), e.Message(), 0)
	for _, f := range e.fields {
		switch f.Key {
		case KeyEvent, KeyLevel, KeyTimestamp:
			continue
		}
		r.AddAttrs(slog.Any(f.Key, f.Value))
	}
	return r
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// appendField appends f, replacing the value of an existing field with the
// same key.
func appendField(fields []Field, f Field) []Field {
	for i := range fields {
		if fields[i].Key == f.Key {
			fields[i].Value = f.Value
			return fields
		}
	}
	return append(fields, f)
}

// attrValue converts a slog value into a plain Go value suitable for JSON
// and for OpenTelemetry attributes.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		m := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			m[a.Key] = attrValue(a.Value)
		}
		return m
	default:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		default:
			return x
		}
	}
}
