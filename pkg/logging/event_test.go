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
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestNewEvent_ReplacesDuplicateKeys(t *testing.T) {
	ev := NewEvent(
		Field{Key: "event", Value: "first"},
		Field{Key: "user", Value: "a"},
		Field{Key: "event", Value: "second"},
	)
	if ev.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ev.Len())
	}
	if ev.Message() != "second" {
		t.Errorf("Message() = %q, want second", ev.Message())
	}
}

func TestNewEvent_ParsesTimestamp(t *testing.T) {
	ev := NewEvent(Field{Key: KeyTimestamp, Value: "2024-01-01T00:00:00Z"})
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ev.Time().Equal(want) {
		t.Errorf("Time() = %v, want %v", ev.Time(), want)
	}
}

func TestEvent_FieldsIsACopy(t *testing.T) {
	ev := NewEvent(Field{Key: "event", Value: "original"})
	fields := ev.Fields()
	fields[0].Value = "mutated"
	if ev.Message() != "original" {
		t.Errorf("Fields() leaked internal storage: %q", ev.Message())
	}
	m := ev.Map()
	m["event"] = "mutated"
	if ev.Message() != "original" {
		t.Errorf("Map() leaked internal storage: %q", ev.Message())
	}
}

func TestEvent_MarshalJSONKeepsOrder(t *testing.T) {
	ev := NewEvent(
		Field{Key: "event", Value: "héllo <b>"},
		Field{Key: "zeta", Value: 1},
		Field{Key: "alpha", Value: map[string]any{"nested": true}},
		Field{Key: "ch", Value: make(chan int)},
	)
	data, err := ev.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	got := string(data)
	want := `{"event":"héllo <b>","zeta":1,"alpha":{"nested":true},"ch":`
	if len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("MarshalJSON() = %s", got)
	}
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Errorf("output is not valid JSON: %v", err)
	}
}

func TestEvent_GetMissing(t *testing.T) {
	ev := NewEvent()
	if _, ok := ev.Get("nothing"); ok {
		t.Error("Get() on empty event returned ok")
	}
	if ev.Message() != "" || ev.Level() != "" || ev.Logger() != "" {
		t.Error("accessors on empty event should return empty strings")
	}
}

func TestAttrValue(t *testing.T) {
	when := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name string
		in   slog.Value
		want any
	}{
		{"string", slog.StringValue("x"), "x"},
		{"int", slog.IntValue(3), int64(3)},
		{"bool", slog.BoolValue(true), true},
		{"float", slog.Float64Value(1.5), 1.5},
		{"time", slog.TimeValue(when), "2025-03-04T05:06:07Z"},
		{"duration", slog.DurationValue(1500 * time.Millisecond), "1.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attrValue(tt.in); got != tt.want {
				t.Errorf("attrValue() = %#v, want %#v", got, tt.want)
			}
		})
	}

	group := attrValue(slog.GroupValue(slog.String("a", "b")))
	if m, ok := group.(map[string]any); !ok || m["a"] != "b" {
		t.Errorf("group value = %#v", group)
	}
}
