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
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"
)

// Timed runs fn and logs exactly one event with its name and wall-clock
// duration in milliseconds.
//
// # Description
//
// On success the event is Info "Function completed". If fn returns an error
// the event is Error "Function failed" with an "error" field, and the error
// is returned unchanged. If fn panics the event is Error "Function panicked"
// and the panic continues with the original value.
//
// An empty name is replaced by the function's symbol name.
//
// # Examples
//
//	err := logging.Timed(logger, "sync_catalog", func() error {
//	    return catalog.Sync(ctx)
//	})
func Timed(l *Logger, name string, fn func() error) error {
	if name == "" {
		name = funcName(fn)
	}
	_, err := timed(l, name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// TimedValue is Timed for functions that return a value.
//
//	cfg, err := logging.TimedValue(logger, "load_config", func() (Config, error) {
//	    return loadConfig(path)
//	})
func TimedValue[T any](l *Logger, name string, fn func() (T, error)) (T, error) {
	if name == "" {
		name = funcName(fn)
	}
	return timed(l, name, fn)
}

func timed[T any](l *Logger, name string, fn func() (T, error)) (result T, err error) {
	// Attribute the event to whoever called Timed or TimedValue.
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	pc := pcs[0]

	start := time.Now()
	completed := false
	defer func() {
		ms := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
		if !completed {
			r := recover()
			if r == nil {
				// runtime.Goexit: nothing to re-raise, let the goroutine exit.
				l.emitTiming(pc, LevelError, "Function failed", name, ms, "error", "goroutine exited")
				return
			}
			l.emitTiming(pc, LevelError, "Function panicked", name, ms, "panic", fmt.Sprint(r))
			panic(r)
		}
		if err != nil {
			l.emitTiming(pc, LevelError, "Function failed", name, ms, "error", err.Error())
			return
		}
		l.emitTiming(pc, LevelInfo, "Function completed", name, ms)
	}()

	result, err = fn()
	completed = true
	return result, err
}

func (l *Logger) emitTiming(pc uintptr, level Level, msg, name string, ms float64, extra ...any) {
	ctx := context.Background()
	h := l.resolve().handler
	if !h.Enabled(ctx, level.toSlogLevel()) {
		return
	}
	args := append([]any{KeyFunctionName, name, KeyDurationMs, ms}, extra...)
	l.emit(ctx, h, pc, level, msg, args...)
}

// funcName returns the short symbol name of fn, e.g. "main.syncCatalog".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "unknown"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "unknown"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
