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
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

// FileExporter appends each event as one JSON line to a local file.
//
// # Description
//
// The file is opened lazily in append mode on the first export and kept
// open until Shutdown. A failed write is logged, the handle is dropped,
// and the next export opens the file again. Non-ASCII text is written
// as-is (UTF-8).
//
// # Thread Safety
//
// Safe for concurrent use. Lines from concurrent exports never interleave.
type FileExporter struct {
	path string
	diag *logging.Logger

	// limiter bounds diagnostic output when the disk keeps failing.
	limiter *rate.Limiter

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewFileExporter creates an exporter that writes to path.
//
// The parent directory is created immediately. If that fails the error is
// logged and the exporter is still returned; exports will keep failing
// quietly until the directory becomes writable.
func NewFileExporter(path string) *FileExporter {
	e := &FileExporter{
		path:    path,
		diag:    logging.Diagnostic("exporter.file"),
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		e.diag.Error("Failed to create log export directory", "path", path, "error", err)
	}
	return e
}

// Name returns "file".
func (e *FileExporter) Name() string { return "file" }

// Path returns the destination file.
func (e *FileExporter) Path() string { return e.path }

// Export appends ev as a JSON line. I/O failures are logged and swallowed.
func (e *FileExporter) Export(_ context.Context, ev logging.Event) error {
	line, err := ev.MarshalJSON()
	if err != nil {
		e.report("Failed to encode log event", err)
		return nil
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if e.file == nil {
		f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			e.report("Failed to open log export file", err)
			return nil
		}
		e.file = f
	}
	if _, err := e.file.Write(line); err != nil {
		e.report("Failed to write log export file", err)
		_ = e.file.Close()
		e.file = nil
	}
	return nil
}

// Shutdown closes the file. Later exports are ignored.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

func (e *FileExporter) report(msg string, err error) {
	if e.limiter.Allow() {
		e.diag.Error(msg, "path", e.path, "error", err)
	}
}
