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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

// quietDiagnostics captures diagnostic output for the duration of the test.
func quietDiagnostics(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetDiagnosticOutput(&buf)
	t.Cleanup(func() { logging.SetDiagnosticOutput(nil) })
	return &buf
}

func testEvent(msg string, extra ...logging.Field) logging.Event {
	fields := []logging.Field{
		{Key: logging.KeyEvent, Value: msg},
		{Key: logging.KeyLevel, Value: "info"},
		{Key: logging.KeyLogger, Value: "test"},
		{Key: logging.KeyTimestamp, Value: "2025-01-02T03:04:05Z"},
	}
	return logging.NewEvent(append(fields, extra...)...)
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line %q", line)
		out = append(out, m)
	}
	return out
}

func TestFileExporter_WritesJSONLines(t *testing.T) {
	quietDiagnostics(t)
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	exp := NewFileExporter(path)
	defer exp.Shutdown(context.Background())

	ctx := context.Background()
	require.NoError(t, exp.Export(ctx, testEvent("first", logging.Field{Key: "user", Value: "u1"})))
	require.NoError(t, exp.Export(ctx, testEvent("こんにちは <b>")))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0]["event"])
	assert.Equal(t, "u1", lines[0]["user"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "2025-01-02T03:04:05Z", lines[0]["timestamp"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "こんにちは <b>", "non-ASCII and HTML must be written literally")
}

func TestFileExporter_Appends(t *testing.T) {
	quietDiagnostics(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"event":"existing"}`+"\n"), 0640))

	exp := NewFileExporter(path)
	require.NoError(t, exp.Export(context.Background(), testEvent("new")))
	require.NoError(t, exp.Shutdown(context.Background()))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "existing", lines[0]["event"])
	assert.Equal(t, "new", lines[1]["event"])
}

func TestFileExporter_ShutdownIdempotent(t *testing.T) {
	quietDiagnostics(t)
	path := filepath.Join(t.TempDir(), "app.log")
	exp := NewFileExporter(path)
	ctx := context.Background()

	require.NoError(t, exp.Export(ctx, testEvent("before")))
	require.NoError(t, exp.Shutdown(ctx))
	require.NoError(t, exp.Shutdown(ctx))
	require.NoError(t, exp.Export(ctx, testEvent("after")))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "before", lines[0]["event"])
}

func TestFileExporter_ShutdownWithoutExports(t *testing.T) {
	exp := NewFileExporter(filepath.Join(t.TempDir(), "never.log"))
	assert.NoError(t, exp.Shutdown(context.Background()))
	_, err := os.Stat(exp.Path())
	assert.True(t, os.IsNotExist(err), "file should only be created on first export")
}

func TestFileExporter_UnwritableDirectory(t *testing.T) {
	diag := quietDiagnostics(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	exp := NewFileExporter(filepath.Join(blocker, "sub", "app.log"))
	require.NotNil(t, exp)
	assert.Contains(t, diag.String(), "Failed to create log export directory")

	assert.NoError(t, exp.Export(context.Background(), testEvent("dropped")))
	assert.Contains(t, diag.String(), "Failed to open log export file")
	assert.NoError(t, exp.Shutdown(context.Background()))
}

func TestFileExporter_ConcurrentLinesStayWhole(t *testing.T) {
	quietDiagnostics(t)
	path := filepath.Join(t.TempDir(), "app.log")
	exp := NewFileExporter(path)
	defer exp.Shutdown(context.Background())

	const workers, perWorker = 8, 50
	payload := strings.Repeat("x", 512)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ev := testEvent(fmt.Sprintf("w%d-%d", w, i), logging.Field{Key: "payload", Value: payload})
				_ = exp.Export(context.Background(), ev)
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, readLines(t, path), workers*perWorker)
}

func TestFileExporter_Name(t *testing.T) {
	logging.SetDiagnosticOutput(io.Discard)
	defer logging.SetDiagnosticOutput(nil)
	assert.Equal(t, "file", NewFileExporter(filepath.Join(t.TempDir(), "x.log")).Name())
}
