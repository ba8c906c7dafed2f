// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every settings variable for the duration of the test.
// Empty variables are treated as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range bindings {
		t.Setenv(b.env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.False(t, s.ExportEnabled())
	assert.Equal(t, 30*time.Second, s.ExportTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_LOGS_EXPORT_MODE", "Both")
	t.Setenv("OTEL_ENDPOINT", "http://collector:4317")
	t.Setenv("OTEL_SERVICE_NAME", "ingest")
	t.Setenv("OTEL_SERVICE_VERSION", "2.3.4")
	t.Setenv("OTEL_EXPORT_TIMEOUT", "1500")
	t.Setenv("LOG_FILE_PATH", "/tmp/app.log")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_INCLUDE_CALLER", "true")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Settings{
		ExportMode:     ModeBoth,
		Endpoint:       "http://collector:4317",
		ServiceName:    "ingest",
		ServiceVersion: "2.3.4",
		ExportTimeout:  1500 * time.Millisecond,
		LogFilePath:    "/tmp/app.log",
		LogLevel:       "debug",
		LogFormat:      "json",
		IncludeCaller:  true,
	}, s)
	assert.True(t, s.ExportEnabled())
}

func TestExportMode_Includes(t *testing.T) {
	tests := []struct {
		mode       ExportMode
		file, otlp bool
	}{
		{ModeDisabled, false, false},
		{ModeFile, true, false},
		{ModeOTLP, false, true},
		{ModeBoth, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.file, tt.mode.IncludesFile())
			assert.Equal(t, tt.otlp, tt.mode.IncludesOTLP())
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{"mode", map[string]string{"OTEL_LOGS_EXPORT_MODE": "kafka"}, []string{"OTEL_LOGS_EXPORT_MODE"}},
		{"timeout not a number", map[string]string{"OTEL_EXPORT_TIMEOUT": "soon"}, []string{"OTEL_EXPORT_TIMEOUT"}},
		{"negative timeout", map[string]string{"OTEL_EXPORT_TIMEOUT": "-1"}, []string{"OTEL_EXPORT_TIMEOUT"}},
		{"level", map[string]string{"LOG_LEVEL": "loud"}, []string{"LOG_LEVEL"}},
		{"format", map[string]string{"LOG_FORMAT": "xml"}, []string{"LOG_FORMAT"}},
		{"caller", map[string]string{"LOG_INCLUDE_CALLER": "maybe"}, []string{"LOG_INCLUDE_CALLER"}},
		{"several", map[string]string{"LOG_FORMAT": "xml", "OTEL_LOGS_EXPORT_MODE": "kafka"},
			[]string{"OTEL_LOGS_EXPORT_MODE", "LOG_FORMAT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Env)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, `invalid settings: LOG_FORMAT="xml": must be one of: console, json`, err.Error())
}

func TestLoadFile_EnvironmentWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "export_mode: file\n" +
		"log_file_path: /var/log/app.jsonl\n" +
		"log_level: warn\n" +
		"export_timeout: 250\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("LOG_LEVEL", "error")

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ModeFile, s.ExportMode)
	assert.Equal(t, "/var/log/app.jsonl", s.LogFilePath)
	assert.Equal(t, "error", s.LogLevel)
	assert.Equal(t, 250*time.Millisecond, s.ExportTimeout)
	assert.Equal(t, DefaultServiceName, s.ServiceName)
}

func TestLoadFile_Missing(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
