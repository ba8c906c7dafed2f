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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scaffold/pkg/settings"
)

func TestNewFromSettings(t *testing.T) {
	quietDiagnostics(t)
	logPath := filepath.Join(t.TempDir(), "app.log")
	unreachable := "http://" + closedPort(t)

	tests := []struct {
		name      string
		mode      settings.ExportMode
		path      string
		wantNames []string
	}{
		{"disabled", settings.ModeDisabled, logPath, nil},
		{"file", settings.ModeFile, logPath, []string{"file"}},
		{"file without path", settings.ModeFile, "", nil},
		{"otlp", settings.ModeOTLP, "", []string{"otlp"}},
		{"both", settings.ModeBoth, logPath, []string{"file", "otlp"}},
		{"both without path", settings.ModeBoth, "", []string{"otlp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settings.Default()
			s.ExportMode = tt.mode
			s.LogFilePath = tt.path
			s.Endpoint = unreachable

			exporters := NewFromSettings(context.Background(), s)
			defer NewMultiplexer(exporters).Shutdown(context.Background())

			var names []string
			for _, e := range exporters {
				names = append(names, e.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestNewFromSettings_Types(t *testing.T) {
	quietDiagnostics(t)
	s := settings.Default()
	s.ExportMode = settings.ModeBoth
	s.LogFilePath = filepath.Join(t.TempDir(), "app.log")
	s.Endpoint = "http://" + closedPort(t)

	exporters := NewFromSettings(context.Background(), s)
	require.Len(t, exporters, 2)

	file, ok := exporters[0].(*FileExporter)
	require.True(t, ok)
	assert.Equal(t, s.LogFilePath, file.Path())

	otlp, ok := exporters[1].(*OTLPExporter)
	require.True(t, ok)
	assert.False(t, otlp.Enabled(), "unreachable collector must yield a disabled exporter")
}
