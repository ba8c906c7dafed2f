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

	"github.com/AleutianAI/scaffold/pkg/logging"
	"github.com/AleutianAI/scaffold/pkg/settings"
)

// NewFromSettings builds the exporters that s asks for, file first.
//
// # Description
//
// The file exporter is created when the mode includes file and a log file
// path is set. The OTLP exporter is created when the mode includes otlp; an
// unreachable collector still yields a (disabled) OTLP exporter. If the
// OTLP exporter cannot be constructed at all, the error is logged and the
// exporter is left out. A disabled mode returns an empty slice.
//
// # Examples
//
//	OTEL_LOGS_EXPORT_MODE=file LOG_FILE_PATH=/tmp/app.log  -> [file]
//	OTEL_LOGS_EXPORT_MODE=file                            -> []
//	OTEL_LOGS_EXPORT_MODE=both LOG_FILE_PATH=/tmp/app.log  -> [file, otlp]
func NewFromSettings(ctx context.Context, s settings.Settings) []LogExporter {
	diag := logging.Diagnostic("exporter")
	exporters := make([]LogExporter, 0, 2)

	if s.ExportMode.IncludesFile() {
		if s.LogFilePath != "" {
			exporters = append(exporters, NewFileExporter(s.LogFilePath))
		} else {
			diag.Warn("File export requested but LOG_FILE_PATH is empty", "mode", string(s.ExportMode))
		}
	}

	if s.ExportMode.IncludesOTLP() {
		otlp, err := NewOTLPExporter(ctx, OTLPConfig{
			Endpoint:       s.Endpoint,
			ServiceName:    s.ServiceName,
			ServiceVersion: s.ServiceVersion,
			Timeout:        s.ExportTimeout,
		})
		if err != nil {
			diag.Error("Failed to create OTLP exporter", "endpoint", s.Endpoint, "error", err)
		} else {
			exporters = append(exporters, otlp)
		}
	}

	return exporters
}
