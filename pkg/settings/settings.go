// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings resolves application settings from the environment.
//
// # Description
//
// Settings is a flat record read once at startup and passed by value. Each
// field comes from one environment variable, falling back to a default:
//
//	OTEL_LOGS_EXPORT_MODE  disabled | file | otlp | both   (disabled)
//	OTEL_ENDPOINT          collector endpoint              (http://localhost:4317)
//	OTEL_SERVICE_NAME      service.name resource value     (scaffold)
//	OTEL_SERVICE_VERSION   service.version resource value  (1.0.0)
//	OTEL_EXPORT_TIMEOUT    export timeout in milliseconds  (30000)
//	LOG_FILE_PATH          file exporter destination       (empty)
//	LOG_LEVEL              minimum log level               (info)
//	LOG_FORMAT             console | json                  (console)
//	LOG_INCLUDE_CALLER     add filename/func_name/lineno   (false)
//
// LoadFile additionally reads a YAML file whose keys are the lowercase
// field names (export_mode, endpoint, ...). Environment variables win over
// the file.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ExportMode selects which log exporters are active.
type ExportMode string

const (
	ModeDisabled ExportMode = "disabled"
	ModeFile     ExportMode = "file"
	ModeOTLP     ExportMode = "otlp"
	ModeBoth     ExportMode = "both"
)

// IncludesFile reports whether the mode enables the file exporter.
func (m ExportMode) IncludesFile() bool { return m == ModeFile || m == ModeBoth }

// IncludesOTLP reports whether the mode enables the OTLP exporter.
func (m ExportMode) IncludesOTLP() bool { return m == ModeOTLP || m == ModeBoth }

// Default values.
const (
	DefaultEndpoint       = "http://localhost:4317"
	DefaultServiceName    = "scaffold"
	DefaultServiceVersion = "1.0.0"
	DefaultExportTimeout  = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Settings is the resolved configuration. It is immutable by convention:
// functions receive and return it by value.
type Settings struct {
	ExportMode     ExportMode `validate:"oneof=disabled file otlp both"`
	Endpoint       string     `validate:"required_unless=ExportMode disabled"`
	ServiceName    string     `validate:"required"`
	ServiceVersion string
	ExportTimeout  time.Duration
	LogFilePath    string
	LogLevel       string `validate:"oneof=debug info warn warning error critical"`
	LogFormat      string `validate:"oneof=console json"`
	IncludeCaller  bool
}

// ExportEnabled reports whether any exporter is requested.
func (s Settings) ExportEnabled() bool { return s.ExportMode != ModeDisabled }

// Default returns the settings used when no variable is set.
func Default() Settings {
	return Settings{
		ExportMode:     ModeDisabled,
		Endpoint:       DefaultEndpoint,
		ServiceName:    DefaultServiceName,
		ServiceVersion: DefaultServiceVersion,
		ExportTimeout:  DefaultExportTimeout,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
}

// =============================================================================
// Errors
// =============================================================================

// FieldError describes one invalid setting.
type FieldError struct {
	Env    string // environment variable name
	Value  string
	Reason string
}

// ValidationError lists every invalid setting found by Load.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s=%q: %s", f.Env, f.Value, f.Reason)
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(env, value, reason string) {
	e.Fields = append(e.Fields, FieldError{Env: env, Value: value, Reason: reason})
}

// =============================================================================
// Loading
// =============================================================================

// binding ties a viper key to its environment variable.
type binding struct {
	key   string
	env   string
	field string
}

var bindings = []binding{
	{"export_mode", "OTEL_LOGS_EXPORT_MODE", "ExportMode"},
	{"endpoint", "OTEL_ENDPOINT", "Endpoint"},
	{"service_name", "OTEL_SERVICE_NAME", "ServiceName"},
	{"service_version", "OTEL_SERVICE_VERSION", "ServiceVersion"},
	{"export_timeout", "OTEL_EXPORT_TIMEOUT", "ExportTimeout"},
	{"log_file_path", "LOG_FILE_PATH", "LogFilePath"},
	{"log_level", "LOG_LEVEL", "LogLevel"},
	{"log_format", "LOG_FORMAT", "LogFormat"},
	{"include_caller", "LOG_INCLUDE_CALLER", "IncludeCaller"},
}

var validate = validator.New()

// Load resolves settings from the environment.
func Load() (Settings, error) {
	return load(newViper())
}

// LoadFile resolves settings from a YAML file and the environment.
// Environment variables take precedence over values in the file.
func LoadFile(path string) (Settings, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
	}
	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("export_mode", string(d.ExportMode))
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("service_name", d.ServiceName)
	v.SetDefault("service_version", d.ServiceVersion)
	v.SetDefault("export_timeout", d.ExportTimeout.Milliseconds())
	v.SetDefault("log_file_path", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("include_caller", false)
	for _, b := range bindings {
		_ = v.BindEnv(b.key, b.env)
	}
	return v
}

func load(v *viper.Viper) (Settings, error) {
	verr := &ValidationError{}

	s := Settings{
		ExportMode:     ExportMode(normalize(v.GetString("export_mode"))),
		Endpoint:       strings.TrimSpace(v.GetString("endpoint")),
		ServiceName:    strings.TrimSpace(v.GetString("service_name")),
		ServiceVersion: strings.TrimSpace(v.GetString("service_version")),
		LogFilePath:    strings.TrimSpace(v.GetString("log_file_path")),
		LogLevel:       normalize(v.GetString("log_level")),
		LogFormat:      normalize(v.GetString("log_format")),
	}

	// Numbers and booleans are parsed here rather than with viper's lenient
	// casts, which turn garbage into zero.
	rawTimeout := strings.TrimSpace(v.GetString("export_timeout"))
	ms, err := strconv.ParseInt(rawTimeout, 10, 64)
	switch {
	case err != nil:
		verr.add("OTEL_EXPORT_TIMEOUT", rawTimeout, "must be an integer number of milliseconds")
	case ms < 0:
		verr.add("OTEL_EXPORT_TIMEOUT", rawTimeout, "must not be negative")
	default:
		s.ExportTimeout = time.Duration(ms) * time.Millisecond
	}

	rawCaller := strings.TrimSpace(v.GetString("include_caller"))
	if rawCaller != "" {
		b, err := strconv.ParseBool(rawCaller)
		if err != nil {
			verr.add("LOG_INCLUDE_CALLER", rawCaller, "must be a boolean")
		}
		s.IncludeCaller = b
	}

	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Settings{}, fmt.Errorf("validate settings: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(envFor(fe.StructField()), fmt.Sprint(fe.Value()), reason(fe))
		}
	}

	if len(verr.Fields) > 0 {
		sort.SliceStable(verr.Fields, func(i, j int) bool {
			return order(verr.Fields[i].Env) < order(verr.Fields[j].Env)
		})
		return Settings{}, verr
	}
	return s, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func envFor(field string) string {
	for _, b := range bindings {
		if b.field == field {
			return b.env
		}
	}
	return field
}

func order(env string) int {
	for i, b := range bindings {
		if b.env == env {
			return i
		}
	}
	return len(bindings)
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "required", "required_unless":
		return "must not be empty"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
