// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fileio reads and writes text, JSON and YAML files.
//
// # Description
//
// Text operations take an explicit character encoding. JSON and YAML
// operations are layered on the UTF-8 text operations. Every write creates
// missing parent directories first.
//
// # Errors
//
// Failures are returned to the caller with their cause intact, so callers
// can branch on them:
//
//	errors.Is(err, fs.ErrNotExist)   // missing file
//	errors.Is(err, fs.ErrPermission) // access denied
//	errors.Is(err, fileio.ErrDecode) // bytes invalid for the encoding
//	errors.Is(err, fileio.ErrEncode) // text not representable
//	errors.Is(err, fileio.ErrParse)  // malformed JSON or YAML
//
// Each failure is also logged through the "fileio" logger before it is
// returned. Nothing is retried.
package fileio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/scaffold/pkg/logging"
)

// ErrParse matches malformed JSON or YAML content.
var ErrParse = errors.New("parse error")

// parseError wraps a decoder error so both ErrParse and the decoder's own
// error type stay reachable.
type parseError struct {
	format string
	path   string
	err    error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parse %s %s: %v", e.format, e.path, e.err)
}

func (e *parseError) Unwrap() error { return e.err }

func (e *parseError) Is(target error) bool { return target == ErrParse }

var logger = logging.GetLogger("fileio")

// =============================================================================
// Text
// =============================================================================

// ReadFile reads path and decodes it with enc.
func ReadFile(path string, enc Encoding) (string, error) {
	logger.Debug("Reading file", "path", path, "encoding", string(enc))

	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Error("File not found", "path", path, "error", err)
		case errors.Is(err, fs.ErrPermission):
			logger.Error("Permission denied reading file", "path", path, "error", err)
		default:
			logger.Error("Failed to read file", "path", path, "error", err)
		}
		return "", err
	}

	content, err := decode(path, data, enc)
	if err != nil {
		logger.Error("Encoding error reading file", "path", path, "encoding", string(enc), "error", err)
		return "", err
	}

	logger.Info("File read successfully", "path", path, "size", len(content))
	return content, nil
}

// WriteFile encodes content with enc and writes it to path, creating missing
// parent directories.
func WriteFile(path, content string, enc Encoding) error {
	data, err := encode(path, content, enc)
	if err != nil {
		logger.Error("Encoding error writing file", "path", path, "encoding", string(enc), "error", err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logWriteError(path, err)
		return err
	}

	logger.Debug("Writing file", "path", path, "encoding", string(enc), "size", len(content))
	if err := os.WriteFile(path, data, 0644); err != nil {
		logWriteError(path, err)
		return err
	}

	logger.Info("File written successfully", "path", path, "size", len(content))
	return nil
}

func logWriteError(path string, err error) {
	if errors.Is(err, fs.ErrPermission) {
		logger.Error("Permission denied writing file", "path", path, "error", err)
		return
	}
	logger.Error("Failed to write file", "path", path, "error", err)
}

// =============================================================================
// JSON
// =============================================================================

type jsonOptions struct {
	indent int
	ascii  bool
}

// JSONOption configures WriteJSON.
type JSONOption func(*jsonOptions)

// WithIndent sets the number of spaces per indentation level. Zero writes
// compact JSON. Default: 4.
func WithIndent(n int) JSONOption {
	return func(o *jsonOptions) { o.indent = n }
}

// WithASCII escapes every non-ASCII character as \uXXXX when true.
// Default: false.
func WithASCII(ascii bool) JSONOption {
	return func(o *jsonOptions) { o.ascii = ascii }
}

// ReadJSON reads path and decodes it into v.
//
//	var cfg map[string]any
//	if err := fileio.ReadJSON("config.json", &cfg); err != nil { ... }
func ReadJSON(path string, v any) error {
	logger.Debug("Reading JSON file", "path", path)
	content, err := ReadFile(path, UTF8)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), v); err != nil {
		args := []any{"path", path, "error", err}
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			line, col := position(content, syntax.Offset)
			args = append(args, "line", line, "column", col)
		}
		logger.Error("JSON decode error", args...)
		return &parseError{format: "json", path: path, err: err}
	}

	logger.Info("JSON file parsed successfully", "path", path, "type", fmt.Sprintf("%T", v))
	return nil
}

// WriteJSON encodes v as JSON and writes it to path.
func WriteJSON(path string, v any, opts ...JSONOption) error {
	o := jsonOptions{indent: 4}
	for _, opt := range opts {
		opt(&o)
	}
	logger.Debug("Writing JSON file", "path", path, "data_type", fmt.Sprintf("%T", v))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if o.indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", o.indent))
	}
	if err := enc.Encode(v); err != nil {
		logger.Error("JSON serialization error", "path", path, "data_type", fmt.Sprintf("%T", v), "error", err)
		return fmt.Errorf("encode json %s: %w", path, err)
	}

	content := strings.TrimSuffix(buf.String(), "\n")
	if o.ascii {
		content = escapeNonASCII(content)
	}
	if err := WriteFile(path, content, UTF8); err != nil {
		return err
	}

	logger.Info("JSON file written successfully", "path", path)
	return nil
}

// ReadJSONLines reads a JSON Lines file, one object per non-blank line.
func ReadJSONLines(path string) ([]map[string]any, error) {
	content, err := ReadFile(path, UTF8)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			logger.Error("JSON decode error", "path", path, "line", lineNo, "error", err)
			return nil, &parseError{format: "json", path: fmt.Sprintf("%s:%d", path, lineNo), err: err}
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return records, nil
}

// escapeNonASCII rewrites runes above 0x7F as \uXXXX, using surrogate pairs
// outside the Basic Multilingual Plane. Only valid inside JSON strings,
// which is the only place encoding/json emits non-ASCII.
func escapeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r <= 0xFFFF:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		}
	}
	return b.String()
}

// position converts a byte offset to a 1-based line and column.
func position(content string, offset int64) (line, col int) {
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	prefix := content[:offset]
	line = strings.Count(prefix, "\n") + 1
	col = int(offset) - strings.LastIndex(prefix, "\n")
	return line, col
}

// =============================================================================
// YAML
// =============================================================================

type yamlOptions struct {
	indent int
	flow   bool
}

// YAMLOption configures WriteYAML.
type YAMLOption func(*yamlOptions)

// WithYAMLIndent sets the indentation width. Default: 2.
func WithYAMLIndent(n int) YAMLOption {
	return func(o *yamlOptions) { o.indent = n }
}

// WithFlowStyle writes collections in flow style ({a: 1, b: [x, y]}) when
// true. Default: false (block style).
func WithFlowStyle(flow bool) YAMLOption {
	return func(o *yamlOptions) { o.flow = flow }
}

// ReadYAML reads path and decodes it into v. An empty document leaves v
// unchanged.
func ReadYAML(path string, v any) error {
	logger.Debug("Reading YAML file", "path", path)
	content, err := ReadFile(path, UTF8)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal([]byte(content), v); err != nil {
		logger.Error("YAML parse error", "path", path, "error", err)
		return &parseError{format: "yaml", path: path, err: err}
	}

	logger.Info("YAML file parsed successfully", "path", path, "type", fmt.Sprintf("%T", v))
	return nil
}

// WriteYAML encodes v as YAML and writes it to path. Non-ASCII text is
// written literally.
func WriteYAML(path string, v any, opts ...YAMLOption) error {
	o := yamlOptions{indent: 2}
	for _, opt := range opts {
		opt(&o)
	}
	logger.Debug("Writing YAML file", "path", path, "data_type", fmt.Sprintf("%T", v))

	content, err := marshalYAML(v, o)
	if err != nil {
		logger.Error("YAML serialization error", "path", path, "data_type", fmt.Sprintf("%T", v), "error", err)
		return fmt.Errorf("encode yaml %s: %w", path, err)
	}
	if err := WriteFile(path, content, UTF8); err != nil {
		return err
	}

	logger.Info("YAML file written successfully", "path", path)
	return nil
}

func marshalYAML(v any, o yamlOptions) (content string, err error) {
	// yaml.v3 panics on some unsupported values (e.g. channels).
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cannot marshal %T: %v", v, r)
		}
	}()

	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return "", err
	}
	if o.flow {
		setFlowStyle(&node)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(o.indent)
	if err := enc.Encode(&node); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func setFlowStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style |= yaml.FlowStyle
	}
	for _, c := range n.Content {
		setFlowStyle(c)
	}
}
