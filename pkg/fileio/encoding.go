// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fileio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
)

// Encoding names a character encoding, e.g. "utf-8" or "cp932".
type Encoding string

// Common encodings.
const (
	UTF8  Encoding = "utf-8"
	CP932 Encoding = "cp932"
	EUCJP Encoding = "euc-jp"
)

var (
	// ErrUnknownEncoding is returned for encoding names that cannot be resolved.
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrDecode matches every EncodingError raised while decoding bytes.
	ErrDecode = errors.New("decode error")

	// ErrEncode matches every EncodingError raised while encoding text.
	ErrEncode = errors.New("encode error")
)

// EncodingError reports bytes that are invalid in an encoding, or text that
// the encoding cannot represent.
type EncodingError struct {
	Op       string // "decode" or "encode"
	Path     string
	Encoding Encoding
	Offset   int // byte offset of the first bad sequence, or -1
	Err      error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("%s %s as %s", e.Op, e.Path, e.Encoding)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDecode or ErrEncode matching Op.
func (e *EncodingError) Is(target error) bool {
	switch target {
	case ErrDecode:
		return e.Op == "decode"
	case ErrEncode:
		return e.Op == "encode"
	}
	return false
}

// aliases maps names that htmlindex does not know.
var aliases = map[string]encoding.Encoding{
	"cp932":      japanese.ShiftJIS,
	"ms932":      japanese.ShiftJIS,
	"sjis":       japanese.ShiftJIS,
	"shift_jis":  japanese.ShiftJIS,
	"eucjp":      japanese.EUCJP,
	"latin-1":    charmap.ISO8859_1,
	"latin1":     charmap.ISO8859_1,
	"iso-8859-1": charmap.ISO8859_1,
}

// isUTF8 reports whether name is UTF-8, which is handled without x/text so
// invalid input is rejected instead of replaced.
func isUTF8(name string) bool {
	switch name {
	case "utf-8", "utf8", "":
		return true
	}
	return false
}

func lookup(enc Encoding) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(string(enc)))
	if e, ok := aliases[name]; ok {
		return e, nil
	}
	e, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
	return e, nil
}

// decode converts raw bytes to a string.
func decode(path string, data []byte, enc Encoding) (string, error) {
	name := strings.ToLower(strings.TrimSpace(string(enc)))
	if isUTF8(name) {
		if !utf8.Valid(data) {
			return "", &EncodingError{Op: "decode", Path: path, Encoding: enc, Offset: invalidUTF8Offset(data)}
		}
		return string(data), nil
	}

	e, err := lookup(enc)
	if err != nil {
		return "", err
	}
	out, err := e.NewDecoder().Bytes(data)
	if err != nil {
		return "", &EncodingError{Op: "decode", Path: path, Encoding: enc, Offset: -1, Err: err}
	}
	// x/text substitutes U+FFFD for invalid sequences instead of failing.
	// A U+FFFD that was really in the input survives re-encoding unchanged.
	if bytes.ContainsRune(out, utf8.RuneError) && !roundTrips(e, out, data) {
		return "", &EncodingError{Op: "decode", Path: path, Encoding: enc, Offset: -1,
			Err: errors.New("invalid byte sequence")}
	}
	return string(out), nil
}

// roundTrips reports whether encoding decoded with e reproduces raw.
func roundTrips(e encoding.Encoding, decoded, raw []byte) bool {
	again, err := e.NewEncoder().Bytes(decoded)
	return err == nil && bytes.Equal(again, raw)
}

// encode converts a string to raw bytes.
func encode(path, content string, enc Encoding) ([]byte, error) {
	name := strings.ToLower(strings.TrimSpace(string(enc)))
	if isUTF8(name) {
		if !utf8.ValidString(content) {
			return nil, &EncodingError{Op: "encode", Path: path, Encoding: enc, Offset: invalidUTF8Offset([]byte(content))}
		}
		return []byte(content), nil
	}

	e, err := lookup(enc)
	if err != nil {
		return nil, err
	}
	out, err := e.NewEncoder().Bytes([]byte(content))
	if err != nil {
		return nil, &EncodingError{Op: "encode", Path: path, Encoding: enc, Offset: -1, Err: err}
	}
	return out, nil
}

func invalidUTF8Offset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
