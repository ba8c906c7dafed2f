// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/scaffold/pkg/fileio"
)

// ErrUnsupportedFormat is returned for file extensions convert cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type dataFormat int

const (
	formatJSON dataFormat = iota
	formatYAML
)

func formatOf(path string) (dataFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return 0, fmt.Errorf("%w: %q (want .json, .yaml or .yml)", ErrUnsupportedFormat, path)
}

// runConvert reads src and writes its content to dst, picking the codec
// for each side from the file extension.
func runConvert(cmd *cobra.Command, flags *cliFlags, src, dst string) error {
	in, err := formatOf(src)
	if err != nil {
		return err
	}
	out, err := formatOf(dst)
	if err != nil {
		return err
	}

	var data any
	switch in {
	case formatJSON:
		err = fileio.ReadJSON(src, &data)
	case formatYAML:
		err = fileio.ReadYAML(src, &data)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	switch out {
	case formatJSON:
		opts := []fileio.JSONOption{fileio.WithASCII(flags.ascii)}
		if cmd.Flags().Changed("indent") {
			opts = append(opts, fileio.WithIndent(flags.indent))
		}
		err = fileio.WriteJSON(dst, data, opts...)
	case formatYAML:
		opts := []fileio.YAMLOption{fileio.WithFlowStyle(flags.flow)}
		if cmd.Flags().Changed("indent") {
			opts = append(opts, fileio.WithYAMLIndent(flags.indent))
		}
		err = fileio.WriteYAML(dst, data, opts...)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Converted %s -> %s\n", src, dst)
	return err
}
