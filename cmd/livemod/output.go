// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
)

var formats = []string{formatText, formatJSON, formatYAML, formatTOML}

// unknownFormatError reports a --format value with no encoder.
type unknownFormatError struct{ format string }

func (e *unknownFormatError) Error() string {
	return fmt.Sprintf("unknown output format %q (valid: %s)", e.format, strings.Join(formats, ", "))
}

// emit writes v in the requested format. Text output is produced by text;
// the structured formats encode v, which must be a struct so that toml has
// a top-level table.
func emit(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case formatText, "":
		return text(w)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTOML:
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		return enc.Encode(v)
	default:
		return &unknownFormatError{format: format}
	}
}

// formatValue renders an export value on one line.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case nil:
		return "null"
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// toSpec turns command-line paths into absolute module ids and leaves bare
// package specifiers alone.
func toSpec(arg string) string {
	if strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") || arg == "." || filepath.IsAbs(arg) {
		return absURL(arg)
	}
	if _, err := os.Stat(arg); err == nil {
		return absURL(arg)
	}
	return arg
}

func absURL(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.ToSlash(p)
}

func toURLs(dirs []string) []string {
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = filepath.ToSlash(d)
	}
	return out
}
