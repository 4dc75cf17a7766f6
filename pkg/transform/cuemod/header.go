// SPDX-License-Identifier: MPL-2.0

package cuemod

import (
	"fmt"
	"regexp"
	"strings"
)

type (
	// clause is one header line: an import or a re-export from one specifier.
	clause struct {
		reexport bool
		spec     string
		names    []binding
	}

	// binding maps an exported name of the dependency to a local name.
	binding struct {
		from  string
		local string
	}
)

var (
	headerLine = regexp.MustCompile(`^\s*(import|export)\s*\{([^}]*)\}\s*from\s*"([^"]+)"\s*;?\s*$`)
	headerHint = regexp.MustCompile(`^\s*(import|export)\s*\{`)
	identifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// splitHeader separates header clauses from the CUE body. Header lines
// are replaced by blank lines so body positions keep their line numbers.
func splitHeader(source string) ([]clause, string, error) {
	lines := strings.Split(source, "\n")
	var clauses []clause
	for i, line := range lines {
		if !headerHint.MatchString(line) {
			continue
		}
		c, err := parseClause(line)
		if err != nil {
			return nil, "", fmt.Errorf("line %d: %w", i+1, err)
		}
		clauses = append(clauses, c)
		lines[i] = ""
	}
	return clauses, strings.Join(lines, "\n"), nil
}

func parseClause(line string) (clause, error) {
	m := headerLine.FindStringSubmatch(line)
	if m == nil {
		return clause{}, fmt.Errorf("malformed header %q", strings.TrimSpace(line))
	}
	c := clause{reexport: m[1] == "export", spec: m[3]}
	for _, part := range strings.Split(m[2], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		var b binding
		switch {
		case len(fields) == 1:
			b = binding{from: fields[0], local: fields[0]}
		case len(fields) == 3 && fields[1] == "as":
			b = binding{from: fields[0], local: fields[2]}
		default:
			return clause{}, fmt.Errorf("malformed binding %q", part)
		}
		if !identifier.MatchString(b.from) || !identifier.MatchString(b.local) {
			return clause{}, fmt.Errorf("invalid identifier in %q", part)
		}
		c.names = append(c.names, b)
	}
	if len(c.names) == 0 {
		return clause{}, fmt.Errorf("empty binding list in %q", strings.TrimSpace(line))
	}
	return c, nil
}

// String renders the clause in canonical form.
func (c clause) String() string {
	kw := "import"
	if c.reexport {
		kw = "export"
	}
	parts := make([]string, 0, len(c.names))
	for _, b := range c.names {
		if b.from == b.local {
			parts = append(parts, b.from)
		} else {
			parts = append(parts, b.from+" as "+b.local)
		}
	}
	return fmt.Sprintf("%s { %s } from %q", kw, strings.Join(parts, ", "), c.spec)
}
