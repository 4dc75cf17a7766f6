// SPDX-License-Identifier: MPL-2.0

package cuemod

import (
	"strings"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/invowk/livemod/pkg/cueutil"
)

func parseBody(body, id string) (*ast.File, error) {
	f, err := parser.ParseFile(id, body)
	if err != nil {
		return nil, cueutil.FormatError(err, id)
	}
	return f, nil
}

// fieldNames lists the regular top-level field names of f.
func fieldNames(f *ast.File) []string {
	var names []string
	for _, decl := range f.Decls {
		field, ok := decl.(*ast.Field)
		if !ok || field.Constraint != token.ILLEGAL {
			continue
		}
		name, _, err := ast.LabelName(field.Label)
		if err != nil || strings.HasPrefix(name, "_") || strings.HasPrefix(name, "#") {
			continue
		}
		names = append(names, name)
	}
	return names
}
