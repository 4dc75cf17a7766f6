// SPDX-License-Identifier: MPL-2.0

// Package cuemod is the declarative module transformer. A module is a CUE
// body whose regular top-level fields are its exports, preceded by header
// lines naming what it imports and re-exports:
//
//	import { port, host as addr } from "config"
//	export { version } from "./meta"
//
//	url: "http://\(addr):\(port)"
//
// Imported names are visible in the body as plain identifiers. Re-exported
// names become exports of the module and follow the dependency live.
// Hidden (_x) fields and definitions (#X) are not exported.
package cuemod

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/invowk/livemod/pkg/cueutil"
	"github.com/invowk/livemod/pkg/module"
)

// Transformer implements module.Transformer for CUE modules.
type Transformer struct{}

var _ module.Transformer = Transformer{}

// New returns a CUE module transformer.
func New() Transformer { return Transformer{} }

// Translate validates the header and the body syntax and returns the
// normalized text with its import specifiers in header order.
func (Transformer) Translate(ctx context.Context, source, id string) (module.Translation, error) {
	if err := ctx.Err(); err != nil {
		return module.Translation{}, err
	}
	clauses, body, err := splitHeader(source)
	if err != nil {
		return module.Translation{}, err
	}
	if _, err := parseBody(body, id); err != nil {
		return module.Translation{}, err
	}

	var sb strings.Builder
	imports := make([]string, 0, len(clauses))
	for _, c := range clauses {
		sb.WriteString(c.String())
		sb.WriteByte('\n')
		imports = append(imports, c.spec)
	}
	return module.Translation{Text: sb.String() + body, Imports: imports}, nil
}

// Declare builds one setter per header clause and the execute function.
// Import setters bind local names; re-export setters define exports.
func (Transformer) Declare(ctx context.Context, text, id string, rec module.Recorder) (*module.Declaration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clauses, body, err := splitHeader(text)
	if err != nil {
		return nil, err
	}

	var locals []string
	setters := make([]module.Setter, 0, len(clauses))
	for _, c := range clauses {
		setters = append(setters, setterFor(c, rec))
		if !c.reexport {
			for _, b := range c.names {
				locals = append(locals, b.local)
			}
		}
	}

	execute := func(ctx context.Context) error {
		return run(ctx, body, id, locals, rec)
	}
	return &module.Declaration{Setters: setters, Execute: execute}, nil
}

func setterFor(c clause, rec module.Recorder) module.Setter {
	return func(exports *module.Exports) {
		for _, b := range c.names {
			v, ok := exports.Get(b.from)
			if !ok {
				// The dependency dropped the name; so does this module.
				rec.Undefine(b.local)
				continue
			}
			if c.reexport {
				rec.Define(b.local, v, false, module.Meta{Kind: module.KindReexport, From: c.spec})
			} else {
				rec.Bind(b.local, v)
			}
		}
	}
}

// run compiles the body against the current bindings and defines every
// regular top-level field. An import whose dependency has not defined it
// yet (an import cycle still loading) is visible as top (_); fields that
// depend on it are incomplete and fail to decode.
func run(ctx context.Context, body, id string, locals []string, rec module.Recorder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cctx := cuecontext.New()
	opts := []cue.BuildOption{cue.Filename(id)}
	if len(locals) > 0 {
		scope := cctx.CompileString("{}")
		for _, name := range locals {
			val := cctx.CompileString("_")
			if v, ok := rec.Lookup(name); ok {
				val = cctx.Encode(v)
			}
			scope = scope.FillPath(cue.ParsePath(name), val)
		}
		if err := scope.Err(); err != nil {
			return fmt.Errorf("bind imports: %w", err)
		}
		opts = append(opts, cue.Scope(scope))
	}
	v := cctx.CompileString(body, opts...)
	if err := v.Err(); err != nil {
		return cueutil.FormatError(err, id)
	}

	iter, err := v.Fields()
	if err != nil {
		return cueutil.FormatError(err, id)
	}
	type field struct {
		name  string
		value any
	}
	var fields []field
	for iter.Next() {
		var val any
		if err := iter.Value().Decode(&val); err != nil {
			return cueutil.FormatError(err, id)
		}
		fields = append(fields, field{name: iter.Selector().Unquoted(), value: val})
	}
	for _, f := range fields {
		rec.Define(f.name, f.value, false, module.Meta{Kind: module.KindBinding})
	}
	return nil
}

// Exported returns the export names a body defines, sorted. It is used by
// tooling that lists a module's surface without executing it.
func Exported(source, id string) ([]string, error) {
	_, body, err := splitHeader(source)
	if err != nil {
		return nil, err
	}
	f, err := parseBody(body, id)
	if err != nil {
		return nil, err
	}
	names := fieldNames(f)
	slices.Sort(names)
	return names, nil
}
