// SPDX-License-Identifier: MPL-2.0

// Package module defines the contract between the module engine and the
// source transformers that turn module text into something executable.
//
// A declarative transformer produces, for each module, a Translation (the
// transformed text plus its static import specifiers) and then a
// Declaration: one Setter per import specifier, in the same order, and an
// Execute function for the body. Setters receive the full export table of
// the dependency and bind the importer's local names; Execute writes every
// top-level binding through the Recorder so the engine can batch and
// propagate export changes.
//
// Script-format modules are only translated and run; they take no part in
// live re-binding.
package module

import (
	"context"
	"fmt"
)

// Format distinguishes modules that support live re-binding from plain scripts.
type Format int

const (
	// Declarative modules expose setters and support live re-binding.
	Declarative Format = iota
	// Script modules are translated and run once per load.
	Script
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case Declarative:
		return "declarative"
	case Script:
		return "script"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Meta kinds passed with Recorder.Define.
const (
	KindBinding  = "binding"
	KindReexport = "reexport"
	KindScript   = "script"
)

type (
	// Meta describes the origin of a top-level write.
	Meta struct {
		Kind string
		// From is the import specifier a re-export came from.
		From string
	}

	// Translation is the output of Transformer.Translate.
	Translation struct {
		// Text is the transformed, executable form of the module.
		Text string
		// Imports lists the static import specifiers in declaration order.
		Imports []string
	}

	// Setter rebinds an importer's local names from a dependency's exports.
	Setter func(exports *Exports)

	// Declaration is the evaluated form of a translated module.
	Declaration struct {
		// Setters has one entry per import specifier, in Translation.Imports order.
		Setters []Setter
		// Execute runs the module body.
		Execute func(ctx context.Context) error
	}

	// Recorder is the live top-level binding environment of a module.
	Recorder interface {
		// Define records a top-level assignment and schedules it as an
		// export change. exportImmediately forces a flush even while the
		// module body is executing.
		Define(name string, value any, exportImmediately bool, meta Meta)
		// Bind sets a local binding (an imported name) without exporting it.
		Bind(name string, value any)
		// Undefine drops a binding and, when the module exports the name,
		// schedules its removal from the export table.
		Undefine(name string)
		// Lookup reads a binding from the environment.
		Lookup(name string) (any, bool)
	}

	// Transformer turns declarative module source into a Declaration.
	Transformer interface {
		Translate(ctx context.Context, source, id string) (Translation, error)
		Declare(ctx context.Context, text, id string, rec Recorder) (*Declaration, error)
	}

	// ScriptRunner translates and runs script-format modules.
	ScriptRunner interface {
		Translate(ctx context.Context, source, id string) (string, error)
		Run(ctx context.Context, text, id string, rec Recorder) error
	}
)
