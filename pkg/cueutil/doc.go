// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes schema-checked CUE (and JSON, which is valid CUE)
// into Go values.
//
// Both the package descriptor reader and the configuration loader follow the
// same three steps: compile the embedded schema, compile the user data and
// unify it with the schema's root definition, then validate and decode.
//
//	//go:embed descriptor_schema.cue
//	var schema []byte
//
//	d, err := cueutil.Decode[Descriptor](schema, data, "#Descriptor",
//	    cueutil.WithFilename("package.json"),
//	    cueutil.WithConcrete(false),
//	)
package cueutil
