// SPDX-License-Identifier: MPL-2.0

// Package shscript runs script-format modules: POSIX shell files executed
// in-process by mvdan.cc/sh. Every variable the script exports (export
// NAME=value) becomes an export of the module. Scripts take no part in
// live re-binding; a change re-runs the whole file.
package shscript

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/livemod/pkg/module"
)

type (
	// Runner implements module.ScriptRunner.
	Runner struct {
		stdout io.Writer
		stderr io.Writer
		env    []string
	}

	// Option configures a Runner.
	Option func(*Runner)
)

var _ module.ScriptRunner = (*Runner)(nil)

// WithOutput sets where script stdout and stderr go. Both default to io.Discard.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout, r.stderr = stdout, stderr
	}
}

// WithEnv sets the "NAME=value" environment scripts start with. It is empty by default.
func WithEnv(pairs ...string) Option {
	return func(r *Runner) { r.env = slices.Clone(pairs) }
}

// New returns a script runner.
func New(opts ...Option) *Runner {
	r := &Runner{stdout: io.Discard, stderr: io.Discard}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Translate parses the script and returns it in canonical printed form.
func (r *Runner) Translate(ctx context.Context, source, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := syntax.NewParser().Parse(strings.NewReader(source), id)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, file); err != nil {
		return "", fmt.Errorf("print %s: %w", id, err)
	}
	return buf.String(), nil
}

// Run executes translated text and defines every exported variable, in
// name order, on rec.
func (r *Runner) Run(ctx context.Context, text, id string, rec module.Recorder) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(text), id)
	if err != nil {
		return err
	}
	runner, err := interp.New(
		interp.StdIO(nil, r.stdout, r.stderr),
		interp.Env(expand.ListEnviron(r.env...)),
	)
	if err != nil {
		return fmt.Errorf("create interpreter: %w", err)
	}
	if err := runner.Run(ctx, file); err != nil {
		return err
	}

	inherited := make(map[string]bool, len(r.env))
	for _, pair := range r.env {
		name, _, _ := strings.Cut(pair, "=")
		inherited[name] = true
	}
	for _, name := range slices.Sorted(maps.Keys(runner.Vars)) {
		v := runner.Vars[name]
		if !v.Exported || !v.IsSet() || inherited[name] {
			continue
		}
		rec.Define(name, value(v), false, module.Meta{Kind: module.KindScript})
	}
	return nil
}

func value(v expand.Variable) any {
	switch v.Kind {
	case expand.Indexed:
		return slices.Clone(v.List)
	case expand.Associative:
		return maps.Clone(v.Map)
	default:
		return v.String()
	}
}
