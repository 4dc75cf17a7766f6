// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/internal/registry"
	"github.com/invowk/livemod/pkg/module"
	"github.com/invowk/livemod/pkg/resource"
	"github.com/invowk/livemod/pkg/transform/cuemod"
	"github.com/invowk/livemod/pkg/transform/shscript"
)

// countingTransformer counts body executions and setter calls per module id.
type countingTransformer struct {
	inner       module.Transformer
	runs        map[string]int
	setterCalls map[string]int
}

func newCountingTransformer() *countingTransformer {
	return &countingTransformer{
		inner:       cuemod.New(),
		runs:        make(map[string]int),
		setterCalls: make(map[string]int),
	}
}

func (c *countingTransformer) Translate(ctx context.Context, source, id string) (module.Translation, error) {
	return c.inner.Translate(ctx, source, id)
}

func (c *countingTransformer) Declare(ctx context.Context, text, id string, rec module.Recorder) (*module.Declaration, error) {
	d, err := c.inner.Declare(ctx, text, id, rec)
	if err != nil {
		return nil, err
	}
	for i, s := range d.Setters {
		d.Setters[i] = func(e *module.Exports) {
			c.setterCalls[id]++
			s(e)
		}
	}
	execute := d.Execute
	d.Execute = func(ctx context.Context) error {
		c.runs[id]++
		return execute(ctx)
	}
	return d, nil
}

type fixture struct {
	ctx    context.Context
	res    *resource.FS
	reg    *registry.Registry
	sys    *System
	counts *countingTransformer
	events []event.Event
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), res: resource.NewMemory(), counts: newCountingTransformer()}
	for url, text := range files {
		f.write(t, url, text)
	}
	f.reg = registry.New(registry.Options{Resource: f.res})
	f.sys = New(Options{
		Registry:    f.reg,
		Transformer: f.counts,
		Scripts:     shscript.New(),
		LoadTimeout: time.Second,
	})
	f.reg.Bus().Subscribe(func(e event.Event) { f.events = append(f.events, e) })
	t.Cleanup(f.sys.Close)
	return f
}

func (f *fixture) write(t *testing.T, url, text string) {
	t.Helper()
	if err := f.res.Write(context.Background(), url, text); err != nil {
		t.Fatalf("Write(%s) error: %v", url, err)
	}
}

func (f *fixture) load(t *testing.T, spec string) *Module {
	t.Helper()
	m, err := f.sys.Load(f.ctx, spec)
	if err != nil {
		t.Fatalf("Load(%s) error: %v", spec, err)
	}
	return m
}

func (f *fixture) change(t *testing.T, id, source string) {
	t.Helper()
	if err := f.sys.ChangeSource(f.ctx, id, source, ChangeOptions{}); err != nil {
		t.Fatalf("ChangeSource(%s) error: %v", id, err)
	}
}

func (f *fixture) count(kind event.Kind, subject string) int {
	n := 0
	for _, e := range f.events {
		if e.Kind == kind && e.Subject() == subject {
			n++
		}
	}
	return n
}

func exported(t *testing.T, m *Module, name string) any {
	t.Helper()
	exports := m.Exports()
	if exports == nil {
		t.Fatalf("%s is not loaded", m.ID())
	}
	v, ok := exports.Get(name)
	if !ok {
		t.Fatalf("%s does not export %q (has %v)", m.ID(), name, exports.Names())
	}
	return v
}

func bound(t *testing.T, m *Module, name string) any {
	t.Helper()
	v, ok := m.Lookup(name)
	if !ok {
		t.Fatalf("%s has no binding %q", m.ID(), name)
	}
	return v
}

func ids(mods []*Module) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.ID())
	}
	return out
}
