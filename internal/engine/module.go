// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/internal/registry"
	"github.com/invowk/livemod/pkg/module"
	"github.com/invowk/livemod/pkg/resource"
)

// Phase is the protocol state a module is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseTranslating Phase = "translating"
	PhaseDeclaring   Phase = "declaring"
	PhaseResolving   Phase = "resolving-dependencies"
	PhaseWiring      Phase = "wiring"
	PhaseExecuting   Phase = "executing"
	PhasePropagating Phase = "propagating"
)

type (
	// UnloadOptions controls Unload and Reload.
	UnloadOptions struct {
		// ForgetDependents also unloads every transitive importer.
		ForgetDependents bool
		// ForgetEnvironment drops the module's top-level binding environment.
		ForgetEnvironment bool
	}

	// ChangeOptions controls ChangeSource.
	ChangeOptions struct {
		// Persist writes the new source back through the resource after Wiring.
		Persist bool
	}

	// Module is the façade over one module id. It stays valid across
	// unload and reload; the live record behind it comes and goes.
	Module struct {
		sys    *System
		id     string
		format module.Format

		// Cached together; invalidated whenever the source changes.
		source      string
		hasSource   bool
		translation *module.Translation

		// env is the evaluation recorder. It survives Unload unless
		// ForgetEnvironment is set.
		env map[string]any

		phase Phase
		// rec is nil while the module is not in the live set.
		rec *record
	}

	// record is the live state of a loaded module.
	record struct {
		loading bool

		// dependencies[i] is bound by setters[i].
		dependencies []*Module
		setters      []module.Setter
		// importers is deduplicated by id.
		importers []*Module
		execute   func(ctx context.Context) error

		exports *module.Exports
		pending []change
		// defined collects the names written by the current execution.
		defined map[string]bool

		evaluationDepth int
		locked          bool
	}

	change struct {
		name    string
		value   any
		removed bool
	}
)

var _ module.Recorder = (*Module)(nil)

// ID returns the canonical module id.
func (m *Module) ID() string { return m.id }

// Format returns the module format derived from the id's extension.
func (m *Module) Format() module.Format { return m.format }

// Phase returns the protocol phase the module is currently in.
func (m *Module) Phase() Phase {
	if m.phase == "" {
		return PhaseIdle
	}
	return m.phase
}

// IsLoaded reports whether the module is in the live set and finished its first load.
func (m *Module) IsLoaded() bool { return m.rec != nil && !m.rec.loading }

// Exports returns the live export table, or nil when the module is not loaded.
func (m *Module) Exports() *module.Exports {
	if m.rec == nil {
		return nil
	}
	return m.rec.exports
}

// Dependencies returns the modules this module imports, in import order.
func (m *Module) Dependencies() []*Module {
	if m.rec == nil {
		return nil
	}
	return slices.Clone(m.rec.dependencies)
}

// Importers returns the modules that import this module.
func (m *Module) Importers() []*Module {
	if m.rec == nil {
		return nil
	}
	return slices.Clone(m.rec.importers)
}

// Package returns the registered package owning the module, or nil when
// the module is ungrouped.
func (m *Module) Package() *registry.Package {
	url := m.sys.mapping.classify(m.id)
	if url == Ungrouped {
		return nil
	}
	p, ok := m.sys.reg.Package(url)
	if !ok {
		return nil
	}
	return p
}

// Subscribe registers fn for events about this module.
func (m *Module) Subscribe(fn event.Handler, kinds ...event.Kind) (unsubscribe func()) {
	return m.sys.bus.SubscribeSubject(m.id, fn, kinds...)
}

// Source returns the module source, reading it through the resource on first use.
func (m *Module) Source(ctx context.Context) (string, error) {
	if m.hasSource {
		return m.source, nil
	}
	text, err := m.sys.res.Read(ctx, m.id)
	if err != nil {
		return "", err
	}
	m.setSource(text)
	return text, nil
}

// Translation returns the cached translation of the current source.
func (m *Module) Translation() (module.Translation, bool) {
	if m.translation == nil {
		return module.Translation{}, false
	}
	return *m.translation, true
}

func (m *Module) setSource(text string) {
	m.source, m.hasSource, m.translation = text, true, nil
}

func (m *Module) discardCaches() {
	m.source, m.hasSource, m.translation = "", false, nil
}

func (m *Module) environment() map[string]any {
	if m.env == nil {
		m.env = make(map[string]any)
	}
	return m.env
}

// Define records a top-level assignment of the module body. The value is
// always written to the environment and queued as an export change. The
// queue is flushed right away when exportImmediately is set or the module
// body is not running; otherwise it is flushed when the body returns.
func (m *Module) Define(name string, value any, exportImmediately bool, meta module.Meta) {
	m.environment()[name] = value
	rec := m.rec
	if rec == nil {
		return
	}
	if rec.defined != nil {
		rec.defined[name] = true
	}
	rec.enqueue(change{name: name, value: value})
	m.sys.logger.Debug("define", "id", m.id, "name", name, "kind", meta.Kind)
	if exportImmediately || rec.evaluationDepth == 0 {
		m.flush()
	}
}

// Bind sets a local binding without exporting it.
func (m *Module) Bind(name string, value any) {
	m.environment()[name] = value
}

// Undefine drops a binding. An exported name is queued for removal and
// flushed like a definition, so importers see the table without it.
func (m *Module) Undefine(name string) {
	delete(m.env, name)
	rec := m.rec
	if rec == nil {
		return
	}
	if rec.defined != nil {
		delete(rec.defined, name)
	}
	if !rec.exports.Has(name) && !slices.ContainsFunc(rec.pending, func(c change) bool { return c.name == name }) {
		return
	}
	rec.enqueue(change{name: name, removed: true})
	m.sys.logger.Debug("undefine", "id", m.id, "name", name)
	if rec.evaluationDepth == 0 {
		m.flush()
	}
}

// Lookup reads a binding from the environment.
func (m *Module) Lookup(name string) (any, bool) {
	v, ok := m.env[name]
	return v, ok
}

// Load makes sure the module is live and has executed once, and returns
// its export table. Loading a live module returns the same table without
// executing again; a module reached again through an import cycle while
// it is still loading returns its partially filled table.
func (m *Module) Load(ctx context.Context) (*module.Exports, error) {
	if m.rec != nil {
		return m.rec.exports, nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.sys.timeout)
	defer cancel()

	m.rec = &record{loading: true, exports: module.NewExports(m.id)}
	m.sys.logger.Debug("loading module", "id", m.id)
	source, err := m.Source(ctx)
	if err != nil {
		err = m.sourceError(err)
	} else {
		_, err = m.run(ctx, source, true)
	}
	if err != nil {
		m.rollback()
		err = m.timeoutOr(ctx, err)
		m.sys.logger.Error("load failed", "id", m.id, "err", err)
		return nil, err
	}
	m.rec.loading = false
	m.sys.mapping.insert(m.id)
	m.sys.bus.Publish(event.Event{Kind: event.ModuleLoaded, ID: m.id})
	return m.rec.exports, nil
}

// rollback drops a record whose first load failed, along with any edges
// its Wiring created.
func (m *Module) rollback() {
	if m.rec == nil {
		return
	}
	for _, dep := range m.rec.dependencies {
		dep.removeImporter(m)
	}
	m.rec = nil
}

func (m *Module) timeoutOr(ctx context.Context, err error) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{ID: m.id, Timeout: m.sys.timeout, Err: err}
	}
	return err
}

func (m *Module) sourceError(err error) error {
	if errors.Is(err, resource.ErrNotFound) {
		return &ResolutionError{Spec: m.id, Err: fmt.Errorf("%w: %w", ErrModuleNotFound, err)}
	}
	return err
}

// Unload removes the module from the live set and discards its caches.
// With ForgetDependents every transitive importer is unloaded first, so
// a later Load re-executes the whole affected subgraph from source.
func (m *Module) Unload(opts UnloadOptions) {
	if opts.ForgetDependents {
		for _, dep := range m.Dependents() {
			if dep != m {
				dep.unloadOne(opts.ForgetEnvironment)
			}
		}
	}
	m.unloadOne(opts.ForgetEnvironment)
}

func (m *Module) unloadOne(forgetEnvironment bool) {
	if forgetEnvironment {
		m.env = nil
	}
	if m.rec == nil {
		m.discardCaches()
		return
	}
	for _, dep := range m.rec.dependencies {
		dep.removeImporter(m)
	}
	m.rec = nil
	m.discardCaches()
	m.sys.logger.Debug("unloaded module", "id", m.id)
	m.sys.bus.Publish(event.Event{Kind: event.ModuleUnloaded, ID: m.id})
}

// Reload is Unload followed by Load.
func (m *Module) Reload(ctx context.Context, opts UnloadOptions) (*module.Exports, error) {
	m.Unload(opts)
	return m.Load(ctx)
}

// ChangeSource replaces the module source. A live module is re-executed
// and its new exports are pushed to its importers; a module that is not
// loaded only has its cached source replaced. module-changed is published
// exactly once, carrying the error if the change failed.
func (m *Module) ChangeSource(ctx context.Context, source string, opts ChangeOptions) (err error) {
	persist := opts.Persist || m.sys.persist
	defer func() {
		m.sys.bus.Publish(event.Event{Kind: event.ModuleChanged, ID: m.id, Source: source, Err: err})
	}()

	if m.rec == nil {
		m.setSource(source)
		if persist {
			return m.persist(ctx, source)
		}
		return nil
	}
	if m.rec.loading || m.Phase() != PhaseIdle {
		return fmt.Errorf("change %s: %w", m.id, ErrModuleBusy)
	}

	wired, err := m.run(ctx, source, false)
	if wired && persist {
		if perr := m.persist(ctx, source); perr != nil && err == nil {
			err = perr
		}
	}
	if err != nil {
		m.sys.logger.Error("change failed", "id", m.id, "wired", wired, "err", err)
	}
	return err
}

func (m *Module) persist(ctx context.Context, source string) error {
	if err := m.sys.res.Write(ctx, m.id, source); err != nil {
		return fmt.Errorf("persist %s: %w", m.id, err)
	}
	return nil
}

func (m *Module) addImporter(imp *Module) {
	if m.rec == nil || slices.Contains(m.rec.importers, imp) {
		return
	}
	m.rec.importers = append(m.rec.importers, imp)
}

func (m *Module) removeImporter(imp *Module) {
	if m.rec == nil {
		return
	}
	m.rec.importers = slices.DeleteFunc(m.rec.importers, func(x *Module) bool { return x == imp })
}

// enqueue schedules a change, keeping first-definition order and the latest value.
func (r *record) enqueue(c change) {
	for i := range r.pending {
		if r.pending[i].name == c.name {
			r.pending[i] = c
			return
		}
	}
	r.pending = append(r.pending, c)
}
