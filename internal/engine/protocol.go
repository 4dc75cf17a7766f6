// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/invowk/livemod/pkg/module"
)

// declared is the output of the Translating and Declaring phases.
type declared struct {
	translation module.Translation
	setters     []module.Setter
	execute     func(ctx context.Context) error
}

// run drives one protocol pass for source: translate, declare, resolve and
// load dependencies, wire, execute and propagate. Nothing on m changes
// before Wiring; wired reports whether that point was reached.
func (m *Module) run(ctx context.Context, source string, firstLoad bool) (wired bool, err error) {
	defer m.enter(PhaseTranslating)()

	d, err := m.declare(ctx, source)
	if err != nil {
		return false, err
	}

	m.phase = PhaseResolving
	deps := make([]*Module, len(d.translation.Imports))
	for i, spec := range d.translation.Imports {
		id, err := m.sys.Resolve(ctx, spec, m.id)
		if err != nil {
			return false, err
		}
		dep := m.sys.Module(id)
		if _, err := dep.Load(ctx); err != nil {
			return false, err
		}
		deps[i] = dep
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.phase = PhaseWiring
	m.setSource(source)
	m.translation = &d.translation
	m.wire(deps, d.setters, d.execute, firstLoad)

	m.phase = PhaseExecuting
	return true, m.evaluate(ctx)
}

// enter sets the module phase and returns a function restoring it.
func (m *Module) enter(p Phase) func() {
	prev := m.phase
	m.phase = p
	return func() { m.phase = prev }
}

func (m *Module) declare(ctx context.Context, source string) (declared, error) {
	log := m.sys.logger.With("id", m.id)
	switch m.format {
	case module.Script:
		if m.sys.scripts == nil {
			return declared{}, &TranslationError{ID: m.id, Err: ErrNoTransformer}
		}
		log.Debug("translating script")
		text, err := m.sys.scripts.Translate(ctx, source, m.id)
		if err != nil {
			return declared{}, &TranslationError{ID: m.id, Err: err}
		}
		m.phase = PhaseDeclaring
		run := m.sys.scripts
		return declared{
			translation: module.Translation{Text: text},
			execute: func(ctx context.Context) error {
				return run.Run(ctx, text, m.id, m)
			},
		}, nil

	default:
		if m.sys.transformer == nil {
			return declared{}, &TranslationError{ID: m.id, Err: ErrNoTransformer}
		}
		log.Debug("translating")
		tr, err := m.sys.transformer.Translate(ctx, source, m.id)
		if err != nil {
			return declared{}, &TranslationError{ID: m.id, Err: err}
		}
		m.phase = PhaseDeclaring
		log.Debug("declaring", "imports", len(tr.Imports))
		decl, err := m.sys.transformer.Declare(ctx, tr.Text, m.id, m)
		if err != nil {
			return declared{}, &DeclarationError{ID: m.id, Err: err}
		}
		if len(decl.Setters) != len(tr.Imports) {
			return declared{}, &DeclarationError{ID: m.id, Err: fmt.Errorf(
				"%d setters for %d imports", len(decl.Setters), len(tr.Imports))}
		}
		if decl.Execute == nil {
			return declared{}, &DeclarationError{ID: m.id, Err: fmt.Errorf("missing execute function")}
		}
		return declared{translation: tr, setters: decl.Setters, execute: decl.Execute}, nil
	}
}

// wire replaces the dependency and setter lists with the new imports in
// import order. Dependencies that are no longer imported lose this module
// as an importer; the rest keep their edge.
func (m *Module) wire(deps []*Module, setters []module.Setter, execute func(context.Context) error, firstLoad bool) {
	rec := m.rec

	nextDeps := slices.Clone(deps)
	nextSetters := slices.Clone(setters)
	var dropped []*Module
	for _, dep := range rec.dependencies {
		if !containsModule(nextDeps, dep) && !containsModule(dropped, dep) {
			dropped = append(dropped, dep)
		}
	}

	rec.dependencies, rec.setters, rec.execute = nextDeps, nextSetters, execute
	for _, dep := range dropped {
		dep.removeImporter(m)
	}
	for _, dep := range nextDeps {
		dep.addImporter(m)
	}
	if firstLoad {
		// Live modules still holding this id from before an unload take
		// their importer edge back.
		for _, other := range m.sys.live() {
			if other != m && containsModule(other.rec.dependencies, m) {
				m.addImporter(other)
			}
		}
	}
	m.sys.logger.Debug("wired", "id", m.id, "dependencies", len(nextDeps), "dropped", len(dropped))
}

// evaluate runs the setters and the body, then flushes the export changes
// deferred during the run. After a successful run, exports the run did
// not define are removed.
func (m *Module) evaluate(ctx context.Context) error {
	rec := m.rec
	rec.defined = make(map[string]bool)

	err := m.execute(ctx)
	if err != nil {
		m.flush()
		return &ExecutionError{ID: m.id, Err: err}
	}

	if removed := rec.exports.Retain(rec.defined); len(removed) > 0 {
		m.sys.logger.Debug("pruned exports", "id", m.id, "names", removed)
		if len(rec.pending) == 0 {
			m.withLock(m.propagate)
		}
	}
	m.flush()
	return nil
}

func (m *Module) execute(ctx context.Context) (err error) {
	rec := m.rec
	rec.evaluationDepth++
	defer func() {
		rec.evaluationDepth--
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	for i, dep := range rec.dependencies {
		if exports := dep.Exports(); exports != nil {
			rec.setters[i](exports)
		}
	}
	return rec.execute(ctx)
}

// flush applies pending export changes and propagates them. A locked
// module keeps its queue; the pass that holds the lock picks it up.
func (m *Module) flush() {
	rec := m.rec
	if rec == nil || rec.locked || len(rec.pending) == 0 {
		return
	}
	m.withLock(func() {
		for len(rec.pending) > 0 {
			batch := rec.pending
			rec.pending = nil
			rec.exports.Unseal()
			for _, c := range batch {
				if c.removed {
					rec.exports.Delete(c.name)
					continue
				}
				if !rec.exports.SetIfExists(c.name, c.value) {
					// The name is new and the table unsealed, so this cannot fail.
					_ = rec.exports.DefineNew(c.name, c.value)
				}
			}
			rec.exports.Seal()
			m.propagate()
		}
	})
}

func (m *Module) withLock(fn func()) {
	rec := m.rec
	rec.locked = true
	defer m.enter(PhasePropagating)()
	defer func() { rec.locked = false }()
	fn()
}

// propagate hands the full export table to the matching setter of every
// importer that is idle and unlocked. A module imported along two paths
// is reached once per path.
func (m *Module) propagate() {
	rec := m.rec
	for _, imp := range slices.Clone(rec.importers) {
		irec := imp.rec
		if irec == nil || irec.evaluationDepth > 0 || irec.locked {
			continue
		}
		for i, dep := range irec.dependencies {
			if dep == m && m.rec != nil {
				irec.setters[i](m.rec.exports)
			}
		}
	}
}

func containsModule(list []*Module, m *Module) bool {
	return slices.Contains(list, m)
}
