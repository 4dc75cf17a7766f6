// SPDX-License-Identifier: MPL-2.0

// Package engine is the live module graph: it loads modules through a
// source transformer, wires them to the modules they import, and on a
// source change re-executes only the changed module and pushes its new
// exports into every importer's bindings.
//
// A System is the explicit environment every operation runs in; several
// can coexist. A System is not safe for concurrent use: callers serialize
// operations on it (the registry it reads from is safe on its own).
package engine

import (
	"context"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/internal/registry"
	"github.com/invowk/livemod/pkg/module"
	"github.com/invowk/livemod/pkg/resource"
)

// DefaultLoadTimeout bounds a single Load when Options.LoadTimeout is zero.
const DefaultLoadTimeout = 10 * time.Second

type (
	// Options configures a System.
	Options struct {
		// Registry resolves bare specifiers and owns packages. Required.
		Registry *registry.Registry
		// Resource reads and persists module sources. Defaults to the registry's resource.
		Resource resource.Resource
		// Transformer handles declarative modules.
		Transformer module.Transformer
		// Scripts handles script modules.
		Scripts module.ScriptRunner
		// Extensions are appended, in order, to ids that name no existing
		// file. Defaults to DefaultExtensions.
		Extensions []string
		// ScriptExtensions mark ids whose modules use the script format.
		// Defaults to DefaultScriptExtensions.
		ScriptExtensions []string
		// LoadTimeout bounds each Load. Defaults to DefaultLoadTimeout.
		LoadTimeout time.Duration
		// PersistChanges makes ChangeSource write new sources back by default.
		PersistChanges bool
		// Logger defaults to a discarding logger.
		Logger *log.Logger
	}

	// System is one live module environment.
	System struct {
		reg         *registry.Registry
		res         resource.Resource
		transformer module.Transformer
		scripts     module.ScriptRunner
		bus         *event.Bus
		logger      *log.Logger
		timeout     time.Duration
		extensions  []string
		scriptExts  []string
		persist     bool

		// modules memoizes one façade per id, loaded or not.
		modules map[string]*Module
		mapping *mapping
		unsub   func()
		unhook  func()
	}
)

var (
	// DefaultExtensions are tried when an id has no file of its own.
	DefaultExtensions = []string{".cue", ".sh"}
	// DefaultScriptExtensions select the script format.
	DefaultScriptExtensions = []string{".sh"}
)

// New creates a System over opts.Registry. It subscribes to the registry's
// bus to keep the package mapping fresh and installs the registry remove
// hook that unloads a package's modules before the package goes away.
func New(opts Options) *System {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	res := opts.Resource
	if res == nil {
		res = opts.Registry.Resource()
	}
	s := &System{
		reg:         opts.Registry,
		res:         res,
		transformer: opts.Transformer,
		scripts:     opts.Scripts,
		bus:         opts.Registry.Bus(),
		logger:      logger,
		timeout:     opts.LoadTimeout,
		extensions:  opts.Extensions,
		scriptExts:  opts.ScriptExtensions,
		persist:     opts.PersistChanges,
		modules:     make(map[string]*Module),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultLoadTimeout
	}
	if s.extensions == nil {
		s.extensions = DefaultExtensions
	}
	if s.scriptExts == nil {
		s.scriptExts = DefaultScriptExtensions
	}
	s.mapping = newMapping(s.reg.URLs)
	s.unsub = s.bus.Subscribe(func(event.Event) { s.mapping.clear() },
		event.PackageRegistered, event.PackageRemoved)
	s.unhook = s.reg.AddRemoveHook(s.unloadPackage)
	return s
}

// Close detaches the System from its registry.
func (s *System) Close() {
	s.unsub()
	s.unhook()
}

// Registry returns the package registry.
func (s *System) Registry() *registry.Registry { return s.reg }

// Bus returns the notification bus.
func (s *System) Bus() *event.Bus { return s.bus }

// Module returns the memoized façade for id, creating it on first reference.
func (s *System) Module(id string) *Module {
	id = resource.Clean(id)
	if m, ok := s.modules[id]; ok {
		return m
	}
	m := &Module{sys: s, id: id, format: s.formatOf(id)}
	s.modules[id] = m
	return m
}

func (s *System) formatOf(id string) module.Format {
	if slices.Contains(s.scriptExts, path.Ext(id)) {
		return module.Script
	}
	return module.Declarative
}

// Resolve turns an import specifier into a module id. parentID is the
// importing module ("" for top-level requests). Ids without an extension
// get the first configured extension that names an existing file.
func (s *System) Resolve(ctx context.Context, spec, parentID string) (string, error) {
	parent := registry.Parent{ID: parentID}
	if parentID != "" {
		parent.Package = s.Module(parentID).Package()
	}
	id, err := s.reg.ResolvePath(spec, parent)
	if err != nil {
		return "", err
	}
	return s.withExtension(ctx, spec, resource.Clean(id))
}

func (s *System) withExtension(ctx context.Context, spec, id string) (string, error) {
	if slices.Contains(s.extensions, path.Ext(id)) {
		return id, nil
	}
	for _, ext := range s.extensions {
		ok, err := s.res.Exists(ctx, id+ext)
		if err != nil {
			return "", &ResolutionError{Spec: spec, Err: err}
		}
		if ok {
			return id + ext, nil
		}
	}
	return id, nil
}

// Load resolves spec and loads the module it names.
func (s *System) Load(ctx context.Context, spec string) (*Module, error) {
	id, err := s.Resolve(ctx, spec, "")
	if err != nil {
		return nil, err
	}
	m := s.Module(id)
	if _, err := m.Load(ctx); err != nil {
		return m, err
	}
	return m, nil
}

// Unload unloads the module with the given id.
func (s *System) Unload(id string, opts UnloadOptions) {
	s.Module(id).Unload(opts)
}

// Reload unloads then loads the module with the given id.
func (s *System) Reload(ctx context.Context, id string, opts UnloadOptions) (*module.Exports, error) {
	return s.Module(id).Reload(ctx, opts)
}

// ChangeSource replaces the source of the module with the given id.
func (s *System) ChangeSource(ctx context.Context, id, source string, opts ChangeOptions) error {
	return s.Module(id).ChangeSource(ctx, source, opts)
}

// RemovePackage removes a package, unloading its modules first.
func (s *System) RemovePackage(ctx context.Context, url string) error {
	return s.reg.RemovePackage(ctx, url)
}

// unloadPackage is the registry remove hook.
func (s *System) unloadPackage(_ context.Context, p *registry.Package) error {
	for _, m := range s.live() {
		if s.mapping.classify(m.id) == p.URL() {
			s.logger.Debug("unloading module of removed package", "id", m.id, "url", p.URL())
			m.Unload(UnloadOptions{})
		}
	}
	return nil
}

// live returns the loaded modules (including ones mid-load) ordered by id.
func (s *System) live() []*Module {
	var out []*Module
	for _, m := range s.modules {
		if m.rec != nil {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b *Module) int { return strings.Compare(a.id, b.id) })
	return out
}
