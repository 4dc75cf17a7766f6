// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/pkg/descriptor"
	"github.com/invowk/livemod/pkg/resource"
	"github.com/invowk/livemod/pkg/semver"
)

// Package is one versioned, named unit rooted at a directory url.
// Packages are created lazily by PackageAt and populated by Register.
type Package struct {
	reg *Registry
	url string

	// The fields below are guarded by reg.mu.
	registered bool
	dev        bool
	name       string
	version    string
	desc       *descriptor.Descriptor
}

// URL returns the package root.
func (p *Package) URL() string { return p.url }

// Name returns the registered name.
func (p *Package) Name() string {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.name
}

// Version returns the registered version, or "" for an unversioned package.
func (p *Package) Version() string {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.version
}

// Dev reports whether the package was registered from a dev package root.
func (p *Package) Dev() bool {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.dev
}

// Main returns the entry module path relative to the package root.
func (p *Package) Main() string {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.desc.EffectiveMain()
}

// MainID returns the absolute id of the entry module, without extension resolution.
func (p *Package) MainID() string {
	return path.Join(p.url, p.Main())
}

// Descriptor returns a copy of the effective descriptor.
func (p *Package) Descriptor() *descriptor.Descriptor {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return descriptor.Merge(p.desc, nil)
}

// DependencyRange returns the range p declares for name, searching
// dependencies before devDependencies.
func (p *Package) DependencyRange(name string) (string, bool) {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	if p.desc == nil {
		return "", false
	}
	if rng, ok := p.desc.Dependencies[name]; ok {
		return rng, true
	}
	rng, ok := p.desc.DevDependencies[name]
	return rng, ok
}

// Aliases returns the alias map with every target resolved to an absolute url.
func (p *Package) Aliases() map[string]string {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	if p.desc == nil || len(p.desc.Livemod.PackageMap) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.desc.Livemod.PackageMap))
	for name, target := range p.desc.Livemod.PackageMap {
		out[name] = p.aliasURL(target)
	}
	return out
}

func (p *Package) markDev() {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	p.dev = true
}

// aliasURL resolves an alias target against the package root.
func (p *Package) aliasURL(target string) string {
	if isAbsolute(target) {
		return resource.Clean(target)
	}
	return path.Join(p.url, target)
}

// Register merges the discovered descriptor with explicit (which may be nil)
// and indexes the package. Alias sub-packages are registered recursively
// unless their url is already in loadStack, in which case they are skipped
// with a CycleNotice. A nil loadStack starts a new chain at p.
func (p *Package) Register(ctx context.Context, explicit *descriptor.Descriptor, loadStack []string) error {
	return p.register(ctx, nil, explicit, loadStack)
}

// register is Register with defaults that yield to the discovered descriptor.
func (p *Package) register(ctx context.Context, defaults, explicit *descriptor.Descriptor, loadStack []string) error {
	if len(loadStack) == 0 {
		loadStack = []string{p.url}
	}
	r := p.reg

	discovered, err := descriptor.Read(ctx, r.res, p.url)
	if err != nil {
		return fmt.Errorf("register %s: %w", p.url, err)
	}
	desc := descriptor.Merge(descriptor.Merge(defaults, discovered), explicit)
	name := desc.Name
	if name == "" {
		name = path.Base(p.url)
	}
	version := desc.Version
	if version != "" && !semver.Valid(version) {
		r.logger.Warn("ignoring invalid package version", "url", p.url, "version", version)
		version = ""
	}

	r.mu.Lock()
	oldName, oldVersion, wasRegistered := p.name, p.version, p.registered
	p.name, p.version, p.desc, p.registered = name, version, desc, true
	r.index(p, oldName, oldVersion, wasRegistered)
	aliases := make(map[string]string, len(desc.Livemod.PackageMap))
	for alias, target := range desc.Livemod.PackageMap {
		aliases[alias] = p.aliasURL(target)
	}
	r.mu.Unlock()

	r.logger.Info("registered package", "name", name, "version", version, "url", p.url)
	r.bus.Publish(event.Event{Kind: event.PackageRegistered, URL: p.url})

	for _, alias := range slices.Sorted(maps.Keys(aliases)) {
		target := aliases[alias]
		if slices.Contains(loadStack, target) {
			notice := CycleNotice{URL: target, Stack: slices.Clone(loadStack)}
			r.logger.Warn(notice.String(), "alias", alias, "url", p.url)
			r.bus.Publish(event.Event{Kind: event.CycleNotice, URL: target, Stack: notice.Stack})
			continue
		}
		sub := r.PackageAt(target)
		if p.Dev() {
			sub.markDev()
		}
		if err := sub.Register(ctx, nil, append(slices.Clone(loadStack), target)); err != nil {
			return fmt.Errorf("register alias %q of %s: %w", alias, p.url, err)
		}
	}
	return nil
}

// Remove runs the registry's remove hooks (unloading every module attributed
// to the package), then drops the package from the registry and publishes
// package-removed.
func (p *Package) Remove(ctx context.Context) error {
	r := p.reg
	r.mu.RLock()
	hooks := slices.Clone(r.removeHooks)
	r.mu.RUnlock()
	for _, h := range hooks {
		if err := h.fn(ctx, p); err != nil {
			return fmt.Errorf("remove %s: %w", p.url, err)
		}
	}

	r.mu.Lock()
	if p.registered {
		r.unindex(p, p.name, p.version)
	}
	p.registered = false
	delete(r.byURL, p.url)
	delete(r.scanned, p.url)
	r.mu.Unlock()

	r.logger.Info("removed package", "url", p.url)
	r.bus.Publish(event.Event{Kind: event.PackageRemoved, URL: p.url})
	return nil
}

func isAbsolute(spec string) bool {
	return strings.HasPrefix(spec, "/") || hasScheme(spec)
}

// hasScheme reports whether spec starts with "scheme://".
func hasScheme(spec string) bool {
	i := strings.Index(spec, "://")
	if i <= 0 {
		return false
	}
	for j, c := range spec[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
