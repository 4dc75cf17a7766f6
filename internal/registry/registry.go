// SPDX-License-Identifier: MPL-2.0

// Package registry discovers and indexes versioned packages and resolves
// import specifiers and name+range requests to concrete packages.
//
// A Registry is safe for concurrent use. Full rescans (Update) are
// collapsed so that a call arriving while a scan is in flight waits for
// and shares that scan's result. Incremental mutations (AddPackageDir,
// RemovePackage) only recompute the latest pointer of the affected name.
package registry

import (
	"context"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/pkg/resource"
	"github.com/invowk/livemod/pkg/semver"
)

// Latest is the range keyword that selects the highest registered version.
const Latest = "latest"

type (
	// Roots lists the directories scanned by Update.
	Roots struct {
		// Collections are directories of name-dirs, each holding version sub-dirs.
		Collections []string
		// Packages are individual package directories.
		Packages []string
		// DevPackages are individual package directories registered as dev packages.
		DevPackages []string
	}

	// Options configures a Registry.
	Options struct {
		// Resource reads descriptors and lists directories. Required.
		Resource resource.Resource
		// Roots are the directories scanned by Update.
		Roots Roots
		// Bus receives package-registered, package-removed and cycle notices.
		// A private bus is created when nil.
		Bus *event.Bus
		// Logger defaults to a discarding logger.
		Logger *log.Logger
	}

	// RemoveHook runs before a package leaves the registry. Each module
	// engine adds one that unloads every module it attributes to the package.
	RemoveHook func(ctx context.Context, p *Package) error

	// Registry indexes packages by url and by name/version.
	Registry struct {
		res    resource.Resource
		roots  Roots
		bus    *event.Bus
		logger *log.Logger

		mu sync.RWMutex
		// byURL holds every package created so far, registered or not.
		byURL map[string]*Package
		// byName is the name -> {latest, versions} index of registered packages.
		byName map[string]*versionSet
		// scanned holds the urls found by the last Update.
		scanned map[string]bool
		// removeHooks run in registration order; nextHook keys them.
		removeHooks []removeHook
		nextHook    uint64

		updates singleflight.Group
	}

	removeHook struct {
		id uint64
		fn RemoveHook
	}

	versionSet struct {
		latest   string
		versions map[string]*Package
	}
)

// New creates an empty registry. Call Update to scan the configured roots.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}
	return &Registry{
		res:     opts.Resource,
		roots:   opts.Roots,
		bus:     bus,
		logger:  logger,
		byURL:   make(map[string]*Package),
		byName:  make(map[string]*versionSet),
		scanned: make(map[string]bool),
	}
}

// Resource returns the resource the registry reads from.
func (r *Registry) Resource() resource.Resource { return r.res }

// Bus returns the bus registry notifications are published on.
func (r *Registry) Bus() *event.Bus { return r.bus }

// Roots returns the configured scan roots.
func (r *Registry) Roots() Roots { return r.roots }

// AddRemoveHook registers a hook Package.Remove runs before unregistering.
// Every module engine built on the registry adds one; the returned function
// removes it again.
func (r *Registry) AddRemoveHook(h RemoveHook) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHook++
	id := r.nextHook
	r.removeHooks = append(r.removeHooks, removeHook{id: id, fn: h})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.removeHooks = slices.DeleteFunc(r.removeHooks, func(e removeHook) bool { return e.id == id })
	}
}

// PackageAt returns the package rooted at url, creating an unregistered
// one if none exists yet.
func (r *Registry) PackageAt(url string) *Package {
	url = resource.Clean(url)
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byURL[url]; ok {
		return p
	}
	p := &Package{reg: r, url: url}
	r.byURL[url] = p
	return p
}

// Package returns the registered package rooted at url.
func (r *Registry) Package(url string) (*Package, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byURL[resource.Clean(url)]
	if !ok || !p.registered {
		return nil, false
	}
	return p, true
}

// Packages returns every registered package ordered by name, then version ascending.
func (r *Registry) Packages() []*Package {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Package
	for _, name := range slices.Sorted(maps.Keys(r.byName)) {
		set := r.byName[name]
		versions := slices.Collect(maps.Keys(set.versions))
		slices.SortFunc(versions, compareVersionKeys)
		for _, v := range versions {
			out = append(out, set.versions[v])
		}
	}
	return out
}

// URLs returns the urls of all registered packages, sorted.
func (r *Registry) URLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for url, p := range r.byURL {
		if p.registered {
			out = append(out, url)
		}
	}
	slices.Sort(out)
	return out
}

// Versions returns the registered version keys of name, ascending. An
// unversioned package appears as "".
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byName[name]
	if !ok {
		return nil
	}
	versions := slices.Collect(maps.Keys(set.versions))
	slices.SortFunc(versions, compareVersionKeys)
	return versions
}

// Lookup returns the package name@rng. An empty range or "latest" selects
// the latest version. Any other range must parse; a malformed range is a
// ResolutionError. The boolean is false when nothing matches.
func (r *Registry) Lookup(name, rng string) (*Package, bool, error) {
	var parsed *semver.Range
	if rng != "" && rng != Latest {
		var err error
		if parsed, err = semver.ParseRange(rng); err != nil {
			return nil, false, &ResolutionError{Spec: name, Range: rng, Err: err}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byName[name]
	if !ok {
		return nil, false, nil
	}
	if parsed == nil {
		p, ok := set.versions[set.latest]
		return p, ok, nil
	}
	best, ok := parsed.MaxSatisfying(slices.Collect(maps.Keys(set.versions)))
	if !ok {
		return nil, false, nil
	}
	return set.versions[best], true, nil
}

// index records p under its name and version. Callers hold r.mu.
func (r *Registry) index(p *Package, oldName, oldVersion string, wasRegistered bool) {
	if wasRegistered {
		r.unindex(p, oldName, oldVersion)
	}
	set, ok := r.byName[p.name]
	if !ok {
		set = &versionSet{versions: make(map[string]*Package)}
		r.byName[p.name] = set
	}
	set.versions[p.version] = p
	set.recomputeLatest()
}

// unindex drops p from the name/version index. Callers hold r.mu.
func (r *Registry) unindex(p *Package, name, version string) {
	set, ok := r.byName[name]
	if !ok {
		return
	}
	if set.versions[version] == p {
		delete(set.versions, version)
	}
	if len(set.versions) == 0 {
		delete(r.byName, name)
		return
	}
	set.recomputeLatest()
}

// recomputeLatest points latest at the highest valid version, or at the
// unversioned entry when no versioned sibling exists.
func (s *versionSet) recomputeLatest() {
	if best, ok := semver.Max(slices.Collect(maps.Keys(s.versions))); ok {
		s.latest = best
		return
	}
	s.latest = ""
	if _, ok := s.versions[""]; !ok {
		// Only unparseable version keys remain; pick one deterministically.
		keys := slices.Sorted(maps.Keys(s.versions))
		s.latest = keys[len(keys)-1]
	}
}

func compareVersionKeys(a, b string) int {
	va, errA := semver.Parse(a)
	vb, errB := semver.Parse(b)
	switch {
	case errA != nil && errB != nil:
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
