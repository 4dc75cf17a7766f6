// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"slices"

	"github.com/invowk/livemod/internal/dag"
)

type (
	// PackageInfo is one entry of ListPackages.
	PackageInfo struct {
		Name    string       `json:"name" yaml:"name" toml:"name"`
		Version string       `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
		URL     string       `json:"url" yaml:"url" toml:"url"`
		Modules []ModuleInfo `json:"modules" yaml:"modules" toml:"modules"`
	}

	// ModuleInfo is a live module and the ids it depends on.
	ModuleInfo struct {
		ID   string   `json:"id" yaml:"id" toml:"id"`
		Deps []string `json:"deps" yaml:"deps" toml:"deps"`
	}
)

// graph builds the forward dependency graph of the live set: an edge
// from each module to every module it imports.
func (s *System) graph() *dag.Graph {
	g := dag.New()
	for _, m := range s.live() {
		g.AddNode(m.id)
		for _, dep := range m.rec.dependencies {
			g.AddEdge(m.id, dep.id)
		}
	}
	return g
}

func (s *System) modulesOf(ids []string) []*Module {
	out := make([]*Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Module(id))
	}
	return out
}

// Dependents returns the hull of the module over the inverted dependency
// graph: the module itself followed by every module that transitively
// imports it. It is computed from the live set on every call.
func (m *Module) Dependents() []*Module {
	return m.sys.modulesOf(m.sys.graph().Invert().Hull(m.id))
}

// Requirements returns the hull of the module over the dependency graph:
// the module itself followed by everything it transitively imports.
func (m *Module) Requirements() []*Module {
	return m.sys.modulesOf(m.sys.graph().Hull(m.id))
}

// DependentsOf returns the ids of every module that transitively imports
// id, not including id.
func (s *System) DependentsOf(id string) []string {
	id = s.Module(id).id
	return s.graph().Invert().Hull(id)[1:]
}

// RequirementsOf returns the ids of every module id transitively imports,
// not including id.
func (s *System) RequirementsOf(id string) []string {
	id = s.Module(id).id
	return s.graph().Hull(id)[1:]
}

// RequireMap returns, for every live module, the ids it imports in import order.
func (s *System) RequireMap() map[string][]string {
	out := make(map[string][]string)
	for _, m := range s.live() {
		out[m.id] = dependencyIDs(m)
	}
	return out
}

// LoadedModules returns the ids of the live set, sorted.
func (s *System) LoadedModules() []string {
	var ids []string
	for _, m := range s.live() {
		ids = append(ids, m.id)
	}
	return ids
}

// LoadOrder returns the live modules with every module after the modules
// it imports. Import cycles yield a dag.CycleError.
func (s *System) LoadOrder() ([]string, error) {
	order, err := s.graph().TopologicalSort()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}

// ListPackages returns every registered package with the live modules the
// package mapping attributes to it. Live modules owned by no package are
// listed under a final Ungrouped entry.
func (s *System) ListPackages() []PackageInfo {
	byURL := make(map[string][]ModuleInfo)
	for _, m := range s.live() {
		url := s.mapping.classify(m.id)
		byURL[url] = append(byURL[url], ModuleInfo{ID: m.id, Deps: dependencyIDs(m)})
	}

	var out []PackageInfo
	for _, p := range s.reg.Packages() {
		out = append(out, PackageInfo{
			Name:    p.Name(),
			Version: p.Version(),
			URL:     p.URL(),
			Modules: nonNil(byURL[p.URL()]),
		})
	}
	if ungrouped := byURL[Ungrouped]; len(ungrouped) > 0 {
		out = append(out, PackageInfo{Name: Ungrouped, URL: Ungrouped, Modules: ungrouped})
	}
	return out
}

func dependencyIDs(m *Module) []string {
	ids := make([]string, 0, len(m.rec.dependencies))
	for _, dep := range m.rec.dependencies {
		ids = append(ids, dep.id)
	}
	return ids
}

func nonNil(mods []ModuleInfo) []ModuleInfo {
	if mods == nil {
		return []ModuleInfo{}
	}
	return mods
}
