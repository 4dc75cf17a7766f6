// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrReadOnlyExport is returned when an importer tries to overwrite an export.
// ErrSealedExports is returned when a name is added to a sealed table.
var (
	ErrReadOnlyExport = errors.New("export is read-only")
	ErrSealedExports  = errors.New("export table is sealed")
)

// ExportError reports a rejected write to an export table.
type ExportError struct {
	Module string
	Name   string
	Err    error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("module %s: export %q: %v", e.Module, e.Name, e.Err)
}

// Unwrap returns the sentinel cause.
func (e *ExportError) Unwrap() error { return e.Err }

// Exports is the public export table of a module. Importers only read it;
// the engine writes through SetIfExists and DefineNew while propagating.
// Set is the external write path and always fails for defined names.
//
// An Exports value is not safe for concurrent use.
type Exports struct {
	owner  string
	values map[string]any
	order  []string
	sealed bool
}

// NewExports returns an empty, unsealed table owned by module id.
func NewExports(owner string) *Exports {
	return &Exports{owner: owner, values: make(map[string]any)}
}

// Get returns the value exported under name.
func (e *Exports) Get(name string) (any, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Has reports whether name is exported.
func (e *Exports) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Len returns the number of exported names.
func (e *Exports) Len() int { return len(e.values) }

// Names returns exported names in definition order.
func (e *Exports) Names() []string { return slices.Clone(e.order) }

// Snapshot copies the table into a plain map.
func (e *Exports) Snapshot() map[string]any { return maps.Clone(e.values) }

// SetIfExists overwrites an existing entry and reports whether it existed.
func (e *Exports) SetIfExists(name string, value any) bool {
	if _, ok := e.values[name]; !ok {
		return false
	}
	e.values[name] = value
	return true
}

// DefineNew adds a read-only entry. It fails when the table is sealed or the
// name already exists.
func (e *Exports) DefineNew(name string, value any) error {
	if _, ok := e.values[name]; ok {
		return &ExportError{Module: e.owner, Name: name, Err: ErrReadOnlyExport}
	}
	if e.sealed {
		return &ExportError{Module: e.owner, Name: name, Err: ErrSealedExports}
	}
	e.values[name] = value
	e.order = append(e.order, name)
	return nil
}

// Set is the write path for code outside the owning module. Exports are
// read-only to importers, so Set never succeeds.
func (e *Exports) Set(name string, _ any) error {
	if e.Has(name) || !e.sealed {
		return &ExportError{Module: e.owner, Name: name, Err: ErrReadOnlyExport}
	}
	return &ExportError{Module: e.owner, Name: name, Err: ErrSealedExports}
}

// Delete removes an entry.
func (e *Exports) Delete(name string) {
	if _, ok := e.values[name]; !ok {
		return
	}
	delete(e.values, name)
	e.order = slices.DeleteFunc(e.order, func(n string) bool { return n == name })
}

// Retain deletes every entry whose name is not in keep and returns the
// deleted names.
func (e *Exports) Retain(keep map[string]bool) []string {
	var removed []string
	for _, name := range slices.Clone(e.order) {
		if !keep[name] {
			e.Delete(name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Seal forbids DefineNew until Unseal is called.
func (e *Exports) Seal() { e.sealed = true }

// Unseal allows DefineNew again.
func (e *Exports) Unseal() { e.sealed = false }
