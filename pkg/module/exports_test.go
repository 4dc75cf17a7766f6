// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"slices"
	"testing"
)

func TestExports_DefineAndSet(t *testing.T) {
	t.Parallel()

	e := NewExports("/lib/index.cue")
	if err := e.DefineNew("x", 1); err != nil {
		t.Fatalf("DefineNew() error: %v", err)
	}
	if err := e.DefineNew("x", 2); !errors.Is(err, ErrReadOnlyExport) {
		t.Errorf("DefineNew(existing) error = %v, want ErrReadOnlyExport", err)
	}
	if !e.SetIfExists("x", 3) {
		t.Error("SetIfExists(x) = false, want true")
	}
	if e.SetIfExists("y", 3) {
		t.Error("SetIfExists(y) = true, want false")
	}
	if v, _ := e.Get("x"); v != 3 {
		t.Errorf("Get(x) = %v, want 3", v)
	}

	err := e.Set("x", 4)
	var exportErr *ExportError
	if !errors.As(err, &exportErr) || exportErr.Name != "x" || !errors.Is(err, ErrReadOnlyExport) {
		t.Errorf("Set(x) error = %v, want read-only ExportError", err)
	}
	if v, _ := e.Get("x"); v != 3 {
		t.Errorf("external Set must not change the value, got %v", v)
	}
}

func TestExports_Sealed(t *testing.T) {
	t.Parallel()

	e := NewExports("m")
	e.Seal()
	if err := e.DefineNew("x", 1); !errors.Is(err, ErrSealedExports) {
		t.Errorf("DefineNew on sealed table error = %v", err)
	}
	if err := e.Set("x", 1); !errors.Is(err, ErrSealedExports) {
		t.Errorf("Set on sealed table error = %v", err)
	}
	e.Unseal()
	if err := e.DefineNew("x", 1); err != nil {
		t.Errorf("DefineNew after Unseal error = %v", err)
	}
}

func TestExports_Retain(t *testing.T) {
	t.Parallel()

	e := NewExports("m")
	for _, n := range []string{"a", "b", "c"} {
		if err := e.DefineNew(n, n); err != nil {
			t.Fatal(err)
		}
	}
	removed := e.Retain(map[string]bool{"b": true})
	if !slices.Equal(removed, []string{"a", "c"}) {
		t.Errorf("Retain() removed %v", removed)
	}
	if !slices.Equal(e.Names(), []string{"b"}) || e.Len() != 1 {
		t.Errorf("Names() = %v", e.Names())
	}
	snap := e.Snapshot()
	snap["b"] = "changed"
	if v, _ := e.Get("b"); v != "b" {
		t.Error("Snapshot must copy")
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()
	if Declarative.String() != "declarative" || Script.String() != "script" || Format(9).String() != "format(9)" {
		t.Error("unexpected Format.String output")
	}
}
