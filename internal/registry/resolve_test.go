// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/invowk/livemod/pkg/descriptor"
)

func descriptorWith(version, main string) *descriptor.Descriptor {
	return &descriptor.Descriptor{Version: version, Main: main}
}

func TestSplitBare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec, name, rng, rest string
	}{
		{"lib", "lib", "", ""},
		{"lib/util", "lib", "", "util"},
		{"lib@^1.2", "lib", "^1.2", ""},
		{"lib@^1.2/util/x", "lib", "^1.2", "util/x"},
		{"@acme/ui", "@acme/ui", "", ""},
		{"@acme/ui@2/btn", "@acme/ui", "2", "btn"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			name, rng, rest := SplitBare(tt.spec)
			if name != tt.name || rng != tt.rng || rest != tt.rest {
				t.Errorf("SplitBare(%q) = %q, %q, %q", tt.spec, name, rng, rest)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, _ := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "lib", "1.0.0", "1.5.0", "2.0.0")
	writeDescriptor(t, res, "/work/app", `{
		"name": "app",
		"version": "1.0.0",
		"dependencies": {"lib": "^1.0.0", "git": "github:acme/git"},
		"livemod": {"packageMap": {"ui": "./vendor/ui"}}
	}`)
	writeDescriptor(t, res, "/work/app/vendor/ui", `{"name": "ui", "main": "button"}`)
	app, err := reg.AddPackageDir(ctx, "/work/app", false)
	if err != nil {
		t.Fatalf("AddPackageDir() error: %v", err)
	}
	addVersions(t, reg, res, "git", "0.1.0")

	parent := Parent{ID: "/work/app/src/index.cue", Package: app}
	tests := []struct {
		name   string
		spec   string
		parent Parent
		want   string
	}{
		{"absolute", "/abs/mod", parent, "/abs/mod"},
		{"scheme", "file:///abs/mod", parent, "file:///abs/mod"},
		{"relative", "./util", parent, "/work/app/src/util"},
		{"parent dir", "../lib/x", parent, "/work/app/lib/x"},
		{"declared range", "lib", parent, "/pkgs/lib/1.5.0/index"},
		{"declared range with rest", "lib/sub/mod", parent, "/pkgs/lib/1.5.0/sub/mod"},
		{"explicit range", "lib@^2", parent, "/pkgs/lib/2.0.0/index"},
		{"no parent package uses latest", "lib", Parent{ID: "/x/y"}, "/pkgs/lib/2.0.0/index"},
		{"alias", "ui", parent, "/work/app/vendor/ui/button"},
		{"alias with rest", "ui/icon", parent, "/work/app/vendor/ui/icon"},
		{"non-semver declared range", "git", parent, "/pkgs/git/0.1.0/index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := reg.ResolvePath(tt.spec, tt.parent)
			if err != nil {
				t.Fatalf("ResolvePath(%q) error: %v", tt.spec, err)
			}
			if got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.spec, got, tt.want)
			}
		})
	}
}

func TestResolvePath_Errors(t *testing.T) {
	t.Parallel()

	reg, res, _ := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "lib", "1.0.0")

	tests := []struct {
		spec   string
		parent Parent
		want   error
	}{
		{"./x", Parent{}, ErrNoParent},
		{"missing", Parent{}, ErrPackageNotFound},
		{"lib@^2", Parent{}, ErrNoMatchingVersion},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			_, err := reg.ResolvePath(tt.spec, tt.parent)
			var rerr *ResolutionError
			if !errors.As(err, &rerr) || !errors.Is(err, tt.want) {
				t.Errorf("ResolvePath(%q) error = %v, want %v", tt.spec, err, tt.want)
			}
		})
	}
}
