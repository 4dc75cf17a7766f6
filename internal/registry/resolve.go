// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"path"
	"strings"

	"github.com/invowk/livemod/pkg/resource"
	"github.com/invowk/livemod/pkg/semver"
)

// Parent identifies the importer a specifier is resolved for.
type Parent struct {
	// ID is the importing module id; relative specifiers resolve against its directory.
	ID string
	// Package is the importer's owning package, if any. Its alias map and
	// declared dependency ranges take part in bare-specifier resolution.
	Package *Package
}

// ResolvePath resolves an import specifier to an absolute module id
// (without extension resolution).
//
//   - Absolute specifiers ("/x", "scheme://x") pass through unchanged.
//   - "./" and "../" specifiers resolve against the directory of parent.ID.
//   - Bare specifiers are split into name[@range] and a remainder. The name
//     is looked up in the parent package's alias map first, then in the
//     registry using the explicit range, the range the parent package
//     declares for it, or latest, in that order. The package url is joined
//     with the remainder, or with the package main when there is none.
func (r *Registry) ResolvePath(spec string, parent Parent) (string, error) {
	switch {
	case spec == "":
		return "", &ResolutionError{Spec: spec, Err: ErrPackageNotFound}
	case isAbsolute(spec):
		return spec, nil
	case isRelative(spec):
		if parent.ID == "" {
			return "", &ResolutionError{Spec: spec, Err: ErrNoParent}
		}
		return path.Join(path.Dir(resource.Clean(parent.ID)), spec), nil
	}

	name, rng, rest := SplitBare(spec)

	if parent.Package != nil && rng == "" {
		if target, ok := parent.Package.Aliases()[name]; ok {
			if rest != "" {
				return path.Join(target, rest), nil
			}
			if p, ok := r.Package(target); ok {
				return p.MainID(), nil
			}
			return path.Join(target, r.PackageAt(target).Main()), nil
		}
	}

	explicit := rng != ""
	if !explicit && parent.Package != nil {
		if declared, ok := parent.Package.DependencyRange(name); ok && semver.ValidRange(declared) {
			rng = declared
		} else if ok {
			r.logger.Debug("ignoring non-semver dependency range", "name", name, "range", declared, "parent", parent.ID)
		}
	}

	p, ok, err := r.Lookup(name, rng)
	if err != nil {
		var rerr *ResolutionError
		if errors.As(err, &rerr) {
			rerr.Spec = spec
		}
		return "", err
	}
	if !ok {
		cause := ErrNoMatchingVersion
		if len(r.Versions(name)) == 0 {
			cause = ErrPackageNotFound
		}
		return "", &ResolutionError{Spec: spec, Range: rng, Err: cause}
	}
	if rest == "" {
		return p.MainID(), nil
	}
	return path.Join(p.URL(), rest), nil
}

// SplitBare splits a bare specifier into package name, optional range and
// the remaining path. Scoped names ("@scope/name") keep their scope.
//
//	lib            -> "lib", "", ""
//	lib@^1.2/util  -> "lib", "^1.2", "util"
//	@acme/ui@2/btn -> "@acme/ui", "2", "btn"
func SplitBare(spec string) (name, rng, rest string) {
	head, tail := spec, ""
	segments := 1
	if strings.HasPrefix(spec, "@") {
		segments = 2
	}
	parts := strings.SplitN(spec, "/", segments+1)
	if len(parts) > segments {
		head = strings.Join(parts[:segments], "/")
		tail = parts[segments]
	}
	searchFrom := 0
	if strings.HasPrefix(head, "@") {
		searchFrom = 1
	}
	if i := strings.Index(head[searchFrom:], "@"); i >= 0 {
		i += searchFrom
		return head[:i], head[i+1:], tail
	}
	return head, "", tail
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}
