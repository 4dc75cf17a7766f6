// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPackageNotFound is returned when no package with the requested name is registered.
	ErrPackageNotFound = errors.New("package not found")
	// ErrNoMatchingVersion is returned when a package exists but no version satisfies the range.
	ErrNoMatchingVersion = errors.New("no version satisfies range")
	// ErrNoParent is returned when a relative specifier has no importing module to resolve against.
	ErrNoParent = errors.New("relative specifier without parent module")
)

type (
	// ResolutionError reports a specifier or name+range that could not be
	// resolved to a package. Resolution failures never mutate engine state
	// and are safe to retry.
	ResolutionError struct {
		// Spec is the import specifier or package name being resolved.
		Spec string
		// Range is the version range requested, if any.
		Range string
		// Err is the underlying cause (one of the Err* sentinels or a semver range error).
		Err error
	}

	// CycleNotice records an alias sub-package that was skipped because it is
	// already on the registration stack. It is informational, not an error.
	CycleNotice struct {
		// URL is the skipped sub-package.
		URL string
		// Stack is the registration chain at the time of the skip.
		Stack []string
	}
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Range != "" {
		return fmt.Sprintf("cannot resolve %q (range %q): %v", e.Spec, e.Range, e.Err)
	}
	return fmt.Sprintf("cannot resolve %q: %v", e.Spec, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error { return e.Err }

// String renders the notice for logs.
func (n CycleNotice) String() string {
	return fmt.Sprintf("package cycle: %s -> %s", strings.Join(n.Stack, " -> "), n.URL)
}
