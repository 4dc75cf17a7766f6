// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"errors"
	"fmt"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
// ErrInvalidRange is the sentinel error wrapped by InvalidRangeError.
var (
	ErrInvalidVersion = errors.New("invalid semver")
	ErrInvalidRange   = errors.New("invalid semver range")
)

type (
	// InvalidVersionError is returned when a string is not a full
	// MAJOR.MINOR.PATCH semantic version.
	InvalidVersionError struct {
		Value string
	}

	// InvalidRangeError is returned when a range expression cannot be parsed.
	// Token identifies the offending comparator when known.
	InvalidRangeError struct {
		Value string
		Token string
	}
)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid semver %q", e.Value)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is for programmatic detection.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	if e.Token != "" && e.Token != e.Value {
		return fmt.Sprintf("invalid semver range %q: bad comparator %q", e.Value, e.Token)
	}
	return fmt.Sprintf("invalid semver range %q", e.Value)
}

// Unwrap returns ErrInvalidRange so callers can use errors.Is for programmatic detection.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }
