// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/invowk/livemod/internal/registry"
)

var (
	// ErrModuleNotFound is wrapped in a ResolutionError when a resolved id names no module source.
	ErrModuleNotFound = errors.New("module not found")
	// ErrModuleBusy is returned when a module's source is changed while a protocol run on it is in progress.
	ErrModuleBusy = errors.New("module is being evaluated")
	// ErrNoTransformer is wrapped in a TranslationError when no transformer handles the module's format.
	ErrNoTransformer = errors.New("no transformer for module format")
)

type (
	// ResolutionError reports an import that could not be resolved. It is
	// raised before Wiring, so the module is left untouched.
	ResolutionError = registry.ResolutionError

	// TranslationError reports a source the transformer rejected. No state
	// was mutated; the change is safe to retry.
	TranslationError struct {
		ID  string
		Err error
	}

	// DeclarationError reports a failure while evaluating the translated
	// form into setters and an execute function. No state was mutated.
	DeclarationError struct {
		ID  string
		Err error
	}

	// ExecutionError reports a failure of the module body. The new graph
	// edges stay applied and the export table may be partially updated:
	// the module is loaded but stale until it is reloaded.
	ExecutionError struct {
		ID  string
		Err error
	}

	// TimeoutError reports that a load did not complete within the load
	// timeout. The load is cancelled and rolled back, and it is never
	// retried automatically.
	TimeoutError struct {
		ID      string
		Timeout time.Duration
		Err     error
	}
)

func (e *TranslationError) Error() string { return fmt.Sprintf("translate %s: %v", e.ID, e.Err) }

// Unwrap returns the transformer error.
func (e *TranslationError) Unwrap() error { return e.Err }

func (e *DeclarationError) Error() string { return fmt.Sprintf("declare %s: %v", e.ID, e.Err) }

// Unwrap returns the transformer error.
func (e *DeclarationError) Unwrap() error { return e.Err }

func (e *ExecutionError) Error() string { return fmt.Sprintf("execute %s: %v", e.ID, e.Err) }

// Unwrap returns the module body error.
func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("load %s: not confirmed within %s", e.ID, e.Timeout)
}

// Unwrap returns the underlying context error.
func (e *TimeoutError) Unwrap() error { return e.Err }

// IsBeforeWiring reports whether err is one of the failures that abort a
// protocol run before any mutation of the module.
func IsBeforeWiring(err error) bool {
	var (
		res   *ResolutionError
		trans *TranslationError
		decl  *DeclarationError
	)
	return errors.As(err, &res) || errors.As(err, &trans) || errors.As(err, &decl)
}
