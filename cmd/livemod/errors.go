// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/invowk/livemod/internal/config"
	"github.com/invowk/livemod/internal/engine"
	"github.com/invowk/livemod/internal/issue"
	"github.com/invowk/livemod/internal/registry"
	"github.com/invowk/livemod/internal/watch"
	"github.com/invowk/livemod/pkg/semver"
)

// issueFor maps an error to the issue page that explains it.
func issueFor(err error) (issue.Id, bool) {
	var (
		trans   *engine.TranslationError
		decl    *engine.DeclarationError
		exec    *engine.ExecutionError
		timeout *engine.TimeoutError
	)
	switch {
	case errors.As(err, &timeout):
		return issue.LoadTimeoutId, true
	case errors.As(err, &trans):
		return issue.TranslationFailedId, true
	case errors.As(err, &decl):
		return issue.DeclarationFailedId, true
	case errors.As(err, &exec):
		return issue.ExecutionFailedId, true
	case errors.Is(err, engine.ErrModuleBusy):
		return issue.ModuleBusyId, true
	case errors.Is(err, engine.ErrModuleNotFound):
		return issue.ModuleNotFoundId, true
	case errors.Is(err, registry.ErrPackageNotFound):
		return issue.PackageNotFoundId, true
	case errors.Is(err, registry.ErrNoMatchingVersion):
		return issue.NoMatchingVersionId, true
	case errors.Is(err, semver.ErrInvalidRange):
		return issue.InvalidRangeId, true
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId, true
	case errors.Is(err, watch.ErrNoRoots):
		return issue.WatchFailedId, true
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId, true
	}
	return 0, false
}

// explain wraps an engine or registry error with the operation, the
// resource, and class-specific suggestions.
func explain(err error, operation, resource string) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}

	ectx := issue.NewErrorContext().WithOperation(operation).WithResource(resource).Wrap(err)
	id, _ := issueFor(err)
	switch id {
	case issue.ModuleNotFoundId:
		ectx.WithSuggestions(
			"Check the path; ids without an extension are tried with each configured extension",
			fmt.Sprintf("Run 'livemod resolve %s' to see the id it resolves to", resource),
		)
	case issue.PackageNotFoundId:
		ectx.WithSuggestions(
			"Run 'livemod packages' to list registered packages",
			"Add the package directory with --package or --collection",
		)
	case issue.NoMatchingVersionId:
		ectx.WithSuggestion("Run 'livemod packages' to see the registered versions")
	case issue.InvalidRangeId:
		ectx.WithSuggestion("Use a semver range such as ^1.2.0, ~1.2, 1.x or >=1.0.0 <2.0.0")
	case issue.TranslationFailedId, issue.DeclarationFailedId:
		ectx.WithSuggestion("Fix the module header; the previous version of the module stays live")
	case issue.ExecutionFailedId:
		ectx.WithSuggestion("Fix the module body and save again")
	case issue.LoadTimeoutId:
		ectx.WithSuggestion("Raise modules.load_timeout in your configuration")
	case issue.ModuleBusyId:
		ectx.WithSuggestion("Retry once the current reload has finished")
	case issue.PermissionDeniedId:
		ectx.WithSuggestion("Check the permissions of the package directory")
	}
	return ectx.BuildError()
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// print their suggestions, and verbose mode adds the cause chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderIssue writes the issue page for err, if there is one.
func renderIssue(w io.Writer, err error) {
	id, ok := issueFor(err)
	if !ok {
		return
	}
	rendered, renderErr := issue.Get(id).Render("auto")
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}
