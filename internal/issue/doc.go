// SPDX-License-Identifier: MPL-2.0

// Package issue turns livemod failures into messages a user can act on.
//
// ActionableError carries the failed operation, the module or file involved
// and remediation hints. Issue pages are longer Markdown explanations for
// the recurring failure classes of the module engine, rendered with glamour.
package issue
