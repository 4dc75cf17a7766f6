// SPDX-License-Identifier: MPL-2.0

// Package semver parses semantic versions and npm-style version ranges.
//
// Ranges support the full comparator grammar used by package descriptors:
// sets joined by "||", whitespace-joined comparators, hyphen ranges
// ("1.2 - 2.3.4"), x-ranges ("1.x", "1.2.*", "*"), tilde ("~1.2.3", "~>1.2")
// and caret ("^0.2.3") shorthands, and the primitive operators
// <, <=, >, >=, =.
//
// Pre-release versions are held to a stricter rule than plain numeric
// comparison: a version such as 1.3.0-beta.1 only satisfies a comparator set
// when some comparator in that set names the same major.minor.patch and
// itself carries a pre-release tag. ">=1.2.0-alpha <2.0.0" therefore accepts
// 1.2.0-beta but rejects 1.5.0-beta even though it is numerically in range.
package semver
