// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the livemod command line.
//
// Every command opens a session: configuration is loaded, the package roots
// are scanned into a registry, and a module engine is built over them. Query
// commands print in text, json, yaml, or toml; watch keeps the session alive
// and feeds file changes into the engine as source changes.
package cmd
