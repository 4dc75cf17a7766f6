// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks for the livemod hot paths:
//   - semver range parsing and version selection
//   - package descriptor decoding through CUE
//   - registry scans of collection roots
//   - module graph loads and live-binding propagation
//
// Run them with:
//
//	go test -run '^$' -bench . ./internal/benchmark
package benchmark
