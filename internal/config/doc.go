// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/livemod/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/livemod/config.cue on macOS, %APPDATA%\livemod\config.cue
// on Windows), falling back to ./config.cue. The file is validated against the embedded
// config_schema.cue and merged over defaults; LIVEMOD_* environment variables override both.
// It configures the package roots, the module engine, the watcher, and logging.
package config
