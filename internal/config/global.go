// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform config directory. os.UserHomeDir
// does not honor HOME on every platform, so tests and the --config-dir flag
// go through this instead.
var configDirOverride string

// Reset clears the config directory override.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride sets the directory returned by ConfigDir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
