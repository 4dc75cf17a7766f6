// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// LogLevelDebug logs every protocol phase.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs package registration and reloads.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs cycle notices and skipped packages.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs failed protocol runs only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidExtension is returned for an extension without a leading dot.
	ErrInvalidExtension = errors.New("invalid module extension")
	// ErrInvalidDuration is returned for a non-positive timeout or debounce.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel names a charmbracelet/log level.
	LogLevel string

	// InvalidLogLevelError wraps ErrInvalidLogLevel.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects field-level validation errors and wraps
	// ErrInvalidConfig.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		Roots   RootsConfig   `json:"roots" mapstructure:"roots"`
		Modules ModulesConfig `json:"modules" mapstructure:"modules"`
		Watch   WatchConfig   `json:"watch" mapstructure:"watch"`
		Log     LogConfig     `json:"log" mapstructure:"log"`
	}

	// RootsConfig lists the directories scanned for packages.
	RootsConfig struct {
		// Collections hold <name>/<version>/ package directories.
		Collections []string `json:"collections" mapstructure:"collections"`
		// Packages are package directories.
		Packages []string `json:"packages" mapstructure:"packages"`
		// DevPackages are package directories flagged as dev.
		DevPackages []string `json:"dev_packages" mapstructure:"dev_packages"`
	}

	// ModulesConfig tunes the module engine.
	ModulesConfig struct {
		Extensions       []string      `json:"extensions" mapstructure:"extensions"`
		ScriptExtensions []string      `json:"script_extensions" mapstructure:"script_extensions"`
		LoadTimeout      time.Duration `json:"load_timeout" mapstructure:"load_timeout"`
		// PersistChanges writes accepted source changes back to the resource.
		PersistChanges bool `json:"persist_changes" mapstructure:"persist_changes"`
	}

	// WatchConfig configures `livemod watch`.
	WatchConfig struct {
		Patterns []string      `json:"patterns" mapstructure:"patterns"`
		Ignore   []string      `json:"ignore" mapstructure:"ignore"`
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}
)

// String returns the level name.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the level is one of the defined LogLevel values.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid checks the constraints viper can bypass (environment overrides
// are not seen by the CUE schema).
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, ext := range append(append([]string(nil), c.Modules.Extensions...), c.Modules.ScriptExtensions...) {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidExtension, ext))
		}
	}
	if c.Modules.LoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: modules.load_timeout must be positive, got %s", ErrInvalidDuration, c.Modules.LoadTimeout))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("%w: watch.debounce must not be negative, got %s", ErrInvalidDuration, c.Watch.Debounce))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// ResolveRoots makes relative root directories absolute against base,
// normally the directory of the loaded config file.
func (c *Config) ResolveRoots(base string) {
	for _, dirs := range []*[]string{&c.Roots.Collections, &c.Roots.Packages, &c.Roots.DevPackages} {
		for i, dir := range *dirs {
			if !filepath.IsAbs(dir) {
				(*dirs)[i] = filepath.Join(base, dir)
			}
		}
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Roots: RootsConfig{
			Collections: []string{},
			Packages:    []string{},
			DevPackages: []string{},
		},
		Modules: ModulesConfig{
			Extensions:       []string{".cue", ".sh"},
			ScriptExtensions: []string{".sh"},
			LoadTimeout:      10 * time.Second,
			PersistChanges:   false,
		},
		Watch: WatchConfig{
			Patterns: []string{"**/*.cue", "**/*.sh", "**/package.json"},
			Ignore:   []string{"**/.git/**", "**/node_modules/**"},
			Debounce: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level: LogLevelInfo,
		},
	}
}
