// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, level := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		if ok, errs := level.IsValid(); !ok {
			t.Errorf("%q.IsValid() = false, %v", level, errs)
		}
	}

	ok, errs := LogLevel("trace").IsValid()
	if ok || len(errs) != 1 || !errors.Is(errs[0], ErrInvalidLogLevel) {
		t.Errorf("IsValid(trace) = %v, %v", ok, errs)
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	if ok, errs := DefaultConfig().IsValid(); !ok {
		t.Fatalf("DefaultConfig() invalid: %v", errs)
	}

	cfg := DefaultConfig()
	cfg.Modules.Extensions = []string{"cue"}
	cfg.Modules.LoadTimeout = 0
	cfg.Watch.Debounce = -time.Second
	ok, errs := cfg.IsValid()
	if ok {
		t.Fatal("IsValid() = true")
	}
	var invalid *InvalidConfigError
	if !errors.As(errs[0], &invalid) {
		t.Fatalf("error is %T", errs[0])
	}
	if len(invalid.FieldErrors) != 3 {
		t.Errorf("FieldErrors = %v", invalid.FieldErrors)
	}
	if !errors.Is(errs[0], ErrInvalidExtension) || !errors.Is(errs[0], ErrInvalidDuration) {
		t.Errorf("sentinels not reachable from %v", errs[0])
	}
}

func TestConfig_ResolveRoots(t *testing.T) {
	t.Parallel()

	base := filepath.FromSlash("/etc/livemod")
	abs := filepath.FromSlash("/srv/pkgs")
	cfg := DefaultConfig()
	cfg.Roots.Collections = []string{"pkgs", abs}
	cfg.Roots.Packages = []string{"app"}
	cfg.ResolveRoots(base)

	if cfg.Roots.Collections[0] != filepath.Join(base, "pkgs") || cfg.Roots.Collections[1] != abs {
		t.Errorf("Collections = %v", cfg.Roots.Collections)
	}
	if cfg.Roots.Packages[0] != filepath.Join(base, "app") {
		t.Errorf("Packages = %v", cfg.Roots.Packages)
	}
}
