// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"livemod": Execute,
	})
}

// TestCLI runs the testscript scenarios in testdata against the in-process
// livemod command.
func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
		Setup: func(env *testscript.Env) error {
			env.Setenv("HOME", env.WorkDir)
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("NO_COLOR", "1")
			return nil
		},
		ContinueOnError: true,
	})
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(NewApp(Dependencies{}))
	want := []string{"config", "dependents", "graph", "load", "lookup", "packages", "requirements", "resolve", "watch"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	root := NewRootCommand(NewApp(Dependencies{Stdout: &stdout, Stderr: &stderr}))
	root.SetArgs([]string{"config", "init", "--stdout", "--format", "xml"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), `unknown output format "xml"`) {
		t.Fatalf("Execute() error = %v, want unknown format", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestGetVersionString(t *testing.T) {
	if got := getVersionString(); got != "dev (built from source)" {
		t.Errorf("getVersionString() = %q", got)
	}

	Version, Commit, BuildDate = "1.2.3", "abc123", "2026-01-01"
	t.Cleanup(func() { Version, Commit, BuildDate = "dev", "unknown", "unknown" })
	if got := getVersionString(); got != "1.2.3 (commit: abc123, built: 2026-01-01)" {
		t.Errorf("getVersionString() = %q", got)
	}
}
