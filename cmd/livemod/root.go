// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the livemod command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "livemod",
		Short: "Inspect and live-reload a graph of versioned modules",
		Long: TitleStyle.Render("livemod") + SubtitleStyle.Render(" - a live module graph over versioned packages") + `

livemod resolves import specifiers against a registry of semver-versioned
packages, loads modules written in CUE (or POSIX shell), and keeps their
import bindings live: when a module's source changes, only that module
re-runs and its new exports flow into every importer.

` + SubtitleStyle.Render("Examples:") + `
  livemod packages --collection ./pkgs         List registered packages
  livemod resolve lib@^1.2                     Resolve a specifier to a module id
  livemod load ./app/index.cue                 Load a module and print its exports
  livemod graph ./app/index.cue --format yaml  Show the dependency map
  livemod watch ./app/index.cue                Reload modules as files change`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(formats, app.flags.format) {
				return &unknownFormatError{format: app.flags.format}
			}
			return nil
		},
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable debug logging and full error chains")
	flags.StringVar(&app.flags.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/livemod/config.cue)")
	flags.StringVar(&app.flags.configDir, "config-dir", "", "directory searched for config.cue")
	flags.StringVarP(&app.flags.format, "format", "f", formatText, "output format: text, json, yaml or toml")
	flags.StringArrayVar(&app.flags.collections, "collection", nil, "additional collection root (<name>/<version>/ layout)")
	flags.StringArrayVar(&app.flags.packages, "package", nil, "additional package directory")
	flags.StringArrayVar(&app.flags.devPackages, "dev-package", nil, "additional development package directory")
	flags.BoolVar(&app.flags.persist, "persist", false, "write accepted source changes back to disk")

	rootCmd.AddCommand(
		newPackagesCommand(app),
		newLookupCommand(app),
		newResolveCommand(app),
		newLoadCommand(app),
		newGraphCommand(app),
		newDependentsCommand(app),
		newRequirementsCommand(app),
		newWatchCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Run executes the CLI with os.Args and returns the process exit code.
func Run(ctx context.Context) int {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)
	err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			if exitErr := (*ExitError)(nil); errors.As(err, &exitErr) && exitErr.Err == nil {
				return
			}
			fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, app.flags.verbose))
			if app.flags.verbose {
				renderIssue(w, err)
			}
		}),
	)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Execute runs the CLI and exits the process. It is called by main.main().
func Execute() {
	os.Exit(Run(context.Background()))
}
