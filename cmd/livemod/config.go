// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/livemod/internal/config"
)

type (
	configView struct {
		Path    string      `json:"path" yaml:"path" toml:"path"`
		Roots   rootsView   `json:"roots" yaml:"roots" toml:"roots"`
		Modules modulesView `json:"modules" yaml:"modules" toml:"modules"`
		Watch   watchView   `json:"watch" yaml:"watch" toml:"watch"`
		Log     logView     `json:"log" yaml:"log" toml:"log"`
	}

	rootsView struct {
		Collections []string `json:"collections" yaml:"collections" toml:"collections"`
		Packages    []string `json:"packages" yaml:"packages" toml:"packages"`
		DevPackages []string `json:"dev_packages" yaml:"dev_packages" toml:"dev_packages"`
	}

	modulesView struct {
		Extensions       []string `json:"extensions" yaml:"extensions" toml:"extensions"`
		ScriptExtensions []string `json:"script_extensions" yaml:"script_extensions" toml:"script_extensions"`
		LoadTimeout      string   `json:"load_timeout" yaml:"load_timeout" toml:"load_timeout"`
		PersistChanges   bool     `json:"persist_changes" yaml:"persist_changes" toml:"persist_changes"`
	}

	watchView struct {
		Patterns []string `json:"patterns" yaml:"patterns" toml:"patterns"`
		Ignore   []string `json:"ignore" yaml:"ignore" toml:"ignore"`
		Debounce string   `json:"debounce" yaml:"debounce" toml:"debounce"`
	}

	logView struct {
		Level string `json:"level" yaml:"level" toml:"level"`
	}
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the livemod configuration",
	}
	cmd.AddCommand(newConfigShowCommand(app), newConfigInitCommand(app), newConfigPathCommand(app))
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			view := newConfigView(loaded)
			return emit(cmd.OutOrStdout(), app.flags.format, view, func(w io.Writer) error {
				renderConfig(w, view)
				return nil
			})
		},
	}
}

func newConfigInitCommand(app *App) *cobra.Command {
	var stdout bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write config.cue with the default settings to the config directory.

An existing file is left untouched. With --stdout the file is printed
instead of written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stdout {
				_, err := io.WriteString(cmd.OutOrStdout(), config.GenerateCUE(config.DefaultConfig()))
				return err
			}
			if app.flags.configDir != "" {
				config.SetConfigDirOverride(app.flags.configDir)
				defer config.Reset()
			}
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return explain(err, "create configuration", path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("✓")+" "+path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the default configuration instead of writing it")
	return cmd
}

func newConfigPathCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if loaded.Path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("(defaults, no config file)"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), loaded.Path)
			return nil
		},
	}
}

func newConfigView(loaded *config.Loaded) configView {
	cfg := loaded.Config
	return configView{
		Path: loaded.Path,
		Roots: rootsView{
			Collections: nonNil(cfg.Roots.Collections),
			Packages:    nonNil(cfg.Roots.Packages),
			DevPackages: nonNil(cfg.Roots.DevPackages),
		},
		Modules: modulesView{
			Extensions:       nonNil(cfg.Modules.Extensions),
			ScriptExtensions: nonNil(cfg.Modules.ScriptExtensions),
			LoadTimeout:      cfg.Modules.LoadTimeout.String(),
			PersistChanges:   cfg.Modules.PersistChanges,
		},
		Watch: watchView{
			Patterns: nonNil(cfg.Watch.Patterns),
			Ignore:   nonNil(cfg.Watch.Ignore),
			Debounce: cfg.Watch.Debounce.String(),
		},
		Log: logView{Level: string(cfg.Log.Level)},
	}
}

func renderConfig(w io.Writer, v configView) {
	path := v.Path
	if path == "" {
		path = "(defaults, no config file)"
	}
	fmt.Fprintln(w, TitleStyle.Render("Configuration"))
	fmt.Fprintln(w, SubtitleStyle.Render(path))

	section := func(name string, rows ...[2]string) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, TitleStyle.Render(name))
		for _, r := range rows {
			fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render(r[0]+":"), r[1])
		}
	}
	section("roots",
		[2]string{"collections", list(v.Roots.Collections)},
		[2]string{"packages", list(v.Roots.Packages)},
		[2]string{"dev_packages", list(v.Roots.DevPackages)},
	)
	section("modules",
		[2]string{"extensions", list(v.Modules.Extensions)},
		[2]string{"script_extensions", list(v.Modules.ScriptExtensions)},
		[2]string{"load_timeout", v.Modules.LoadTimeout},
		[2]string{"persist_changes", strconv.FormatBool(v.Modules.PersistChanges)},
	)
	section("watch",
		[2]string{"patterns", list(v.Watch.Patterns)},
		[2]string{"ignore", list(v.Watch.Ignore)},
		[2]string{"debounce", v.Watch.Debounce},
	)
	section("log", [2]string{"level", v.Log.Level})
}

func list(items []string) string {
	if len(items) == 0 {
		return SubtitleStyle.Render("(none)")
	}
	return strings.Join(items, ", ")
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
