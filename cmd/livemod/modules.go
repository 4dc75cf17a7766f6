// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/invowk/livemod/internal/dag"
	"github.com/invowk/livemod/internal/engine"
	"github.com/invowk/livemod/pkg/transform/cuemod"
)

type (
	resolveOutput struct {
		Spec     string   `json:"spec" yaml:"spec" toml:"spec"`
		From     string   `json:"from,omitempty" yaml:"from,omitempty" toml:"from,omitempty"`
		ID       string   `json:"id" yaml:"id" toml:"id"`
		Declares []string `json:"declares,omitempty" yaml:"declares,omitempty" toml:"declares,omitempty"`
	}

	moduleExports struct {
		ID          string         `json:"id" yaml:"id" toml:"id"`
		Names       []string       `json:"names" yaml:"names" toml:"names"`
		Exports     map[string]any `json:"exports" yaml:"exports" toml:"exports"`
		Imports     []string       `json:"imports,omitempty" yaml:"imports,omitempty" toml:"imports,omitempty"`
		Translation string         `json:"translation,omitempty" yaml:"translation,omitempty" toml:"translation,omitempty"`
	}

	loadOutput struct {
		Modules []moduleExports `json:"modules" yaml:"modules" toml:"modules"`
	}

	graphOutput struct {
		Order   []string            `json:"order" yaml:"order" toml:"order"`
		Cycle   []string            `json:"cycle,omitempty" yaml:"cycle,omitempty" toml:"cycle,omitempty"`
		Modules map[string][]string `json:"modules" yaml:"modules" toml:"modules"`
	}

	hullOutput struct {
		ID      string   `json:"id" yaml:"id" toml:"id"`
		Modules []string `json:"modules" yaml:"modules" toml:"modules"`
	}
)

func newResolveCommand(app *App) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "resolve <spec>",
		Short: "Resolve an import specifier to a module id",
		Long: `Resolve an import specifier the way an import statement would.

Bare specifiers (lib, lib@^1.2, @scope/lib/sub) go through the package
registry; relative specifiers are joined with the directory of --from.
For CUE modules the names the body declares are listed as well, without
executing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			out := resolveOutput{Spec: args[0]}
			if from != "" {
				out.From = toSpec(from)
			}
			spec := args[0]
			if out.From == "" {
				spec = toSpec(spec)
			}
			id, err := s.sys.Resolve(cmd.Context(), spec, out.From)
			if err != nil {
				return explain(err, "resolve specifier", args[0])
			}
			out.ID = id
			out.Declares = declaredNames(cmd.Context(), s, id)
			return emit(cmd.OutOrStdout(), app.flags.format, out, func(w io.Writer) error {
				if _, err := fmt.Fprintln(w, out.ID); err != nil {
					return err
				}
				if len(out.Declares) > 0 {
					_, err := fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render("declares"), strings.Join(out.Declares, ", "))
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "id of the importing module")
	return cmd
}

// declaredNames lists the top-level names a CUE module declares. Other
// formats, and sources that cannot be read or parsed, yield nil.
func declaredNames(ctx context.Context, s *session, id string) []string {
	if path.Ext(id) != ".cue" {
		return nil
	}
	src, err := s.sys.Module(id).Source(ctx)
	if err != nil {
		s.logger.Debug("no source to list", "id", id, "err", err)
		return nil
	}
	names, err := cuemod.Exported(src, id)
	if err != nil {
		s.logger.Debug("cannot list declared names", "id", id, "err", err)
		return nil
	}
	return names
}

func newLoadCommand(app *App) *cobra.Command {
	var translation bool
	cmd := &cobra.Command{
		Use:   "load <spec>...",
		Short: "Load modules and print their exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			mods, err := s.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := loadOutput{Modules: make([]moduleExports, 0, len(mods))}
			for _, m := range mods {
				ex := exportsOf(m)
				if tr, ok := m.Translation(); ok && translation {
					ex.Imports, ex.Translation = tr.Imports, tr.Text
				}
				out.Modules = append(out.Modules, ex)
			}
			return emit(cmd.OutOrStdout(), app.flags.format, out, func(w io.Writer) error {
				for _, m := range out.Modules {
					renderExports(w, m)
					renderTranslation(w, m)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&translation, "translation", false, "also print each module's import list and translated body")
	return cmd
}

func exportsOf(m *engine.Module) moduleExports {
	ex := m.Exports()
	names := ex.Names()
	if names == nil {
		names = []string{}
	}
	return moduleExports{ID: m.ID(), Names: names, Exports: ex.Snapshot()}
}

func renderExports(w io.Writer, m moduleExports) {
	fmt.Fprintln(w, TitleStyle.Render(m.ID))
	if len(m.Names) == 0 {
		fmt.Fprintln(w, "  "+SubtitleStyle.Render("(no exports)"))
		return
	}
	for _, name := range m.Names {
		fmt.Fprintf(w, "  %s = %s\n", KeyStyle.Render(name), formatValue(m.Exports[name]))
	}
}

func renderTranslation(w io.Writer, m moduleExports) {
	if m.Translation == "" {
		return
	}
	for _, spec := range m.Imports {
		fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render("import"), spec)
	}
	fmt.Fprintln(w, "  "+SubtitleStyle.Render("translated:"))
	for line := range strings.Lines(m.Translation) {
		fmt.Fprint(w, "    "+line)
	}
	if !strings.HasSuffix(m.Translation, "\n") {
		fmt.Fprintln(w)
	}
}

func newGraphCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <spec>...",
		Short: "Load modules and print the dependency map of the live set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			mods, err := s.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := graphOutput{Order: []string{}, Modules: s.sys.RequireMap()}
			order, err := s.sys.LoadOrder()
			var cycle *dag.CycleError
			switch {
			case errors.As(err, &cycle):
				out.Cycle = cycle.Cycle
				s.logger.Warn("import cycle, no load order", "cycle", cycle.Cycle)
			case err != nil:
				return explain(err, "order modules", "")
			default:
				out.Order = order
			}
			return emit(cmd.OutOrStdout(), app.flags.format, out, func(w io.Writer) error {
				for _, m := range mods {
					fmt.Fprintln(w, dependencyTree(m.ID(), out.Modules))
				}
				return nil
			})
		},
	}
}

// dependencyTree renders id and its dependencies. Each module's subtree is
// expanded once; later occurrences are marked "(see above)". A module
// already on the current path is marked as a cycle.
func dependencyTree(id string, deps map[string][]string) *tree.Tree {
	w := treeWalk{deps: deps, expanded: make(map[string]bool)}
	return w.walk(id, nil).RootStyle(TitleStyle)
}

type treeWalk struct {
	deps     map[string][]string
	expanded map[string]bool
}

func (w *treeWalk) walk(id string, path []string) *tree.Tree {
	t := tree.Root(id).EnumeratorStyle(SubtitleStyle)
	w.expanded[id] = true
	path = append(path, id)
	for _, dep := range w.deps[id] {
		switch {
		case slices.Contains(path, dep):
			t.Child(dep + " " + WarningStyle.Render("(cycle)"))
		case len(w.deps[dep]) == 0:
			t.Child(dep)
		case w.expanded[dep]:
			t.Child(dep + " " + SubtitleStyle.Render("(see above)"))
		default:
			t.Child(w.walk(dep, path))
		}
	}
	return t
}

func newDependentsCommand(app *App) *cobra.Command {
	var load []string
	cmd := &cobra.Command{
		Use:   "dependents <spec>",
		Short: "List the live modules that transitively import a module",
		Long: `List the live modules that transitively import a module.

The module itself is loaded, plus every module given with --load. Only
modules that are loaded can be dependents.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHull(cmd, app, args[0], load, (*engine.System).DependentsOf)
		},
	}
	cmd.Flags().StringArrayVar(&load, "load", nil, "load an importing module first (repeatable)")
	return cmd
}

func newRequirementsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "requirements <spec>",
		Short: "List the modules a module transitively imports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHull(cmd, app, args[0], nil, (*engine.System).RequirementsOf)
		},
	}
}

func runHull(cmd *cobra.Command, app *App, spec string, load []string, query func(*engine.System, string) []string) error {
	s, err := app.open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	mods, err := s.load(cmd.Context(), append([]string{spec}, load...))
	if err != nil {
		return err
	}
	out := hullOutput{ID: mods[0].ID(), Modules: query(s.sys, mods[0].ID())}
	if out.Modules == nil {
		out.Modules = []string{}
	}
	return emit(cmd.OutOrStdout(), app.flags.format, out, func(w io.Writer) error {
		if len(out.Modules) == 0 {
			_, err := fmt.Fprintln(w, SubtitleStyle.Render("(none)"))
			return err
		}
		for _, id := range out.Modules {
			if _, err := fmt.Fprintln(w, id); err != nil {
				return err
			}
		}
		return nil
	})
}
