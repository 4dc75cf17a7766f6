// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/invowk/livemod/internal/engine"
	"github.com/invowk/livemod/internal/registry"
)

type (
	packagesOutput struct {
		Packages []engine.PackageInfo `json:"packages" yaml:"packages" toml:"packages"`
	}

	lookupOutput struct {
		Name     string   `json:"name" yaml:"name" toml:"name"`
		Range    string   `json:"range" yaml:"range" toml:"range"`
		Found    bool     `json:"found" yaml:"found" toml:"found"`
		URL      string   `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
		Version  string   `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
		Versions []string `json:"versions" yaml:"versions" toml:"versions"`

		Dependencies map[string]string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	}
)

func newPackagesCommand(app *App) *cobra.Command {
	var load []string
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "List registered packages and the loaded modules they own",
		Long: `List every package found under the configured roots.

With --load, the given modules are loaded first and each package lists the
live modules attributed to it; modules outside every package are listed
under "ungrouped".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.load(cmd.Context(), load); err != nil {
				return err
			}
			out := packagesOutput{Packages: s.sys.ListPackages()}
			return emit(cmd.OutOrStdout(), app.flags.format, out, func(w io.Writer) error {
				return renderPackages(w, out.Packages)
			})
		},
	}
	cmd.Flags().StringArrayVar(&load, "load", nil, "load a module before listing (repeatable)")
	return cmd
}

func renderPackages(w io.Writer, pkgs []engine.PackageInfo) error {
	if len(pkgs) == 0 {
		_, err := fmt.Fprintln(w, SubtitleStyle.Render("(no packages registered)"))
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("NAME", "VERSION", "URL", "MODULES").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	for _, p := range pkgs {
		t.Row(p.Name, p.Version, p.URL, strconv.Itoa(len(p.Modules)))
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	for _, p := range pkgs {
		for _, m := range p.Modules {
			fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(p.Name), m.ID)
		}
	}
	return nil
}

func newLookupCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name> [range]",
		Short: "Find the highest registered version of a package matching a range",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			out := lookupOutput{Name: args[0], Range: registry.Latest}
			if len(args) == 2 {
				out.Range = args[1]
			}
			p, found, err := s.reg.Lookup(out.Name, out.Range)
			if err != nil {
				return explain(err, "look up package", out.Name)
			}
			out.Found = found
			out.Versions = s.reg.Versions(out.Name)
			if out.Versions == nil {
				out.Versions = []string{}
			}
			if found {
				out.URL, out.Version = p.URL(), p.Version()
				out.Dependencies = p.Descriptor().Dependencies
			}

			if err := emit(cmd.OutOrStdout(), app.flags.format, out, func(w io.Writer) error {
				if !found {
					_, err := fmt.Fprintf(w, "%s no version of %s satisfies %s\n",
						WarningStyle.Render("!"), out.Name, out.Range)
					return err
				}
				if _, err := fmt.Fprintf(w, "%s@%s %s\n", out.Name, out.Version, SubtitleStyle.Render(out.URL)); err != nil {
					return err
				}
				for _, name := range slices.Sorted(maps.Keys(out.Dependencies)) {
					fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render(name), out.Dependencies[name])
				}
				return nil
			}); err != nil {
				return err
			}
			if !found {
				return &ExitError{Code: 2}
			}
			return nil
		},
	}
}
