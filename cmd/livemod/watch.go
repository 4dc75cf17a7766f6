// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/invowk/livemod/internal/engine"
	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/internal/watch"
	"github.com/invowk/livemod/pkg/descriptor"
)

func newWatchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <spec>...",
		Short: "Load modules and hot-reload them as their files change",
		Long: `Load modules and keep them live while their sources change on disk.

A changed module is re-executed in place and its importers see the new
exports. A deleted module is unloaded. Changes to package descriptors
rescan the package roots. Stop with Ctrl+C.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			mods, err := s.load(ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range mods {
				renderExports(out, exportsOf(m))
			}

			unsubscribe := s.sys.Bus().Subscribe(func(e event.Event) {
				switch e.Kind {
				case event.ModuleChanged:
					if e.Err != nil {
						return
					}
					if m := s.sys.Module(e.ID); m != nil && m.IsLoaded() {
						renderExports(out, exportsOf(m))
					}
				case event.ModuleUnloaded:
					fmt.Fprintln(out, WarningStyle.Render("unloaded ")+e.ID)
				}
			}, event.ModuleChanged, event.ModuleUnloaded)
			defer unsubscribe()

			w, err := watch.New(watch.Config{
				Roots:    watchRoots(s),
				Patterns: s.cfg.Watch.Patterns,
				Ignore:   s.cfg.Watch.Ignore,
				Debounce: s.cfg.Watch.Debounce,
				OnChange: (&reloader{s: s}).apply,
				Logger:   s.logger.WithPrefix("watch"),
			})
			if err != nil {
				return explain(err, "start watcher", "")
			}

			s.logger.Info("watching", "roots", len(w.Roots()), "modules", len(s.sys.LoadedModules()))
			if err := w.Run(ctx); err != nil {
				return explain(err, "watch files", "")
			}
			return nil
		},
	}
}

// watchRoots returns the package roots plus the directory of every live
// module that lives outside them.
func watchRoots(s *session) []string {
	roots := s.roots()
	for _, id := range s.sys.LoadedModules() {
		dir := filepath.FromSlash(path.Dir(id))
		if !slices.ContainsFunc(roots, func(r string) bool { return within(r, dir) }) {
			roots = append(roots, dir)
		}
	}
	return roots
}

func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// reloader turns batches of file changes into registry rescans and module
// source changes.
type reloader struct {
	s *session
}

func (r *reloader) apply(ctx context.Context, paths []string) error {
	logger := r.s.logger
	rescan := false
	var changed []string
	for _, p := range paths {
		if filepath.Base(p) == descriptor.FileName {
			rescan = true
			continue
		}
		changed = append(changed, filepath.ToSlash(p))
	}

	if rescan {
		if err := r.s.reg.Update(ctx); err != nil {
			logger.Error("rescan failed", "err", explain(err, "scan package roots", ""))
		} else {
			logger.Info("package roots rescanned", "packages", len(r.s.reg.Packages()))
		}
	}

	live := r.s.sys.LoadedModules()
	for _, id := range changed {
		if !slices.Contains(live, id) {
			logger.Debug("ignoring change", "path", id)
			continue
		}
		r.update(ctx, logger, r.s.sys.Module(id))
	}
	return nil
}

func (r *reloader) update(ctx context.Context, logger *log.Logger, m *engine.Module) {
	data, err := os.ReadFile(filepath.FromSlash(m.ID()))
	if errors.Is(err, fs.ErrNotExist) {
		r.s.sys.Unload(m.ID(), engine.UnloadOptions{})
		return
	}
	if err != nil {
		logger.Error("read failed", "module", m.ID(), "err", err)
		return
	}
	if current, err := m.Source(ctx); err == nil && current == string(data) {
		return
	}
	if err := r.s.sys.ChangeSource(ctx, m.ID(), string(data), engine.ChangeOptions{}); err != nil {
		logger.Error("reload failed", "module", m.ID(), "err", explain(err, "change source", m.ID()))
		return
	}
	logger.Info("reloaded", "module", m.ID())
}
