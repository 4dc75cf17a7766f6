// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/livemod/pkg/descriptor"
	"github.com/invowk/livemod/pkg/resource"
)

const updateKey = "update"

type scanTarget struct {
	dir string
	dev bool
	// defaults fill in name and version for collection entries whose
	// descriptor omits them.
	defaults *descriptor.Descriptor
}

// Update rescans every configured root, registering each package
// directory found and dropping previously scanned packages that are gone.
// A call made while another Update is in flight waits for that scan and
// returns its result instead of starting a second one.
func (r *Registry) Update(ctx context.Context) error {
	_, err, shared := r.updates.Do(updateKey, func() (any, error) {
		return nil, r.scan(ctx)
	})
	if shared {
		r.logger.Debug("joined in-flight registry update")
	}
	return err
}

func (r *Registry) scan(ctx context.Context) error {
	targets, err := r.discover(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(targets))
	var errs []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := r.addDir(ctx, t.dir, t.dev, t.defaults)
		if err != nil {
			errs = append(errs, err)
			// A package whose descriptor is unreadable keeps its previous
			// registration until its directory is gone.
			if ok, existsErr := r.res.Exists(ctx, t.dir); existsErr == nil && ok {
				seen[resource.Clean(t.dir)] = true
			}
			continue
		}
		seen[p.URL()] = true
	}

	r.mu.Lock()
	var stale []*Package
	for url := range r.scanned {
		if !seen[url] {
			if p, ok := r.byURL[url]; ok && p.registered {
				stale = append(stale, p)
			}
		}
	}
	r.scanned = seen
	r.mu.Unlock()

	for _, p := range stale {
		if err := p.Remove(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Debug("registry updated", "packages", len(seen), "removed", len(stale))
	return errors.Join(errs...)
}

// discover lists the package directories under the configured roots.
// Missing roots are skipped.
func (r *Registry) discover(ctx context.Context) ([]scanTarget, error) {
	var targets []scanTarget
	for _, root := range r.roots.Collections {
		names, err := r.listDirs(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, nameDir := range names {
			versions, err := r.listDirs(ctx, nameDir.URL)
			if err != nil {
				return nil, err
			}
			for _, v := range versions {
				targets = append(targets, scanTarget{
					dir:      v.URL,
					defaults: &descriptor.Descriptor{Name: nameDir.Name, Version: v.Name},
				})
			}
		}
	}
	for _, dir := range r.roots.Packages {
		targets = append(targets, scanTarget{dir: dir})
	}
	for _, dir := range r.roots.DevPackages {
		targets = append(targets, scanTarget{dir: dir, dev: true})
	}
	return targets, nil
}

func (r *Registry) listDirs(ctx context.Context, url string) ([]resource.Entry, error) {
	entries, err := r.res.ListChildren(ctx, url)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			r.logger.Debug("skipping missing root", "url", url)
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", url, err)
	}
	dirs := entries[:0]
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}

// AddPackageDir registers the package rooted at dir without a full rescan.
// Only the latest pointer of the package's name is recomputed.
func (r *Registry) AddPackageDir(ctx context.Context, dir string, dev bool) (*Package, error) {
	return r.addDir(ctx, dir, dev, nil)
}

func (r *Registry) addDir(ctx context.Context, dir string, dev bool, defaults *descriptor.Descriptor) (*Package, error) {
	p := r.PackageAt(dir)
	if dev {
		p.markDev()
	}
	if err := p.register(ctx, defaults, nil, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// RemovePackage removes the registered package rooted at url.
func (r *Registry) RemovePackage(ctx context.Context, url string) error {
	p, ok := r.Package(url)
	if !ok {
		return &ResolutionError{Spec: url, Err: ErrPackageNotFound}
	}
	return p.Remove(ctx)
}
