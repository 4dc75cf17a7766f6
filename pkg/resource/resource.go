// SPDX-License-Identifier: MPL-2.0

// Package resource provides the read/write/list abstraction the package
// registry and the module engine use to reach module sources and package
// descriptors.
//
// Urls are slash-separated absolute paths. A "file://" scheme prefix is
// accepted and stripped. The FS implementation is backed by an afero.Fs, so
// the same code runs against the host filesystem or an in-memory tree.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FileScheme is the optional url scheme prefix accepted by FS.
const FileScheme = "file://"

// ErrNotFound is returned by Read when the url does not exist.
var ErrNotFound = errors.New("resource not found")

type (
	// Resource reads, writes and lists url-addressed text files.
	Resource interface {
		Read(ctx context.Context, url string) (string, error)
		Write(ctx context.Context, url, text string) error
		Exists(ctx context.Context, url string) (bool, error)
		ListChildren(ctx context.Context, url string) ([]Entry, error)
	}

	// Entry is one child returned by ListChildren.
	Entry struct {
		URL   string
		Name  string
		IsDir bool
	}

	// FS is a Resource backed by an afero filesystem.
	FS struct {
		fs afero.Fs
	}
)

// New wraps an afero filesystem.
func New(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// NewOS returns a Resource over the host filesystem.
func NewOS() *FS {
	return New(afero.NewOsFs())
}

// NewMemory returns a Resource over an empty in-memory filesystem.
func NewMemory() *FS {
	return New(afero.NewMemMapFs())
}

// Fs exposes the underlying afero filesystem.
func (r *FS) Fs() afero.Fs { return r.fs }

// Clean normalizes a url to a clean absolute slash path.
func Clean(url string) string {
	url = strings.TrimPrefix(url, FileScheme)
	if url == "" {
		return "/"
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return path.Clean(url)
}

// Read returns the text stored at url.
func (r *FS) Read(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := afero.ReadFile(r.fs, Clean(url))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", url, ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(data), nil
}

// Write stores text at url, creating parent directories as needed.
func (r *FS) Write(ctx context.Context, url, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := Clean(url)
	if err := r.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", url, err)
	}
	if err := afero.WriteFile(r.fs, p, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", url, err)
	}
	return nil
}

// Exists reports whether url names an existing file or directory.
func (r *FS) Exists(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := afero.Exists(r.fs, Clean(url))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", url, err)
	}
	return ok, nil
}

// IsFile reports whether url names an existing regular file.
func (r *FS) IsFile(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := r.fs.Stat(Clean(url))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", url, err)
	}
	return !info.IsDir(), nil
}

// ListChildren returns the direct children of the directory at url, sorted by name.
func (r *FS) ListChildren(ctx context.Context, url string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := Clean(url)
	infos, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", url, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			URL:   path.Join(dir, info.Name()),
			Name:  info.Name(),
			IsDir: info.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
