// SPDX-License-Identifier: MPL-2.0

// Package descriptor reads and merges package descriptors.
//
// A descriptor is the package.json found at the root of a package directory.
// Besides the familiar name/version/main/dependencies fields it may carry a
// "livemod" block with an alternate main, a packageMap of alias sub-packages
// and hook/bundle declarations.
package descriptor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/invowk/livemod/pkg/cueutil"
	"github.com/invowk/livemod/pkg/resource"
)

// FileName is the descriptor file looked up in every package directory.
const FileName = "package.json"

// DefaultMain is the entry module used when a descriptor declares none.
const DefaultMain = "index"

//go:embed descriptor_schema.cue
var schema []byte

type (
	// Descriptor is the decoded package.json.
	Descriptor struct {
		Name            string            `json:"name,omitempty"`
		Version         string            `json:"version,omitempty"`
		Main            string            `json:"main,omitempty"`
		Dependencies    map[string]string `json:"dependencies,omitempty"`
		DevDependencies map[string]string `json:"devDependencies,omitempty"`
		Livemod         Livemod           `json:"livemod,omitempty"`
	}

	// Livemod is the engine-specific descriptor block.
	Livemod struct {
		Main       string              `json:"main,omitempty"`
		PackageMap map[string]string   `json:"packageMap,omitempty"`
		Hooks      []string            `json:"hooks,omitempty"`
		Bundle     map[string][]string `json:"bundle,omitempty"`
	}
)

// Parse validates and decodes descriptor bytes. filename is used in error messages.
func Parse(data []byte, filename string) (*Descriptor, error) {
	res, err := cueutil.Decode[Descriptor](schema, data, "#Descriptor",
		cueutil.WithFilename(filename),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Read loads the descriptor of the package rooted at dir. A missing
// descriptor is not an error: it yields (nil, nil).
func Read(ctx context.Context, res resource.Resource, dir string) (*Descriptor, error) {
	url := path.Join(resource.Clean(dir), FileName)
	text, err := res.Read(ctx, url)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return Parse([]byte(text), url)
}

// Merge overlays explicit onto discovered. Non-empty scalar fields of
// explicit win; maps are merged key-wise with explicit entries winning.
// Either argument may be nil. The result never aliases the inputs' maps.
func Merge(discovered, explicit *Descriptor) *Descriptor {
	out := &Descriptor{}
	for _, d := range []*Descriptor{discovered, explicit} {
		if d == nil {
			continue
		}
		out.Name = pick(out.Name, d.Name)
		out.Version = pick(out.Version, d.Version)
		out.Main = pick(out.Main, d.Main)
		out.Livemod.Main = pick(out.Livemod.Main, d.Livemod.Main)
		out.Dependencies = mergeMap(out.Dependencies, d.Dependencies)
		out.DevDependencies = mergeMap(out.DevDependencies, d.DevDependencies)
		out.Livemod.PackageMap = mergeMap(out.Livemod.PackageMap, d.Livemod.PackageMap)
		if len(d.Livemod.Hooks) > 0 {
			out.Livemod.Hooks = append([]string(nil), d.Livemod.Hooks...)
		}
		if len(d.Livemod.Bundle) > 0 {
			out.Livemod.Bundle = maps.Clone(d.Livemod.Bundle)
		}
	}
	return out
}

// EffectiveMain returns the entry module path relative to the package root:
// livemod.main, then main, then DefaultMain. A leading "./" is dropped.
func (d *Descriptor) EffectiveMain() string {
	main := DefaultMain
	if d != nil {
		main = pick(pick(main, d.Main), d.Livemod.Main)
	}
	return strings.TrimPrefix(main, "./")
}

func pick(cur, next string) string {
	if next != "" {
		return next
	}
	return cur
}

func mergeMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
