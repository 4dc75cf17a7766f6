// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/invowk/livemod/internal/event"
	"github.com/invowk/livemod/pkg/resource"
	"github.com/invowk/livemod/pkg/semver"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind event.Kind, subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && e.Subject() == subject {
			n++
		}
	}
	return n
}

func newTestRegistry(t *testing.T, roots Roots) (*Registry, *resource.FS, *recorder) {
	t.Helper()
	res := resource.NewMemory()
	bus := event.NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	return New(Options{Resource: res, Roots: roots, Bus: bus}), res, rec
}

func writeFile(t *testing.T, res resource.Resource, url, text string) {
	t.Helper()
	if err := res.Write(context.Background(), url, text); err != nil {
		t.Fatalf("Write(%s) error: %v", url, err)
	}
}

func writeDescriptor(t *testing.T, res resource.Resource, dir, body string) {
	t.Helper()
	writeFile(t, res, dir+"/package.json", body)
}

func addVersions(t *testing.T, reg *Registry, res resource.Resource, name string, versions ...string) {
	t.Helper()
	for _, v := range versions {
		dir := fmt.Sprintf("/pkgs/%s/%s", name, v)
		writeDescriptor(t, res, dir, fmt.Sprintf(`{"name": %q, "version": %q}`, name, v))
		if _, err := reg.AddPackageDir(context.Background(), dir, false); err != nil {
			t.Fatalf("AddPackageDir(%s) error: %v", dir, err)
		}
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	reg, res, _ := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "pkg", "1.2.0", "1.2.5", "1.3.0", "2.0.0", "2.1.0-beta.1")

	tests := []struct {
		rng     string
		want    string
		wantHit bool
	}{
		{"^1.2.0", "1.3.0", true},
		{"~1.2.0", "1.2.5", true},
		{"", "2.1.0-beta.1", true},
		{"latest", "2.1.0-beta.1", true},
		{">=2.0.0", "2.0.0", true},
		{">=2.1.0-beta.0", "2.1.0-beta.1", true},
		{"1.2.0 - 1.2.4", "1.2.0", true},
		{"^3.0.0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			t.Parallel()
			p, ok, err := reg.Lookup("pkg", tt.rng)
			if err != nil {
				t.Fatalf("Lookup() error: %v", err)
			}
			if ok != tt.wantHit {
				t.Fatalf("Lookup() ok = %v, want %v", ok, tt.wantHit)
			}
			if ok && p.Version() != tt.want {
				t.Errorf("Lookup() = %s, want %s", p.Version(), tt.want)
			}
		})
	}
}

func TestLookup_InvalidRange(t *testing.T) {
	t.Parallel()

	reg, res, _ := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "pkg", "1.0.0")

	_, _, err := reg.Lookup("pkg", ">>1")
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("Lookup() error = %v, want ResolutionError", err)
	}
	if !errors.Is(err, semver.ErrInvalidRange) {
		t.Errorf("Lookup() error does not wrap ErrInvalidRange: %v", err)
	}
}

func TestLookup_UnknownName(t *testing.T) {
	t.Parallel()

	reg, _, _ := newTestRegistry(t, Roots{})
	if _, ok, err := reg.Lookup("nope", ""); ok || err != nil {
		t.Errorf("Lookup(nope) = %v, %v", ok, err)
	}
}

func TestAddAndRemove_RecomputesLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, rec := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "lib", "1.0.0", "1.1.0")

	p, _, _ := reg.Lookup("lib", Latest)
	if p.Version() != "1.1.0" {
		t.Fatalf("latest = %s, want 1.1.0", p.Version())
	}
	if err := reg.RemovePackage(ctx, "/pkgs/lib/1.1.0"); err != nil {
		t.Fatalf("RemovePackage() error: %v", err)
	}
	p, _, _ = reg.Lookup("lib", Latest)
	if p.Version() != "1.0.0" {
		t.Errorf("latest after remove = %s, want 1.0.0", p.Version())
	}
	if rec.count(event.PackageRemoved, "/pkgs/lib/1.1.0") != 1 {
		t.Error("expected one package-removed event")
	}
	if err := reg.RemovePackage(ctx, "/pkgs/lib/1.1.0"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("second RemovePackage() error = %v, want ErrPackageNotFound", err)
	}
}

func TestUnversionedPackage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, _ := newTestRegistry(t, Roots{})
	writeDescriptor(t, res, "/work/tool", `{"name": "tool"}`)
	if _, err := reg.AddPackageDir(ctx, "/work/tool", false); err != nil {
		t.Fatalf("AddPackageDir() error: %v", err)
	}
	p, ok, _ := reg.Lookup("tool", "")
	if !ok || p.URL() != "/work/tool" {
		t.Fatalf("Lookup(tool) = %v, %v", p, ok)
	}

	addVersions(t, reg, res, "tool", "0.1.0")
	p, _, _ = reg.Lookup("tool", "")
	if p.Version() != "0.1.0" {
		t.Errorf("latest = %q, want versioned sibling 0.1.0", p.Version())
	}
	if got := reg.Versions("tool"); !slices.Equal(got, []string{"", "0.1.0"}) {
		t.Errorf("Versions() = %q", got)
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, rec := newTestRegistry(t, Roots{
		Collections: []string{"/collection", "/missing"},
		Packages:    []string{"/work/app"},
		DevPackages: []string{"/dev/tool"},
	})
	writeDescriptor(t, res, "/collection/lib/1.0.0", `{}`)
	writeDescriptor(t, res, "/collection/lib/1.1.0", `{"main": "lib"}`)
	writeFile(t, res, "/collection/README", "not a package")
	writeDescriptor(t, res, "/work/app", `{"name": "app", "version": "1.0.0"}`)
	writeDescriptor(t, res, "/dev/tool", `{"name": "tool"}`)

	if err := reg.Update(ctx); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got := reg.Versions("lib"); !slices.Equal(got, []string{"1.0.0", "1.1.0"}) {
		t.Errorf("Versions(lib) = %v", got)
	}
	lib, _, _ := reg.Lookup("lib", "")
	if lib.MainID() != "/collection/lib/1.1.0/lib" {
		t.Errorf("MainID() = %s", lib.MainID())
	}
	tool, ok, _ := reg.Lookup("tool", "")
	if !ok || !tool.Dev() {
		t.Errorf("tool not registered as dev package")
	}
	if got := reg.URLs(); len(got) != 4 {
		t.Errorf("URLs() = %v", got)
	}

	if err := res.Fs().RemoveAll("/collection/lib/1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(ctx); err != nil {
		t.Fatalf("second Update() error: %v", err)
	}
	if got := reg.Versions("lib"); !slices.Equal(got, []string{"1.1.0"}) {
		t.Errorf("Versions(lib) after rescan = %v", got)
	}
	if rec.count(event.PackageRemoved, "/collection/lib/1.0.0") != 1 {
		t.Error("stale package not removed")
	}
}

func TestUpdate_Concurrent(t *testing.T) {
	t.Parallel()

	reg, res, _ := newTestRegistry(t, Roots{Packages: []string{"/work/app"}})
	writeDescriptor(t, res, "/work/app", `{"name": "app", "version": "1.0.0"}`)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = reg.Update(context.Background())
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("Update() error: %v", err)
		}
	}
	if got := reg.Versions("app"); !slices.Equal(got, []string{"1.0.0"}) {
		t.Errorf("Versions(app) = %v", got)
	}
}

func TestRegister_AliasCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, rec := newTestRegistry(t, Roots{})
	writeDescriptor(t, res, "/p", `{"name": "p", "livemod": {"packageMap": {"sub": "./sub", "self": "."}}}`)
	writeDescriptor(t, res, "/p/sub", `{"name": "sub", "livemod": {"packageMap": {"parent": ".."}}}`)

	if err := reg.PackageAt("/p").Register(ctx, nil, nil); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if n := rec.count(event.PackageRegistered, "/p"); n != 1 {
		t.Errorf("p registered %d times, want 1", n)
	}
	if n := rec.count(event.PackageRegistered, "/p/sub"); n != 1 {
		t.Errorf("sub registered %d times, want 1", n)
	}
	// "self" from /p and "parent" from /p/sub both point back at /p.
	if n := rec.count(event.CycleNotice, "/p"); n != 2 {
		t.Errorf("cycle notices = %d, want 2", n)
	}
	if _, ok := reg.Package("/p/sub"); !ok {
		t.Error("alias sub-package not registered")
	}
}

func TestRegister_ExplicitDescriptorWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, _ := newTestRegistry(t, Roots{})
	writeDescriptor(t, res, "/work/app", `{"name": "app", "version": "1.0.0", "main": "index"}`)

	p := reg.PackageAt("/work/app")
	if err := p.Register(ctx, nil, nil); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := p.Register(ctx, descriptorWith("2.0.0", "src/main"), nil); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if p.Version() != "2.0.0" || p.Main() != "src/main" {
		t.Errorf("got version %s main %s", p.Version(), p.Main())
	}
	if got := reg.Versions("app"); !slices.Equal(got, []string{"2.0.0"}) {
		t.Errorf("re-registration left stale version: %v", got)
	}
}

func TestRemove_RunsHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, _ := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "lib", "1.0.0")

	var first, second []string
	removeFirst := reg.AddRemoveHook(func(_ context.Context, p *Package) error {
		first = append(first, p.URL())
		return nil
	})
	reg.AddRemoveHook(func(_ context.Context, p *Package) error {
		second = append(second, p.URL())
		return nil
	})
	if err := reg.RemovePackage(ctx, "/pkgs/lib/1.0.0"); err != nil {
		t.Fatalf("RemovePackage() error: %v", err)
	}
	want := []string{"/pkgs/lib/1.0.0"}
	if !slices.Equal(first, want) || !slices.Equal(second, want) {
		t.Errorf("hook calls = %v, %v; want both %v", first, second, want)
	}

	removeFirst()
	addVersions(t, reg, res, "lib", "1.0.1")
	if err := reg.RemovePackage(ctx, "/pkgs/lib/1.0.1"); err != nil {
		t.Fatalf("RemovePackage() error: %v", err)
	}
	if len(first) != 1 || len(second) != 2 {
		t.Errorf("after unregistering: first = %v, second = %v", first, second)
	}

	addVersions(t, reg, res, "lib", "1.1.0")
	boom := errors.New("boom")
	reg.AddRemoveHook(func(context.Context, *Package) error { return boom })
	if err := reg.RemovePackage(ctx, "/pkgs/lib/1.1.0"); !errors.Is(err, boom) {
		t.Errorf("RemovePackage() error = %v, want hook error", err)
	}
	if _, ok := reg.Package("/pkgs/lib/1.1.0"); !ok {
		t.Error("package removed despite hook failure")
	}
}

func TestUpdate_KeepsPackageWithBrokenDescriptor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, rec := newTestRegistry(t, Roots{Collections: []string{"/pkgs"}})
	writeDescriptor(t, res, "/pkgs/lib/1.0.0", `{"name": "lib", "version": "1.0.0"}`)
	if err := reg.Update(ctx); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	var hooked int
	reg.AddRemoveHook(func(context.Context, *Package) error {
		hooked++
		return nil
	})

	// A half-written descriptor, as left by an editor mid-save.
	writeDescriptor(t, res, "/pkgs/lib/1.0.0", `{"name": "lib", "vers`)
	if err := reg.Update(ctx); err == nil {
		t.Fatal("Update() succeeded with an unparsable descriptor")
	}
	if _, ok := reg.Package("/pkgs/lib/1.0.0"); !ok {
		t.Fatal("package dropped because its descriptor failed to parse")
	}
	if p, ok, _ := reg.Lookup("lib", "^1.0.0"); !ok || p.Version() != "1.0.0" {
		t.Errorf("Lookup(lib) after failed rescan = %v, %v", p, ok)
	}
	if hooked != 0 || rec.count(event.PackageRemoved, "/pkgs/lib/1.0.0") != 0 {
		t.Errorf("package removed: hook calls = %d", hooked)
	}

	writeDescriptor(t, res, "/pkgs/lib/1.0.0", `{"name": "lib", "version": "1.0.0"}`)
	if err := reg.Update(ctx); err != nil {
		t.Fatalf("Update() after repair error: %v", err)
	}

	if err := res.Fs().RemoveAll("/pkgs/lib/1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(ctx); err != nil {
		t.Fatalf("Update() after delete error: %v", err)
	}
	if _, ok := reg.Package("/pkgs/lib/1.0.0"); ok {
		t.Error("deleted package still registered")
	}
	if hooked != 1 {
		t.Errorf("hook calls = %d, want 1", hooked)
	}
}

func TestLookup_Prerelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, res, _ := newTestRegistry(t, Roots{})
	addVersions(t, reg, res, "lib", "1.2.0", "1.3.0-beta")

	tests := []struct {
		rng     string
		want    string
		wantHit bool
	}{
		// 1.3.0-beta is in range numerically but no comparator shares 1.3.0.
		{"^1.2.0", "1.2.0", true},
		{">=1.2.1", "", false},
		{">=1.3.0-alpha", "1.3.0-beta", true},
		{"^1.3.0-alpha", "1.3.0-beta", true},
		{"1.3.0-beta", "1.3.0-beta", true},
	}
	for _, tt := range tests {
		p, ok, err := reg.Lookup("lib", tt.rng)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", tt.rng, err)
		}
		if ok != tt.wantHit || (ok && p.Version() != tt.want) {
			t.Errorf("Lookup(%q) = %v, %v; want %q, %v", tt.rng, p, ok, tt.want, tt.wantHit)
		}
	}

	if p, ok, _ := reg.Lookup("lib", "latest"); !ok || p.Version() != "1.3.0-beta" {
		t.Errorf("latest = %v, want 1.3.0-beta", p)
	}
	if err := reg.RemovePackage(ctx, "/pkgs/lib/1.3.0-beta"); err != nil {
		t.Fatalf("RemovePackage() error: %v", err)
	}
	if p, ok, _ := reg.Lookup("lib", "latest"); !ok || p.Version() != "1.2.0" {
		t.Errorf("latest after removing the pre-release = %v, want 1.2.0", p)
	}
}
