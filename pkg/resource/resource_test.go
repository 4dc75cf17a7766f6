// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"file:///a/b/../c", "/a/c"},
		{"/a//b/", "/a/b"},
		{"a/b", "/a/b"},
		{"", "/"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFS_ReadWriteList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewMemory()

	if err := r.Write(ctx, "/pkgs/lib/index.cue", "x: 1\n"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := r.Write(ctx, "file:///pkgs/lib/package.json", "{}"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	text, err := r.Read(ctx, "/pkgs/lib/index.cue")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if text != "x: 1\n" {
		t.Errorf("Read() = %q", text)
	}

	ok, err := r.Exists(ctx, "/pkgs/lib")
	if err != nil || !ok {
		t.Errorf("Exists(/pkgs/lib) = %v, %v; want true", ok, err)
	}
	isFile, err := r.IsFile(ctx, "/pkgs/lib")
	if err != nil || isFile {
		t.Errorf("IsFile(/pkgs/lib) = %v, %v; want false", isFile, err)
	}

	entries, err := r.ListChildren(ctx, "/pkgs/lib")
	if err != nil {
		t.Fatalf("ListChildren() error: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "index.cue" || entries[1].URL != "/pkgs/lib/package.json" {
		t.Errorf("ListChildren() = %+v", entries)
	}
}

func TestFS_ReadMissing(t *testing.T) {
	t.Parallel()
	_, err := NewMemory().Read(context.Background(), "/nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestFS_OS(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("urls are slash paths rooted at /")
	}
	ctx := context.Background()
	dir := filepath.ToSlash(t.TempDir())
	r := NewOS()
	if err := r.Write(ctx, dir+"/a/b.txt", "hi"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := r.Read(ctx, dir+"/a/b.txt")
	if err != nil || got != "hi" {
		t.Errorf("Read() = %q, %v", got, err)
	}
}

func TestFS_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory().Read(ctx, "/x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}
