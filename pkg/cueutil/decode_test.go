// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Pkg: {
	name:     string & =~"^[a-z]"
	version?: string
	deps?: [string]: string
}
`

type testPkg struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Deps    map[string]string `json:"deps"`
}

func TestDecode_JSON(t *testing.T) {
	t.Parallel()

	data := []byte(`{"name": "lib", "version": "1.0.0", "deps": {"util": "^2"}}`)
	res, err := Decode[testPkg]([]byte(testSchema), data, "#Pkg", WithFilename("package.json"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if res.Value.Name != "lib" || res.Value.Deps["util"] != "^2" {
		t.Errorf("Decode() = %+v", res.Value)
	}
}

func TestDecode_SchemaViolation(t *testing.T) {
	t.Parallel()

	data := []byte(`{"name": "Lib", "deps": {"util": 2}}`)
	_, err := Decode[testPkg]([]byte(testSchema), data, "#Pkg", WithFilename("package.json"), WithConcrete(false))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "package.json") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestDecode_SyntaxError(t *testing.T) {
	t.Parallel()
	_, err := Decode[testPkg]([]byte(testSchema), []byte(`{"name": `), "#Pkg")
	if err == nil || !strings.HasPrefix(err.Error(), "<input>") {
		t.Errorf("Decode() error = %v, want error prefixed with <input>", err)
	}
}

func TestDecode_FileSizeLimit(t *testing.T) {
	t.Parallel()
	_, err := Decode[testPkg]([]byte(testSchema), []byte(`{"name": "abc"}`), "#Pkg", WithMaxFileSize(4))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("Decode() error = %v, want size error", err)
	}
}

func TestDecodeMap(t *testing.T) {
	t.Parallel()
	m, err := DecodeMap([]byte(testSchema), []byte(`name: "x"`), "#Pkg", WithConcrete(false))
	if err != nil {
		t.Fatalf("DecodeMap() error: %v", err)
	}
	if m["name"] != "x" {
		t.Errorf("DecodeMap() = %v", m)
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x.cue") != nil {
		t.Error("FormatError(nil) should be nil")
	}
	err := FormatError(errors.New("boom"), "x.cue")
	if err == nil || err.Error() != "x.cue: boom" {
		t.Errorf("FormatError() = %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"name"}, "name"},
		{[]string{"roots", "packages", "0"}, "roots.packages[0]"},
		{[]string{"a", "1", "b", "22"}, "a[1].b[22]"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
