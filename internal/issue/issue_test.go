// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

// stubRender swaps glamour out for an identity renderer. Tests using it must
// not run in parallel.
func stubRender(t *testing.T) {
	t.Helper()
	original := render
	render = func(in string, _ string) (string, error) { return in, nil }
	t.Cleanup(func() { render = original })
}

func TestValues_OrderedAndComplete(t *testing.T) {
	values := Values()
	if len(values) != int(PermissionDeniedId) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), PermissionDeniedId)
	}
	for i, is := range values {
		if is.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, is.Id(), i+1)
		}
		if Get(is.Id()) != is {
			t.Errorf("Get(%d) does not return the listed issue", is.Id())
		}
	}
}

func TestGet_Unknown(t *testing.T) {
	if Get(Id(9999)) != nil {
		t.Error("Get() of unknown id should be nil")
	}
}

func TestAllIssuesHaveContentAndDocs(t *testing.T) {
	for _, is := range Values() {
		if strings.TrimSpace(string(is.MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", is.Id())
		}
		if len(is.DocLinks()) == 0 {
			t.Errorf("issue %d has no doc links", is.Id())
		}
	}
}

func TestIssue_LinksAreCloned(t *testing.T) {
	is := Get(NoMatchingVersionId)
	links := is.DocLinks()
	links[0] = "changed"
	if is.DocLinks()[0] == "changed" {
		t.Error("DocLinks() must return a copy")
	}
	ext := is.ExtLinks()
	ext[0] = "changed"
	if is.ExtLinks()[0] == "changed" {
		t.Error("ExtLinks() must return a copy")
	}
}

func TestIssue_Render(t *testing.T) {
	stubRender(t)

	out, err := Get(PackageNotFoundId).Render("")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, want := range []string{"# Package not found!", "## See also", "- <" + docsBase + "packages.md>"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
}

func TestIssue_RenderWithoutLinks(t *testing.T) {
	stubRender(t)

	is := &Issue{id: Id(100), mdMsg: "# plain"}
	out, err := is.Render("")
	if err != nil {
		t.Fatal(err)
	}
	if out != "# plain" {
		t.Errorf("Render() = %q", out)
	}
}

func TestIssue_RenderGlamour(t *testing.T) {
	out, err := Get(ModuleBusyId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "The module is busy") {
		t.Errorf("Render() output missing heading:\n%s", out)
	}
}
