// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"
	"testing"
)

func TestDependencyTree_ExpandsSharedSubtreesOnce(t *testing.T) {
	t.Parallel()

	// Twenty stacked diamonds: every layer has two modules that both import
	// the two modules of the next layer.
	const layers = 20
	deps := map[string][]string{"/root.cue": {"/l0a.cue", "/l0b.cue"}}
	for i := range layers - 1 {
		next := []string{fmt.Sprintf("/l%da.cue", i+1), fmt.Sprintf("/l%db.cue", i+1)}
		deps[fmt.Sprintf("/l%da.cue", i)] = next
		deps[fmt.Sprintf("/l%db.cue", i)] = next
	}

	out := dependencyTree("/root.cue", deps).String()

	lines := strings.Count(out, "\n") + 1
	if lines > 4*layers+1 {
		t.Fatalf("tree has %d lines, want at most %d", lines, 4*layers+1)
	}
	for i := range layers {
		for _, id := range []string{fmt.Sprintf("/l%da.cue", i), fmt.Sprintf("/l%db.cue", i)} {
			if !strings.Contains(out, id) {
				t.Errorf("tree is missing %s", id)
			}
		}
	}
	if !strings.Contains(out, "(see above)") {
		t.Errorf("shared subtrees are not marked:\n%s", out)
	}
}

func TestDependencyTree_MarksCycles(t *testing.T) {
	t.Parallel()

	deps := map[string][]string{
		"/a.cue": {"/b.cue", "/c.cue"},
		"/b.cue": {"/a.cue"},
		"/c.cue": {"/b.cue"},
	}
	out := dependencyTree("/a.cue", deps).String()
	if !strings.Contains(out, "(cycle)") {
		t.Errorf("cycle back to /a.cue not marked:\n%s", out)
	}
	if strings.Count(out, "/b.cue") != 2 || !strings.Contains(out, "(see above)") {
		t.Errorf("/b.cue should be expanded once and referenced once:\n%s", out)
	}
}
