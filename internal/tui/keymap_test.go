package tui

import "testing"

// TestKeyMapBindingsAreDistinct verifies no two actions share a key.
func TestKeyMapBindingsAreDistinct(t *testing.T) {
	keys := newKeyMap()
	owner := map[string]string{}
	total := 0
	for _, group := range keys.FullHelp() {
		for _, binding := range group {
			total++
			for _, k := range binding.Keys() {
				if prev, ok := owner[k]; ok {
					t.Fatalf("key %q bound to both %q and %q", k, prev, binding.Help().Desc)
				}
				owner[k] = binding.Help().Desc
			}
		}
	}
	if total != 26 {
		t.Fatalf("expected 26 bindings in full help, got %d", total)
	}
}

// TestShortHelpIsSubsetOfFullHelp verifies footer bindings also appear in the overlay.
func TestShortHelpIsSubsetOfFullHelp(t *testing.T) {
	keys := newKeyMap()
	full := map[string]bool{}
	for _, group := range keys.FullHelp() {
		for _, binding := range group {
			full[binding.Help().Key] = true
		}
	}
	for _, binding := range keys.ShortHelp() {
		if !full[binding.Help().Key] {
			t.Fatalf("short help key %q missing from full help", binding.Help().Key)
		}
	}
}
