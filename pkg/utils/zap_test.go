package utils

import "testing"

func TestSetLevel(t *testing.T) {
	defer SetLevel("debug")

	for _, l := range []string{"debug", "info", "warn", "warning", "error", ""} {
		if err := SetLevel(l); err != nil {
			t.Errorf("SetLevel(%q): %s", l, err)
		}
	}
	if err := SetLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
