package logging

import "testing"

func TestNew(t *testing.T) {
	for _, mode := range []string{"development", "release"} {
		log, err := New(mode, "debug")
		if err != nil {
			t.Fatalf("New(%q) failed: %v", mode, err)
		}
		if !log.Core().Enabled(-1) {
			t.Errorf("Expected debug level to be enabled for mode %q", mode)
		}
	}

	if _, err := New("release", "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if Nop().Core().Enabled(2) {
		t.Error("Expected nop logger to discard everything")
	}
}
