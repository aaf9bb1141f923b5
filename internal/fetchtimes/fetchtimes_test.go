package fetchtimes

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefault(t *testing.T) {
	m := Load(filepath.Join(t.TempDir(), "missing.json"))
	if got := m.Get("never-seen"); got != defaultSeconds {
		t.Errorf("Get(unseen) = %v, want %v", got, defaultSeconds)
	}
}

func TestSetEWMA(t *testing.T) {
	m := Load(filepath.Join(t.TempDir(), "missing.json"))
	m.Set("p1", 10)
	want := alpha*10 + (1-alpha)*defaultSeconds
	if got := m.Get("p1"); got != want {
		t.Errorf("after first Set: got %v want %v", got, want)
	}
	m.Set("p1", 10)
	want2 := alpha*10 + (1-alpha)*want
	if got := m.Get("p1"); got != want2 {
		t.Errorf("after second Set: got %v want %v", got, want2)
	}
}

func TestSavePrunesUnobserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "times.json")
	m := Load(path)
	m.Set("kept", 5)
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := Load(path)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if got := reloaded.Get("kept"); got == defaultSeconds {
		t.Error("expected persisted value for 'kept', got default")
	}

	// Second run observes nothing for "kept" — it should be pruned on save.
	reloaded.Set("other", 1)
	if err := reloaded.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	final := Load(path)
	if got := final.Get("kept"); got != defaultSeconds {
		t.Errorf("expected 'kept' pruned back to default, got %v", got)
	}
}

func TestLoadCorruptResetsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "times.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := Load(path)
	if got := m.Get("anything"); got != defaultSeconds {
		t.Errorf("corrupt load should reset to empty, got %v", got)
	}
}
