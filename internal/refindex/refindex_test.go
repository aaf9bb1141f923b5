package refindex

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPackedAndLoose(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "packed-refs"), "# pack-refs with: peeled fully-peeled sorted\n"+
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa refs/heads/main\n")
	writeFile(t, filepath.Join(dir, "refs", "heads", "topic"), "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb\n")
	writeFile(t, filepath.Join(dir, "HEAD"), "ref: refs/heads/main\n")

	idx, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := idx.Get("refs/heads/main"); got != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("refs/heads/main = %q", got)
	}
	if got := idx.Get("refs/heads/topic"); got != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("refs/heads/topic = %q", got)
	}
	// HEAD is a symref that resolves through refs/heads/main.
	if got := idx.Get("HEAD"); got != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("HEAD resolved = %q, want main's id", got)
	}
	if got := idx.Symref("HEAD"); got != "" {
		t.Errorf("HEAD should resolve fully, got symref target %q", got)
	}
}

func TestUnresolvedSymref(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "HEAD"), "ref: refs/heads/does-not-exist\n")

	idx, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := idx.Symref("HEAD"); got != "refs/heads/does-not-exist" {
		t.Errorf("Symref(HEAD) = %q", got)
	}
	if got := idx.Get("HEAD"); got != "" {
		t.Errorf("Get(HEAD) on unresolved symref = %q, want empty", got)
	}
}

func TestStaleDetection(t *testing.T) {
	dir := t.TempDir()
	headPath := filepath.Join(dir, "HEAD")
	writeFile(t, headPath, "ref: refs/heads/main\n")

	idx, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Stale() {
		t.Fatal("freshly loaded index should not be stale")
	}

	// Touch HEAD with different content/mtime.
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/other\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := mustStat(t, headPath).ModTime().Add(1)
	if err := os.Chtimes(headPath, future, future); err != nil {
		t.Fatal(err)
	}
	if !idx.Stale() {
		t.Error("index should report stale after HEAD mtime changed")
	}
}

func mustStat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestDeletedPurgesEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "refs", "heads", "topic"), "cccccccccccccccccccccccccccccccccccccccc\n")
	idx, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Get("refs/heads/topic") == "" {
		t.Fatal("expected topic ref to be present")
	}
	idx.Deleted("refs/heads/topic")
	if got := idx.Get("refs/heads/topic"); got != "" {
		t.Errorf("Get after Deleted = %q, want empty", got)
	}
}
