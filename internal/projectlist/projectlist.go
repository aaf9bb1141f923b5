// Package projectlist implements the project-list reconciler: it keeps
// the persistent project.list file in sync with the manifest's current
// relpath set, deleting worktrees (and now-empty parent directories)
// that dropped out, refusing to delete any with uncommitted changes.
// Grounded on cmd/repokeeper/delete.go and move.go's save-with-rollback
// idiom, extended with a dirty-check-before-delete guard.
package projectlist

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirtyError reports that a project slated for removal still has
// uncommitted changes, aborting the entire sync rather than discarding
// them.
type DirtyError struct {
	RelPath string
	Files   []string
}

func (e *DirtyError) Error() string {
	return "project at " + e.RelPath + " has uncommitted changes, refusing to remove it"
}

// UncommittedChecker reports pending changes for a worktree path, or nil
// if clean. Implemented by internal/repo.Handle.UncommittedFiles in
// production; a test double in tests.
type UncommittedChecker func(relpath string) ([]string, error)

// Read loads the current project.list contents (empty if the file is
// absent).
func Read(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// Write persists relpaths sorted ascending, newline-terminated, so
// repeated syncs produce a byte-identical file for an unchanged set.
func Write(path string, relpaths []string) error {
	sorted := append([]string(nil), relpaths...)
	sort.Strings(sorted)
	var sb strings.Builder
	for _, p := range sorted {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// Reconcile computes the set of relpaths to remove (old \ new still
// present on disk) and refuses if any of them are dirty. On success it
// removes each worktree directory and prunes now-empty parent
// directories up to workspaceRoot, then writes the new project.list.
func Reconcile(listPath, workspaceRoot string, newRelpaths []string, isDirty UncommittedChecker) ([]string, error) {
	oldRelpaths, err := Read(listPath)
	if err != nil {
		return nil, err
	}

	newSet := make(map[string]bool, len(newRelpaths))
	for _, p := range newRelpaths {
		newSet[p] = true
	}

	var toRemove []string
	for _, p := range oldRelpaths {
		if newSet[p] {
			continue
		}
		full := filepath.Join(workspaceRoot, p)
		if _, err := os.Stat(full); err != nil {
			continue
		}
		toRemove = append(toRemove, p)
	}

	for _, p := range toRemove {
		files, err := isDirty(p)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			return nil, &DirtyError{RelPath: p, Files: files}
		}
	}

	for _, p := range toRemove {
		full := filepath.Join(workspaceRoot, p)
		if err := os.RemoveAll(full); err != nil {
			return nil, err
		}
		pruneEmptyParents(filepath.Dir(full), workspaceRoot)
	}

	if err := Write(listPath, newRelpaths); err != nil {
		return nil, err
	}
	return toRemove, nil
}

// pruneEmptyParents removes dir and each ancestor up to (exclusive of)
// root, stopping at the first non-empty directory.
func pruneEmptyParents(dir, root string) {
	root = filepath.Clean(root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || dir == "." || dir == string(filepath.Separator) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
