package engine

import (
	"path/filepath"
	"testing"

	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/gitx"
	"github.com/skaphos/reposync/internal/manifest"
)

func testEngine(t *testing.T, mirror bool) *Engine {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Repo.Mirror = mirror
	return New(cfg, root, &gitx.GitRunner{})
}

func TestNewDerivesMetaDirAndDriver(t *testing.T) {
	e := testEngine(t, false)
	if e.MetaDir != filepath.Join(e.WorkspaceRoot, ".reposync") {
		t.Errorf("MetaDir = %q, want %q", e.MetaDir, filepath.Join(e.WorkspaceRoot, ".reposync"))
	}
	if e.Driver == nil {
		t.Error("New should default-construct a Driver from the runner")
	}
}

func TestNewDefaultsNilRunner(t *testing.T) {
	e := New(&config.Config{}, t.TempDir(), nil)
	if e.Runner == nil {
		t.Error("New should default to a GitRunner when runner is nil")
	}
}

func TestWellKnownPaths(t *testing.T) {
	e := testEngine(t, false)
	if got, want := e.manifestPath(), filepath.Join(e.MetaDir, "manifest.xml"); got != want {
		t.Errorf("manifestPath = %q, want %q", got, want)
	}
	if got, want := e.projectListPath(), filepath.Join(e.MetaDir, "project.list"); got != want {
		t.Errorf("projectListPath = %q, want %q", got, want)
	}
	if got, want := e.fetchTimesPath(), filepath.Join(e.MetaDir, ".repo_fetchtimes.json"); got != want {
		t.Errorf("fetchTimesPath = %q, want %q", got, want)
	}
	if got, want := e.smartSyncOverridePath(), filepath.Join(e.MetaDir, "smart_sync_override.xml"); got != want {
		t.Errorf("smartSyncOverridePath = %q, want %q", got, want)
	}
}

func TestWorktreeForNonMirror(t *testing.T) {
	e := testEngine(t, false)
	got := e.worktreeFor("a/b")
	want := filepath.Join(e.WorkspaceRoot, "a/b")
	if got != want {
		t.Errorf("worktreeFor = %q, want %q", got, want)
	}
}

func TestWorktreeForMirrorWorkspaceIsAlwaysBare(t *testing.T) {
	e := testEngine(t, true)
	if got := e.worktreeFor("a/b"); got != "" {
		t.Errorf("worktreeFor in a mirror workspace = %q, want empty", got)
	}
}

func TestGitDirAndObjDirLayout(t *testing.T) {
	e := testEngine(t, false)
	if got, want := e.gitDirFor("a/b"), filepath.Join(e.MetaDir, "projects", "a/b.git"); got != want {
		t.Errorf("gitDirFor = %q, want %q", got, want)
	}
	if got, want := e.objDirFor("shared"), filepath.Join(e.MetaDir, "project-objects", "shared.git"); got != want {
		t.Errorf("objDirFor = %q, want %q", got, want)
	}
}

func TestBuildArenaTopLevel(t *testing.T) {
	e := testEngine(t, false)
	m := &manifest.Manifest{
		Projects: []*manifest.Project{
			{Name: "p1", RelPath: "a", RemoteName: "origin", RevisionExpr: "refs/heads/main", Groups: []string{"all", "name:p1", "path:a"}},
			{Name: "p2", RelPath: "b", RemoteName: "origin", RevisionExpr: "refs/heads/main", Groups: []string{"all", "name:p2", "path:b"}},
		},
	}
	arena := e.BuildArena(m)
	if len(arena.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(arena.Projects))
	}
	p1 := arena.ByRelPath("a")
	if p1 == nil {
		t.Fatal("expected project at relpath a")
	}
	if p1.ParentIndex != -1 {
		t.Errorf("top-level project ParentIndex = %d, want -1", p1.ParentIndex)
	}
	if p1.Worktree == "" {
		t.Error("non-mirror project should have a worktree path")
	}
}

func TestBuildArenaSharedObjDir(t *testing.T) {
	e := testEngine(t, false)
	m := &manifest.Manifest{
		Projects: []*manifest.Project{
			{Name: "shared", RelPath: "a", RemoteName: "origin", RevisionExpr: "refs/heads/main"},
			{Name: "shared", RelPath: "b", RemoteName: "origin", RevisionExpr: "refs/heads/main"},
		},
	}
	arena := e.BuildArena(m)
	pa, pb := arena.ByRelPath("a"), arena.ByRelPath("b")
	if pa.ObjDir != pb.ObjDir {
		t.Errorf("projects sharing a name should share an object-dir: %q != %q", pa.ObjDir, pb.ObjDir)
	}
	if pa.GitDir == pb.GitDir {
		t.Error("projects at distinct relpaths must not share a git-dir")
	}
}

func TestBuildArenaNestedSubprojects(t *testing.T) {
	e := testEngine(t, false)
	child := &manifest.Project{Name: "child", RelPath: "parent/child", RemoteName: "origin", RevisionExpr: "refs/heads/main"}
	m := &manifest.Manifest{
		Projects: []*manifest.Project{
			{Name: "parent", RelPath: "parent", RemoteName: "origin", RevisionExpr: "refs/heads/main", Subprojects: []*manifest.Project{child}},
		},
	}
	arena := e.BuildArena(m)
	if len(arena.Projects) != 2 {
		t.Fatalf("expected parent + child, got %d", len(arena.Projects))
	}
	parent := arena.ByRelPath("parent")
	childP := arena.ByRelPath("parent/child")
	if childP.ParentIndex < 0 || arena.Parent(childP) != parent {
		t.Error("child's ParentIndex should resolve back to the parent project")
	}
	kids := arena.Subprojects(parent)
	if len(kids) != 1 || kids[0] != childP {
		t.Errorf("expected parent's SubprojectIndices to include the child, got %+v", kids)
	}
}

func TestBuildArenaMirrorWorkspaceHasNoWorktrees(t *testing.T) {
	e := testEngine(t, true)
	m := &manifest.Manifest{
		Projects: []*manifest.Project{
			{Name: "p1", RelPath: "a", RemoteName: "origin", RevisionExpr: "refs/heads/main"},
		},
	}
	arena := e.BuildArena(m)
	p := arena.ByRelPath("a")
	if !p.IsMirror() {
		t.Error("every project in a mirror workspace must report IsMirror() true")
	}
}

func TestRepoFetchOptionsCarriesBootstrapIndependentFields(t *testing.T) {
	opts := SyncOptions{
		CurrentBranchOnly: true,
		NoTags:            true,
		Quiet:             true,
		CloneBundle:       true,
		OptimizedFetch:    true,
		GlobalDepth:       50,
	}
	fo := repoFetchOptions(opts)
	if !fo.CurrentBranchOnly || !fo.NoTags || !fo.Quiet || !fo.CloneBundleAllowed || !fo.OptimizedFetch {
		t.Errorf("repoFetchOptions dropped a flag: %+v", fo)
	}
	if fo.GlobalDefaultDepth != 50 {
		t.Errorf("GlobalDefaultDepth = %d, want 50", fo.GlobalDefaultDepth)
	}
}
