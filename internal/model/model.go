// Package model defines the core data types shared across the sync engine:
// remotes, head/worktree/tracking snapshots, projects, and branch state.
package model

import "time"

// Remote represents a single git remote attached to a project.
type Remote struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	PushURL  string `json:"push_url,omitempty" yaml:"push_url,omitempty"`
	Review   string `json:"review,omitempty" yaml:"review,omitempty"`
	Revision string `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// Head represents the current HEAD state of a project's worktree.
type Head struct {
	Branch   string `json:"branch" yaml:"branch"`
	Detached bool   `json:"detached" yaml:"detached"`
}

// Worktree represents working-tree status. Nil for mirror (bare) projects.
type Worktree struct {
	Dirty     bool `json:"dirty" yaml:"dirty"`
	Staged    int  `json:"staged" yaml:"staged"`
	Unstaged  int  `json:"unstaged" yaml:"unstaged"`
	Untracked int  `json:"untracked" yaml:"untracked"`
	// RebaseInProgress reports whether a rebase was left mid-flight by a
	// prior interrupted sync.
	RebaseInProgress bool `json:"rebase_in_progress" yaml:"rebase_in_progress"`
}

// TrackingStatus enumerates the possible upstream tracking states.
type TrackingStatus string

const (
	TrackingAhead    TrackingStatus = "ahead"
	TrackingBehind   TrackingStatus = "behind"
	TrackingDiverged TrackingStatus = "diverged"
	TrackingEqual    TrackingStatus = "equal"
	TrackingGone     TrackingStatus = "gone"
	TrackingNone     TrackingStatus = "none"
)

// Tracking represents the upstream tracking relationship for a branch.
type Tracking struct {
	Upstream string         `json:"upstream" yaml:"upstream"`
	Status   TrackingStatus `json:"status" yaml:"status"`
	Ahead    *int           `json:"ahead" yaml:"ahead"`
	Behind   *int           `json:"behind" yaml:"behind"`
}

// BranchState is the per-local-branch bookkeeping the local reconciler
// reads and writes: what it merges from, what remote it tracks, whether
// it is the current branch, and the id last published for review.
type BranchState struct {
	Name        string `json:"name" yaml:"name"`
	Merge       string `json:"merge" yaml:"merge"`
	Remote      string `json:"remote" yaml:"remote"`
	Current     bool   `json:"current" yaml:"current"`
	PublishedID string `json:"published_id,omitempty" yaml:"published_id,omitempty"`
}

// Project is the central entity of a workspace: one logical repository
// entry materialized from the manifest. Parent/subproject relationships
// are expressed as indices into a ProjectArena rather than pointers, per
// the arena-of-projects redesign (cyclic pointers eliminated).
type Project struct {
	Name    string `json:"name" yaml:"name"`
	RelPath string `json:"relpath" yaml:"relpath"`

	GitDir   string `json:"gitdir" yaml:"gitdir"`
	ObjDir   string `json:"objdir" yaml:"objdir"`
	Worktree string `json:"worktree,omitempty" yaml:"worktree,omitempty"` // empty = mirror project

	Remote Remote `json:"remote" yaml:"remote"`

	RevisionExpr string `json:"revision_expr" yaml:"revision_expr"`
	RevisionID   string `json:"revision_id,omitempty" yaml:"revision_id,omitempty"` // 40 lowercase hex when set

	Upstream   string `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	DestBranch string `json:"dest_branch,omitempty" yaml:"dest_branch,omitempty"`

	// Groups always implicitly includes "all", "name:<name>", "path:<relpath>"
	// in addition to any manifest-declared groups.
	Groups []string `json:"groups" yaml:"groups"`

	SyncShallowCurrentBranchOnly bool `json:"sync_shallow_current_branch_only" yaml:"sync_shallow_current_branch_only"`
	SyncSubmodules               bool `json:"sync_submodules" yaml:"sync_submodules"`
	CloneDepth                   int  `json:"clone_depth,omitempty" yaml:"clone_depth,omitempty"`
	Rebase                       bool `json:"rebase" yaml:"rebase"`

	CopyFiles []FileMaterialization `json:"copyfiles,omitempty" yaml:"copyfiles,omitempty"`
	LinkFiles []FileMaterialization `json:"linkfiles,omitempty" yaml:"linkfiles,omitempty"`

	// ParentIndex is -1 for top-level projects, else an index into the
	// owning ProjectArena.
	ParentIndex int `json:"parent_index" yaml:"parent_index"`
	// SubprojectIndices holds indices of discovered/declared children.
	SubprojectIndices []int `json:"subproject_indices,omitempty" yaml:"subproject_indices,omitempty"`

	// Derived reports whether this project was registered by submodule
	// discovery rather than declared directly in the manifest.
	Derived bool `json:"derived,omitempty" yaml:"derived,omitempty"`
}

// FileMaterialization describes a single <copyfile>/<linkfile> entry.
type FileMaterialization struct {
	Src  string `json:"src" yaml:"src"`
	Dest string `json:"dest" yaml:"dest"`
}

// IsMirror reports whether the project has no worktree.
func (p *Project) IsMirror() bool { return p.Worktree == "" }

// ProjectArena owns every Project for one workspace and looks them up by
// relpath (ByRelPath) or by name (ByName, first match).
type ProjectArena struct {
	Projects []*Project
}

// NewProjectArena returns an empty arena.
func NewProjectArena() *ProjectArena {
	return &ProjectArena{}
}

// Add appends a project and returns its arena index.
func (a *ProjectArena) Add(p *Project) int {
	a.Projects = append(a.Projects, p)
	return len(a.Projects) - 1
}

// ByRelPath returns the project registered at relpath, or nil.
func (a *ProjectArena) ByRelPath(relpath string) *Project {
	for _, p := range a.Projects {
		if p.RelPath == relpath {
			return p
		}
	}
	return nil
}

// ByName returns the first project registered under name, or nil.
func (a *ProjectArena) ByName(name string) *Project {
	for _, p := range a.Projects {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Parent returns p's parent project, or nil for a top-level project.
func (a *ProjectArena) Parent(p *Project) *Project {
	if p.ParentIndex < 0 || p.ParentIndex >= len(a.Projects) {
		return nil
	}
	return a.Projects[p.ParentIndex]
}

// Subprojects returns p's direct children.
func (a *ProjectArena) Subprojects(p *Project) []*Project {
	out := make([]*Project, 0, len(p.SubprojectIndices))
	for _, idx := range p.SubprojectIndices {
		if idx >= 0 && idx < len(a.Projects) {
			out = append(out, a.Projects[idx])
		}
	}
	return out
}

// ProjectStatus is one row of status-command output: a project plus its
// live worktree/tracking snapshot.
type ProjectStatus struct {
	Name          string     `json:"name" yaml:"name"`
	RelPath       string     `json:"relpath" yaml:"relpath"`
	Type          string     `json:"type" yaml:"type"` // checkout | mirror
	Head          Head       `json:"head" yaml:"head"`
	Worktree      *Worktree  `json:"worktree,omitempty" yaml:"worktree,omitempty"`
	Tracking      Tracking   `json:"tracking" yaml:"tracking"`
	HasSubmodules bool       `json:"has_submodules" yaml:"has_submodules"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty" yaml:"last_sync_at,omitempty"`
	Error         string     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorClass    string     `json:"error_class,omitempty" yaml:"error_class,omitempty"`
}

// StatusReport is the top-level output of the status command.
type StatusReport struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Projects    []ProjectStatus `json:"projects" yaml:"projects"`
}
