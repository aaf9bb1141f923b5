// Package manifest parses the XML manifest that declares a workspace's
// remotes, default revision policy, and project tree, and resolves it
// into a flat, fully-inherited project list.
package manifest

// RemoteSpec is a resolved <remote> element.
type RemoteSpec struct {
	Name     string
	Alias    string
	Fetch    string
	Review   string
	Revision string
}

// DefaultSpec is the resolved <default> element. At most one may appear
// across a manifest and its includes; duplicates must be identical.
type DefaultSpec struct {
	RemoteName     string
	RevisionExpr   string
	DestBranchExpr string
	SyncJ          int
	SyncC          bool
	SyncS          bool
}

// CopyFile is a resolved <copyfile> element.
type CopyFile struct {
	Src  string
	Dest string
}

// LinkFile is a resolved <linkfile> element.
type LinkFile struct {
	Src  string
	Dest string
}

// Annotation is a resolved <annotation> element.
type Annotation struct {
	Name  string
	Value string
	Keep  bool
}

// Project is a resolved <project> element: every attribute inherited from
// <default>/<remote> has already been applied, and groups carry the
// implicit all/name:/path: entries.
type Project struct {
	Name    string
	Path    string // path attribute as declared, before relpath join
	RelPath string

	RemoteName string
	Remote     RemoteSpec

	RevisionExpr string
	Upstream     string
	DestBranch   string

	Groups []string

	Rebase       bool
	SyncC        bool
	SyncS        bool
	CloneDepth   int
	ForcePath    bool

	CopyFiles   []CopyFile
	LinkFiles   []LinkFile
	Annotations []Annotation

	ParentName  string // "" for top-level projects
	Subprojects []*Project
}

// Manifest is the fully resolved manifest: every include merged, every
// project's remote/revision/groups inherited, extend-project and
// remove-project applied.
type Manifest struct {
	Remotes map[string]RemoteSpec
	Default DefaultSpec

	Notice            string
	ManifestServerURL string

	// Projects holds only top-level projects; walk Subprojects for the
	// nested tree, or use Flatten for a depth-first flat list.
	Projects []*Project

	RepoHooksProject string
	EnabledRepoHooks []string
}

// Flatten returns every project (top-level and nested) in depth-first
// declaration order.
func (m *Manifest) Flatten() []*Project {
	var out []*Project
	var walk func(*Project)
	walk = func(p *Project) {
		out = append(out, p)
		for _, c := range p.Subprojects {
			walk(c)
		}
	}
	for _, p := range m.Projects {
		walk(p)
	}
	return out
}
