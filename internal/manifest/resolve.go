package manifest

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/skaphos/reposync/internal/strutil"
)

// resolve folds a flat, include-expanded node list into a fully resolved
// Manifest: remotes collected, exactly one default merged (fragments must
// agree when more than one <default> appears), projects inherited from
// remote/default and given their implicit groups, extend-project and
// remove-project applied in declaration order.
func resolve(nodes []rawNode, rootFile string) (*Manifest, error) {
	m := &Manifest{Remotes: map[string]RemoteSpec{}}

	haveDefault := false
	byName := map[string]*Project{}
	order := []string{} // top-level project names in declaration order

	for _, n := range nodes {
		switch n.kind {
		case nodeRemote:
			rs := RemoteSpec{
				Name:     n.remote.Name,
				Alias:    n.remote.Alias,
				Fetch:    n.remote.Fetch,
				Review:   n.remote.Review,
				Revision: n.remote.Revision,
			}
			if rs.Name == "" {
				return nil, parseErrf(rootFile, "remote element missing name")
			}
			m.Remotes[rs.Name] = rs

		case nodeDefault:
			def := DefaultSpec{
				RemoteName:     n.def.Remote,
				RevisionExpr:   n.def.Revision,
				DestBranchExpr: n.def.DestBranch,
			}
			if n.def.SyncJ != "" {
				j, err := strconv.Atoi(n.def.SyncJ)
				if err != nil {
					return nil, parseErrf(rootFile, "default sync-j %q is not an integer", n.def.SyncJ)
				}
				def.SyncJ = j
			}
			def.SyncC = parseBoolAttr(n.def.SyncC)
			def.SyncS = parseBoolAttr(n.def.SyncS)
			if haveDefault && !defaultsEqual(m.Default, def) {
				return nil, parseErrf(rootFile, "conflicting <default> elements across included fragments")
			}
			m.Default = def
			haveDefault = true

		case nodeNotice:
			m.Notice = strings.TrimSpace(n.notice.Text)

		case nodeServer:
			m.ManifestServerURL = n.server.URL

		case nodeProject:
			p, err := resolveProject(n.project, m, "")
			if err != nil {
				return nil, err
			}
			if existing, ok := byName[p.Name]; ok {
				return nil, parseErrf(rootFile, "duplicate project %q (already declared at path %q)", p.Name, existing.RelPath)
			}
			byName[p.Name] = p
			order = append(order, p.Name)

		case nodeExtend:
			target, ok := byName[n.extend.Name]
			if !ok {
				return nil, parseErrf(rootFile, "extend-project refers to unknown project %q", n.extend.Name)
			}
			if n.extend.Path != "" {
				target.ForcePath = true
				target.Path = n.extend.Path
				target.RelPath = n.extend.Path
			}
			if n.extend.Groups != "" {
				target.Groups = mergeGroups(target.Groups, strutil.SplitCSV(n.extend.Groups))
			}

		case nodeRemove:
			if _, ok := byName[n.remove.Name]; !ok {
				return nil, parseErrf(rootFile, "remove-project refers to unknown project %q", n.remove.Name)
			}
			delete(byName, n.remove.Name)
			order = removeString(order, n.remove.Name)

		case nodeRepoHooks:
			m.RepoHooksProject = n.hooks.InProject
			m.EnabledRepoHooks = strutil.SplitCSV(n.hooks.EnabledList)
		}
	}

	if !haveDefault {
		return nil, parseErrf(rootFile, "manifest has no <default> element")
	}

	for _, name := range order {
		p := byName[name]
		if err := finalizeProject(p, m); err != nil {
			return nil, err
		}
		m.Projects = append(m.Projects, p)
	}

	return m, nil
}

func resolveProject(raw *rawProject, m *Manifest, parentRelPath string) (*Project, error) {
	if raw.Name == "" {
		return nil, parseErrf("", "project element missing name")
	}
	relpath := raw.Path
	if relpath == "" {
		relpath = raw.Name
	}
	if parentRelPath != "" {
		relpath = path.Join(parentRelPath, relpath)
	}

	p := &Project{
		Name:         raw.Name,
		Path:         raw.Path,
		RelPath:      relpath,
		RemoteName:   raw.Remote,
		RevisionExpr: raw.Revision,
		Upstream:     raw.Upstream,
		DestBranch:   raw.DestBranch,
		SyncC:        parseBoolAttr(raw.SyncC),
		SyncS:        parseBoolAttr(raw.SyncS),
		Rebase:       parseBoolAttrDefault(raw.Rebase, true),
	}
	if raw.CloneDepth != "" {
		d, err := strconv.Atoi(raw.CloneDepth)
		if err != nil {
			return nil, parseErrf("", "project %q clone-depth %q is not an integer", raw.Name, raw.CloneDepth)
		}
		p.CloneDepth = d
	}
	for _, cf := range raw.CopyFiles {
		p.CopyFiles = append(p.CopyFiles, CopyFile{Src: cf.Src, Dest: cf.Dest})
	}
	for _, lf := range raw.LinkFiles {
		p.LinkFiles = append(p.LinkFiles, LinkFile{Src: lf.Src, Dest: lf.Dest})
	}
	for _, a := range raw.Annotations {
		p.Annotations = append(p.Annotations, Annotation{Name: a.Name, Value: a.Value, Keep: parseBoolAttrDefault(a.Keep, true)})
	}
	if raw.Groups != "" {
		p.Groups = strutil.SplitCSV(raw.Groups)
	}

	for i := range raw.Projects {
		child, err := resolveProject(&raw.Projects[i], m, relpath)
		if err != nil {
			return nil, err
		}
		child.ParentName = p.Name
		p.Subprojects = append(p.Subprojects, child)
	}

	return p, nil
}

// finalizeProject applies remote/default inheritance and implicit groups,
// recursing into subprojects so every node in the tree is fully resolved.
func finalizeProject(p *Project, m *Manifest) error {
	remoteName := p.RemoteName
	if remoteName == "" {
		remoteName = m.Default.RemoteName
	}
	if remoteName == "" {
		return parseErrf("", "project %q has no remote (none declared, none in <default>)", p.Name)
	}
	remote, ok := m.Remotes[remoteName]
	if !ok {
		return fmt.Errorf("project %q refers to unknown remote %q", p.Name, remoteName)
	}
	p.RemoteName = remoteName
	p.Remote = remote

	if p.RevisionExpr == "" {
		p.RevisionExpr = remote.Revision
	}
	if p.RevisionExpr == "" {
		p.RevisionExpr = m.Default.RevisionExpr
	}
	if p.RevisionExpr == "" {
		return fmt.Errorf("project %q has no revision (none explicit, none from remote, none from default)", p.Name)
	}

	if p.DestBranch == "" {
		p.DestBranch = m.Default.DestBranchExpr
	}

	implicit := []string{"all", "name:" + p.Name, "path:" + p.RelPath}
	p.Groups = mergeGroups(implicit, p.Groups)

	for _, c := range p.Subprojects {
		if err := finalizeProject(c, m); err != nil {
			return err
		}
	}
	return nil
}

func mergeGroups(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, g := range base {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	for _, g := range extra {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func parseBoolAttr(v string) bool {
	return strings.EqualFold(v, "true")
}

// parseBoolAttrDefault treats an absent attribute as def, matching the
// manifest grammar's attribute-omission-means-default convention.
func parseBoolAttrDefault(v string, def bool) bool {
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

func defaultsEqual(a, b DefaultSpec) bool {
	return a == b
}
