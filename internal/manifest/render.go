package manifest

import (
	"encoding/xml"
	"sort"
	"strconv"
	"strings"
)

// Render re-serializes a resolved Manifest back into its XML element
// grammar. It is the saver half of a save→parse→save round trip:
// rendering a manifest that was itself produced by Render and
// re-parsing it yields the same resolved tree.
func Render(m *Manifest) ([]byte, error) {
	raw := &rawManifest{}

	names := make([]string, 0, len(m.Remotes))
	for name := range m.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := m.Remotes[name]
		raw.Remotes = append(raw.Remotes, rawRemote{
			Name: r.Name, Alias: r.Alias, Fetch: r.Fetch, Review: r.Review, Revision: r.Revision,
		})
	}

	if m.Default.RemoteName != "" || m.Default.RevisionExpr != "" {
		d := &rawDefault{
			Remote:     m.Default.RemoteName,
			Revision:   m.Default.RevisionExpr,
			DestBranch: m.Default.DestBranchExpr,
		}
		if m.Default.SyncJ != 0 {
			d.SyncJ = strconv.Itoa(m.Default.SyncJ)
		}
		if m.Default.SyncC {
			d.SyncC = "true"
		}
		if m.Default.SyncS {
			d.SyncS = "true"
		}
		raw.Default = d
	}

	if m.Notice != "" {
		raw.Notice = &rawNotice{Text: m.Notice}
	}
	if m.ManifestServerURL != "" {
		raw.ManifestServer = &rawServer{URL: m.ManifestServerURL}
	}
	if m.RepoHooksProject != "" {
		raw.RepoHooks = &rawRepoHooks{InProject: m.RepoHooksProject, EnabledList: strings.Join(m.EnabledRepoHooks, ",")}
	}

	for _, p := range m.Projects {
		raw.Projects = append(raw.Projects, renderProject(p))
	}

	out, err := xml.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, err
	}
	out = append([]byte(xml.Header), out...)
	return append(out, '\n'), nil
}

func renderProject(p *Project) rawProject {
	rp := rawProject{
		Name:       p.Name,
		Path:       p.Path,
		Remote:     p.RemoteName,
		Revision:   p.RevisionExpr,
		DestBranch: p.DestBranch,
		Upstream:   p.Upstream,
		Groups:     strings.Join(userVisibleGroups(p), ","),
	}
	rp.Rebase = strconv.FormatBool(p.Rebase)
	if p.SyncC {
		rp.SyncC = "true"
	}
	if p.SyncS {
		rp.SyncS = "true"
	}
	if p.CloneDepth != 0 {
		rp.CloneDepth = strconv.Itoa(p.CloneDepth)
	}
	for _, cf := range p.CopyFiles {
		rp.CopyFiles = append(rp.CopyFiles, rawCopyFile{Src: cf.Src, Dest: cf.Dest})
	}
	for _, lf := range p.LinkFiles {
		rp.LinkFiles = append(rp.LinkFiles, rawLinkFile{Src: lf.Src, Dest: lf.Dest})
	}
	for _, a := range p.Annotations {
		ra := rawAnnotation{Name: a.Name, Value: a.Value, Keep: strconv.FormatBool(a.Keep)}
		rp.Annotations = append(rp.Annotations, ra)
	}
	for _, c := range p.Subprojects {
		rp.Projects = append(rp.Projects, renderProject(c))
	}
	return rp
}

// userVisibleGroups strips the implicit all/name:/path: labels that
// finalizeProject adds on load, so a render→parse round trip doesn't
// double them up.
func userVisibleGroups(p *Project) []string {
	implicit := map[string]bool{
		"all":            true,
		"name:" + p.Name: true,
	}
	if p.RelPath != "" {
		implicit["path:"+p.RelPath] = true
	}
	var out []string
	for _, g := range p.Groups {
		if !implicit[g] {
			out = append(out, g)
		}
	}
	return out
}
