package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// ParseError reports a structural or semantic manifest defect. It is
// fatal to whatever command triggered the parse.
type ParseError struct {
	File string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("manifest: %s: %s", e.File, e.Msg)
	}
	return fmt.Sprintf("manifest: %s", e.Msg)
}

func parseErrf(file, format string, args ...any) error {
	return &ParseError{File: file, Msg: fmt.Sprintf(format, args...)}
}

// Load reads and fully resolves the manifest rooted at path, inlining
// <include> fragments resolved relative to each including file's own
// directory, then merging any *.xml fragments found in localManifestsDir
// (sorted by filename) as additional top-level fragments.
func Load(path string, localManifestsDir string) (*Manifest, error) {
	nodeLists, err := loadFragment(path)
	if err != nil {
		return nil, err
	}

	if localManifestsDir != "" {
		entries, err := os.ReadDir(localManifestsDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() || filepath.Ext(entry.Name()) != ".xml" {
					continue
				}
				fragPath := filepath.Join(localManifestsDir, entry.Name())
				frag, err := loadFragment(fragPath)
				if err != nil {
					return nil, err
				}
				nodeLists = append(nodeLists, frag...)
			}
		}
	}

	return resolve(nodeLists, path)
}

// loadFragment parses one manifest XML file and recursively inlines its
// <include> children, returning the flat list of top-level raw elements
// in declaration order (remotes, default, notice, projects, etc. all
// mixed together, so later fragments can extend or remove earlier ones).
func loadFragment(path string) ([]rawNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseErrf(path, "%v", err)
	}
	raw, err := decodeManifest(data)
	if err != nil {
		return nil, parseErrf(path, "%v", err)
	}

	root := filepath.Dir(path)
	var out []rawNode

	for i := range raw.Remotes {
		out = append(out, rawNode{kind: nodeRemote, remote: &raw.Remotes[i]})
	}
	if raw.Default != nil {
		out = append(out, rawNode{kind: nodeDefault, def: raw.Default})
	}
	if raw.Notice != nil {
		out = append(out, rawNode{kind: nodeNotice, notice: raw.Notice})
	}
	if raw.ManifestServer != nil {
		out = append(out, rawNode{kind: nodeServer, server: raw.ManifestServer})
	}
	for i := range raw.Projects {
		out = append(out, rawNode{kind: nodeProject, project: &raw.Projects[i]})
	}
	for i := range raw.ExtendProjects {
		out = append(out, rawNode{kind: nodeExtend, extend: &raw.ExtendProjects[i]})
	}
	for i := range raw.RemoveProjects {
		out = append(out, rawNode{kind: nodeRemove, remove: &raw.RemoveProjects[i]})
	}
	if raw.RepoHooks != nil {
		out = append(out, rawNode{kind: nodeRepoHooks, hooks: raw.RepoHooks})
	}
	for _, inc := range raw.Includes {
		incPath := filepath.Join(root, inc.Name)
		if _, err := os.Stat(incPath); err != nil {
			return nil, parseErrf(path, "include %q doesn't exist or isn't a file", inc.Name)
		}
		nested, err := loadFragment(incPath)
		if err != nil {
			return nil, fmt.Errorf("failed parsing included manifest %s: %w", inc.Name, err)
		}
		out = append(out, nested...)
	}
	return out, nil
}

type nodeKind int

const (
	nodeRemote nodeKind = iota
	nodeDefault
	nodeNotice
	nodeServer
	nodeProject
	nodeExtend
	nodeRemove
	nodeRepoHooks
)

// rawNode tags one parsed top-level manifest element, preserving
// declaration order across inlined includes via a flat node-list merge.
type rawNode struct {
	kind    nodeKind
	remote  *rawRemote
	def     *rawDefault
	notice  *rawNotice
	server  *rawServer
	project *rawProject
	extend  *rawExtend
	remove  *rawRemove
	hooks   *rawRepoHooks
}
