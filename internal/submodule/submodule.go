// Package submodule implements submodule discovery: it reads a parent
// project's .gitmodules blob and ls-tree output at its resolved revision
// to register derived child projects, and drives a fixed-point "discover
// missing, fetch, repeat" loop. Grounded on internal/engine.go's
// discovery-loop shape, using Runner
// directly for the ls-tree/show plumbing internal/gitx.Driver doesn't
// name, the same pattern internal/repo follows for raw commands.
package submodule

import (
	"context"
	"fmt"
	"strings"

	"github.com/skaphos/reposync/internal/gitx"
	"github.com/skaphos/reposync/internal/model"
)

// maxIterations bounds the fixed-point loop so a manifest with a cyclic
// or pathological submodule graph cannot hang discovery forever.
const maxIterations = 20

// Entry describes one submodule declared in a .gitmodules blob.
type Entry struct {
	Path string
	URL  string
}

// ParseGitmodules parses the textual content of a .gitmodules blob (a
// git-config-style INI document keyed by `submodule "<name>"` sections).
func ParseGitmodules(content string) []Entry {
	var entries []Entry
	var cur *Entry
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[submodule ") {
			entries = append(entries, Entry{})
			cur = &entries[len(entries)-1]
			continue
		}
		if cur == nil || !strings.Contains(trimmed, "=") {
			continue
		}
		kv := strings.SplitN(trimmed, "=", 2)
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		switch key {
		case "path":
			cur.Path = val
		case "url":
			cur.URL = val
		}
	}
	var out []Entry
	for _, e := range entries {
		if e.Path != "" && e.URL != "" {
			out = append(out, e)
		}
	}
	return out
}

// lsTreeShaForPath parses `git ls-tree <rev>` output (mode type sha\tpath
// per line) and returns the sha recorded for path, or "" if absent.
func lsTreeShaForPath(lsTreeOutput, path string) string {
	for _, line := range strings.Split(lsTreeOutput, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		tabIdx := strings.IndexByte(line, '\t')
		if tabIdx < 0 || line[tabIdx+1:] != path {
			continue
		}
		fields := strings.Fields(line[:tabIdx])
		if len(fields) == 3 {
			return fields[2]
		}
	}
	return ""
}

// DiscoverChildren reads parent's .gitmodules blob and ls-tree output at
// its resolved revision and registers one derived child Project per
// submodule entry that both files agree on. Children inherit the
// parent's remote name and review URL;
// their RevisionID is the submodule gitlink sha from ls-tree and their
// Remote.URL comes from the gitmodules entry (resolved against the
// parent's remote when relative).
func DiscoverChildren(ctx context.Context, runner gitx.Runner, arena *model.ProjectArena, parent *model.Project) ([]*model.Project, error) {
	if parent.RevisionID == "" {
		return nil, fmt.Errorf("submodule discovery for %s: revision_id not resolved", parent.Name)
	}

	blob, err := runner.Run(ctx, parent.GitDir, "show", parent.RevisionID+":.gitmodules")
	if err != nil {
		return nil, nil // no .gitmodules at this revision: not an error, just nothing to discover
	}
	entries := ParseGitmodules(blob)
	if len(entries) == 0 {
		return nil, nil
	}

	lsTree, err := runner.Run(ctx, parent.GitDir, "ls-tree", "-r", parent.RevisionID)
	if err != nil {
		return nil, fmt.Errorf("submodule discovery for %s: ls-tree: %w", parent.Name, err)
	}

	var children []*model.Project
	for _, e := range entries {
		sha := lsTreeShaForPath(lsTree, e.Path)
		if sha == "" {
			continue
		}
		childRelPath := parent.RelPath + "/" + e.Path
		if existing := arena.ByRelPath(childRelPath); existing != nil {
			existing.RevisionID = sha
			continue
		}
		child := &model.Project{
			Name:         parent.Name + "/" + e.Path,
			RelPath:      childRelPath,
			Remote:       resolveSubmoduleRemote(parent.Remote, e.URL),
			RevisionExpr: sha,
			RevisionID:   sha,
			ParentIndex:  -1, // set by caller after Add, once the parent's own index is known
			Derived:      true,
			Groups:       []string{"submodule"},
		}
		children = append(children, child)
	}
	return children, nil
}

// resolveSubmoduleRemote builds the child's remote: the gitmodules URL
// verbatim if absolute, else resolved relative to the parent's remote URL.
func resolveSubmoduleRemote(parentRemote model.Remote, rawURL string) model.Remote {
	r := parentRemote
	if strings.Contains(rawURL, "://") || strings.HasPrefix(rawURL, "git@") {
		r.URL = rawURL
		return r
	}
	base := strings.TrimSuffix(parentRemote.URL, "/")
	rel := strings.TrimPrefix(rawURL, "./")
	r.URL = base + "/" + rel
	return r
}

// FetchFunc fetches the missing set's network half and returns the set of
// git-dirs it successfully fetched, mirroring the scheduler's RunResult.
type FetchFunc func(ctx context.Context, missing []*model.Project) (fetchedGitDirs map[string]bool, err error)

// PlaceFunc assigns workspace paths (git-dir, object-dir, worktree) to a
// newly discovered child project before it is registered. DiscoverChildren
// knows only names and relpaths; the caller owns the on-disk layout.
type PlaceFunc func(p *model.Project)

// Round is one fixed-point discovery pass's outcome, returned per
// iteration for logging/testing visibility.
type Round struct {
	Missing     []string // project names considered missing this round
	NewChildren []string // derived project names registered this round
}

// Discover drives the fixed-point discovery loop over arena: fetched
// reports which git-dirs the prior network pass actually fetched, and
// fetchMissing is invoked to fetch any projects found missing. Each pass
// re-scans every fetched project for submodule children and registers
// newly discovered ones in the arena, which feeds the next pass. The loop
// stops at a fixed point (the missing set stops changing) or after
// maxIterations passes.
func Discover(ctx context.Context, runner gitx.Runner, arena *model.ProjectArena, fetched map[string]bool, fetchMissing FetchFunc, place PlaceFunc) ([]Round, error) {
	var rounds []Round
	var prevMissing map[string]bool

	for iter := 0; iter < maxIterations; iter++ {
		missing := map[string]bool{}
		for _, p := range arena.Projects {
			if !fetched[p.GitDir] {
				missing[p.Name] = true
			}
		}

		if sameSet(missing, prevMissing) {
			break
		}
		prevMissing = missing

		var missingProjects []*model.Project
		var missingNames []string
		for _, p := range arena.Projects {
			if missing[p.Name] {
				missingProjects = append(missingProjects, p)
				missingNames = append(missingNames, p.Name)
			}
		}

		round := Round{Missing: missingNames}
		if len(missingProjects) > 0 {
			gotFetched, err := fetchMissing(ctx, missingProjects)
			if err != nil {
				return rounds, err
			}
			for dir, ok := range gotFetched {
				if ok {
					fetched[dir] = true
				}
			}
		}

		for _, p := range arena.Projects {
			if !fetched[p.GitDir] || p.RevisionID == "" {
				continue
			}
			children, err := DiscoverChildren(ctx, runner, arena, p)
			if err != nil {
				return rounds, err
			}
			parentIdx := indexOf(arena, p)
			for _, c := range children {
				c.ParentIndex = parentIdx
				if place != nil {
					place(c)
				}
				idx := arena.Add(c)
				if parentIdx >= 0 {
					arena.Projects[parentIdx].SubprojectIndices = append(arena.Projects[parentIdx].SubprojectIndices, idx)
				}
				round.NewChildren = append(round.NewChildren, c.Name)
			}
		}

		rounds = append(rounds, round)
	}

	return rounds, nil
}

func indexOf(arena *model.ProjectArena, target *model.Project) int {
	for i, p := range arena.Projects {
		if p == target {
			return i
		}
	}
	return -1
}

func sameSet(a, b map[string]bool) bool {
	if b == nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
