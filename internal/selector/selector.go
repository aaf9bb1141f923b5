// Package selector implements the group/path selector: it resolves a
// user argument list of names, paths, regexes, and comma/whitespace
// delimited group tokens into a concrete, relpath-sorted project set.
// Grounded on cmd/repokeeper/label_selector.go's left-to-right requirement
// fold, extended with add/remove token semantics, default/notdefault
// handling, and name/path ancestor-walk resolution (the latter grounded
// on cmd/repokeeper/move.go's path-resolution helpers).
package selector

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skaphos/reposync/internal/model"
)

// notDefaultLabel marks a project as excluded from the implicit "default"
// group.
const notDefaultLabel = "notdefault"

// MatchGroups evaluates a comma/whitespace-delimited group expression
// left-to-right against one project's label set. Each token either adds
// (bare "X") or removes ("-X") a label from the currently-matched set; the
// special token "default" matches unless the project carries notdefault.
func MatchGroups(expr string, groups []string) bool {
	tokens := splitGroupExpr(expr)
	if len(tokens) == 0 {
		return true
	}

	labelSet := make(map[string]bool, len(groups))
	for _, g := range groups {
		labelSet[g] = true
	}

	matched := false
	for _, tok := range tokens {
		remove := strings.HasPrefix(tok, "-")
		label := strings.TrimPrefix(tok, "-")
		if label == "" {
			continue
		}

		var has bool
		switch label {
		case "default":
			has = !labelSet[notDefaultLabel]
		default:
			has = labelSet[label]
		}

		if remove {
			if has {
				matched = false
			}
		} else if has {
			matched = true
		}
	}
	return matched
}

func splitGroupExpr(expr string) []string {
	fields := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FilterByGroups returns the subset of projects whose implicit + explicit
// groups satisfy expr.
func FilterByGroups(projects []*model.Project, expr string) []*model.Project {
	var out []*model.Project
	for _, p := range projects {
		if MatchGroups(expr, implicitGroups(p)) {
			out = append(out, p)
		}
	}
	return out
}

// implicitGroups returns p's declared groups plus the three always-present
// implicit labels ("all", "name:<name>", "path:<relpath>").
func implicitGroups(p *model.Project) []string {
	out := make([]string, 0, len(p.Groups)+3)
	out = append(out, p.Groups...)
	out = append(out, "all", "name:"+p.Name, "path:"+p.RelPath)
	return out
}

// Resolve implements argument-list resolution: empty means
// every project (post group-filter); each non-empty arg is tried as a
// name, then an absolute path with ancestor walk to workspaceRoot. If some
// args remain unmatched and expandDerived is non-nil (submodule
// discovery), it is called once to obtain an expanded project list
// (derived children registered) and unmatched args are retried against it.
// Unmatched args are then reported as errors; the result is sorted by
// relpath ascending.
func Resolve(all []*model.Project, args []string, workspaceRoot string, expandDerived func() []*model.Project) ([]*model.Project, error) {
	if len(args) == 0 {
		return sortedByRelPath(all), nil
	}

	out, missing := resolvePass(all, args, workspaceRoot)
	if len(missing) > 0 && expandDerived != nil {
		expanded := expandDerived()
		retried, stillMissing := resolvePass(expanded, missing, workspaceRoot)
		out = append(out, retried...)
		missing = stillMissing
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("no such project: %s", strings.Join(missing, ", "))
	}
	return sortedByRelPath(dedupe(out)), nil
}

func resolvePass(all []*model.Project, args []string, workspaceRoot string) (matched []*model.Project, missing []string) {
	for _, arg := range args {
		if isGlobPattern(arg) {
			if hits := resolveGlob(all, arg); len(hits) > 0 {
				matched = append(matched, hits...)
				continue
			}
			missing = append(missing, arg)
			continue
		}
		if p := resolveOne(all, arg, workspaceRoot); p != nil {
			matched = append(matched, p)
		} else {
			missing = append(missing, arg)
		}
	}
	return matched, missing
}

// isGlobPattern reports whether arg looks like a doublestar glob rather
// than a literal name, path, or regex.
func isGlobPattern(arg string) bool {
	return strings.ContainsAny(arg, "*?[")
}

// resolveGlob matches arg (a doublestar pattern, "**" included) against
// every project's relpath and name, returning every hit. A path-style
// argument such as "vendor/**" matches nested project relpaths the same
// way the manifest's own path="" attributes nest; a bare "foo-*" matches
// on name.
func resolveGlob(all []*model.Project, arg string) []*model.Project {
	var out []*model.Project
	for _, p := range all {
		if ok, err := doublestar.Match(arg, p.RelPath); err == nil && ok {
			out = append(out, p)
			continue
		}
		if ok, err := doublestar.Match(arg, p.Name); err == nil && ok {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(projects []*model.Project) []*model.Project {
	seen := map[string]bool{}
	out := make([]*model.Project, 0, len(projects))
	for _, p := range projects {
		if !seen[p.RelPath] {
			seen[p.RelPath] = true
			out = append(out, p)
		}
	}
	return out
}

// resolveOne tries arg as a project name, then as a path (relative or
// absolute) resolved against every ancestor directory up to
// workspaceRoot, then as a regular expression anchored against names.
func resolveOne(all []*model.Project, arg, workspaceRoot string) *model.Project {
	for _, p := range all {
		if p.Name == arg {
			return p
		}
	}

	if p := resolveByPath(all, arg, workspaceRoot); p != nil {
		return p
	}

	if re, err := regexp.Compile("^" + arg + "$"); err == nil {
		for _, p := range all {
			if re.MatchString(p.Name) {
				return p
			}
		}
	}
	return nil
}

func resolveByPath(all []*model.Project, arg, workspaceRoot string) *model.Project {
	abs := arg
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workspaceRoot, arg)
	}
	abs = filepath.Clean(abs)

	for dir := abs; ; {
		if rel, err := filepath.Rel(workspaceRoot, dir); err == nil {
			rel = filepath.ToSlash(rel)
			for _, p := range all {
				if p.RelPath == rel {
					return p
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir || len(dir) <= len(workspaceRoot) {
			break
		}
		dir = parent
	}
	return nil
}

func sortedByRelPath(projects []*model.Project) []*model.Project {
	out := append([]*model.Project(nil), projects...)
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}
