// Package repo implements the repository handle: the operations one
// logical project exposes to the scheduler and local reconciler.
// Every operation is an explicit named method layered over
// internal/gitx's Runner/Driver.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skaphos/reposync/internal/gitx"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/synerr"
)

var shaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsObjectID reports whether expr is a 40-lowercase-hex object id, the
// "pin" revision form that is distinguished from a branch or tag name.
func IsObjectID(expr string) bool {
	return shaPattern.MatchString(expr)
}

// Handle encapsulates every operation the scheduler and reconciler perform
// on one project's git-dir/object-dir/worktree.
type Handle struct {
	Project *model.Project
	Driver  gitx.Driver
	Runner  gitx.Runner
}

// New returns a Handle for project backed by driver (and the Runner it
// wraps, used directly for the handful of plumbing commands Driver
// doesn't name, e.g. raw fetch invocations).
func New(project *model.Project, driver gitx.Driver, runner gitx.Runner) *Handle {
	return &Handle{Project: project, Driver: driver, Runner: runner}
}

// Exists reports whether both the git-dir and object-dir are directories.
func (h *Handle) Exists() bool {
	return isDir(h.Project.GitDir) && isDir(h.Project.ObjDir)
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// FetchOptions carries the per-project fetch contract flags the
// scheduler passes into the network half of a sync.
type FetchOptions struct {
	Quiet               bool
	CurrentBranchOnly   bool
	NoTags              bool
	CloneBundleAllowed  bool
	OptimizedFetch      bool
	ForceSync           bool
	IsBootstrapProject  bool
	GlobalDefaultDepth  int
}

// shareableGitFiles/dirs are materialized as reference links between a
// shared object-dir and each project's own git-dir.
var shareableGitFiles = []string{"description", "info"}
var shareableGitDirs = []string{"hooks", "objects", "rr-cache"}

// initOrUpdateGitDir creates the bare repo (and
// object-dir alternates links) if the git-dir doesn't exist yet, else just
// refresh hooks.
func (h *Handle) initOrUpdateGitDir(ctx context.Context) error {
	if !isDir(h.Project.GitDir) {
		if err := h.Driver.Init(ctx, h.Project.GitDir, true); err != nil {
			return synerr.New(synerr.KindFetch, h.Project.Name, fmt.Errorf("init git-dir: %w", err))
		}
	}
	if h.Project.ObjDir != "" && h.Project.ObjDir != h.Project.GitDir {
		if !isDir(h.Project.ObjDir) {
			if err := h.Driver.Init(ctx, h.Project.ObjDir, true); err != nil {
				return synerr.New(synerr.KindFetch, h.Project.Name, fmt.Errorf("init object-dir: %w", err))
			}
		}
		if err := h.linkSharedFiles(); err != nil {
			return synerr.New(synerr.KindFetch, h.Project.Name, err)
		}
	}
	return nil
}

// linkSharedFiles materializes the canonical shareable files/dirs between
// the object-dir and this project's git-dir via symlinks, falling back to
// a copy when symlinking isn't available.
func (h *Handle) linkSharedFiles() error {
	for _, f := range shareableGitFiles {
		if err := linkOrCopy(filepath.Join(h.Project.ObjDir, f), filepath.Join(h.Project.GitDir, f)); err != nil {
			return err
		}
	}
	for _, d := range shareableGitDirs {
		if err := linkOrCopy(filepath.Join(h.Project.ObjDir, d), filepath.Join(h.Project.GitDir, d)); err != nil {
			return err
		}
	}
	return nil
}

func linkOrCopy(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		return nil
	}
	if err := os.Symlink(src, dst); err != nil {
		data, rerr := os.ReadFile(src)
		if rerr != nil {
			return nil
		}
		return os.WriteFile(dst, data, 0o644)
	}
	return nil
}

// effectiveDepth picks the fetch depth: the project's
// own clone-depth, else the global default, but never shallow for the
// bootstrap project.
func (h *Handle) effectiveDepth(opts FetchOptions) int {
	if opts.IsBootstrapProject {
		return 0
	}
	if h.Project.CloneDepth > 0 {
		return h.Project.CloneDepth
	}
	return opts.GlobalDefaultDepth
}

// refSpecs builds the refspec list for one fetch invocation.
func (h *Handle) refSpecs(opts FetchOptions) []string {
	switch {
	case IsObjectID(h.Project.RevisionExpr):
		return []string{h.Project.RevisionExpr}
	case strings.HasPrefix(h.Project.RevisionExpr, "refs/tags/"):
		return []string{"tag", strings.TrimPrefix(h.Project.RevisionExpr, "refs/tags/")}
	case opts.CurrentBranchOnly:
		branch := strings.TrimPrefix(h.Project.RevisionExpr, "refs/heads/")
		return []string{fmt.Sprintf("+%s:refs/remotes/%s/%s", "refs/heads/"+branch, h.Project.Remote.Name, branch)}
	default:
		return []string{fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", h.Project.Remote.Name)}
	}
}

// fetchArgs builds the flag list for one fetch invocation.
func (h *Handle) fetchArgs(ctx context.Context, opts FetchOptions, isTTY bool) []string {
	args := []string{"fetch"}
	if isTTY && !opts.Quiet {
		args = append(args, "--progress")
	}
	depth := h.effectiveDepth(opts)
	shallow := depth > 0
	if shallow {
		args = append(args, fmt.Sprintf("--depth=%d", depth))
	}
	if h.Project.Worktree == "" {
		args = append(args, "--update-head-ok")
	}
	if shallow || opts.NoTags {
		args = append(args, "--no-tags")
	} else {
		args = append(args, "--tags")
	}
	args = append(args, h.Project.Remote.URL)
	args = append(args, h.refSpecs(opts)...)
	return args
}
