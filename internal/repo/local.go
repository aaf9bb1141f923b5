package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skaphos/reposync/internal/gitx"
	"github.com/skaphos/reposync/internal/reconcile"
	"github.com/skaphos/reposync/internal/refindex"
	"github.com/skaphos/reposync/internal/synerr"
)

// LocalHalfInput carries the state gathered from the ref index, branch
// bookkeeping, and worktree status that SyncLocalHalf needs to build a
// reconcile.State without re-deriving it from raw git output itself —
// kept separate from reconcile.State because repo also needs the branch
// name/upstream ref strings to apply the chosen action.
type LocalHalfInput struct {
	reconcile.State
	UpstreamRef string // refs/remotes/<remote>/<branch>, empty if HasUpstream is false
}

// SyncLocalHalf decides what to do with the worktree given in, then
// applies the decision, queuing fast-forwards as
// phase-1 and rebases as phase-2 actions on buffer so that, across many
// projects, every fast-forward lands before any rebase observes the refs
// they produced.
func (h *Handle) SyncLocalHalf(ctx context.Context, buf buffer, in LocalHalfInput, force bool) error {
	decision := reconcile.Decide(in.State)

	if decision.Info != "" {
		buf.Info(h.Project.Name, "%s", decision.Info)
	}

	switch decision.Kind {
	case reconcile.ActionFail:
		if force {
			buf.Info(h.Project.Name, "continuing past error (force): %v", decision.Err)
		} else {
			buf.Fail(h.Project.Name, decision.Err)
			return synerr.New(synerr.KindGitOperation, h.Project.Name, decision.Err)
		}

	case reconcile.ActionNoOp:
		if decision.Rematerialize {
			if err := h.materializeFiles(); err != nil {
				buf.Fail(h.Project.Name, err)
			}
		}

	case reconcile.ActionCheckout:
		if err := h.Driver.Checkout(ctx, h.Project.Worktree, true, in.TargetID); err != nil {
			return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("checkout: %w", err))
		}
		if decision.Rematerialize {
			if err := h.materializeFiles(); err != nil {
				buf.Fail(h.Project.Name, err)
			}
		}

	case reconcile.ActionFastForward:
		buf.Later1(h.Project.Name, func() error {
			if err := h.Driver.Checkout(ctx, h.Project.Worktree, true, in.TargetID); err != nil {
				return fmt.Errorf("fast-forward: %w", err)
			}
			return h.materializeFiles()
		})

	case reconcile.ActionReset:
		buf.Later1(h.Project.Name, func() error {
			if err := h.Driver.Reset(ctx, h.Project.Worktree, "hard", in.TargetID); err != nil {
				return fmt.Errorf("reset --hard: %w", err)
			}
			return h.materializeFiles()
		})

	case reconcile.ActionRebase:
		buf.Later2(h.Project.Name, func() error {
			args := []string{"--onto", in.TargetID, decision.RebaseFromExclusive}
			if err := h.Driver.Rebase(ctx, h.Project.Worktree, args...); err != nil {
				return fmt.Errorf("rebase --onto: %w", err)
			}
			return h.materializeFiles()
		})
	}

	if decision.UpdateMerge && in.BranchName != "" {
		if err := h.updateBranchMerge(ctx, in.BranchName); err != nil {
			buf.Info(h.Project.Name, "warning: failed to update branch merge config: %v", err)
		}
	}

	return nil
}

// buffer is the subset of *syncbuf.Buffer's contract SyncLocalHalf
// depends on, kept as an interface so repo doesn't import syncbuf
// directly (syncbuf sits above repo in the dependency graph).
type buffer interface {
	Info(project, format string, args ...any)
	Fail(project string, err error)
	Later1(project string, fn func() error)
	Later2(project string, fn func() error)
}

func (h *Handle) updateBranchMerge(ctx context.Context, branch string) error {
	merge := h.Project.RevisionExpr
	if !strings.HasPrefix(merge, "refs/") {
		merge = "refs/heads/" + merge
	}
	_, err := h.Runner.Run(ctx, h.Project.Worktree, "config", fmt.Sprintf("branch.%s.merge", branch), merge)
	return err
}

// materializeFiles re-applies every copyfile/linkfile entry declared for
// the project. Materializations only ever run after a successful
// local-half action.
func (h *Handle) materializeFiles() error {
	if h.Project.Worktree == "" {
		return nil
	}
	for _, cf := range h.Project.CopyFiles {
		if err := copyFile(filepath.Join(h.Project.Worktree, cf.Src), filepath.Join(h.Project.Worktree, cf.Dest)); err != nil {
			return fmt.Errorf("copyfile %s -> %s: %w", cf.Src, cf.Dest, err)
		}
	}
	for _, lf := range h.Project.LinkFiles {
		if err := linkFile(filepath.Join(h.Project.Worktree, lf.Src), filepath.Join(h.Project.Worktree, lf.Dest)); err != nil {
			return fmt.Errorf("linkfile %s -> %s: %w", lf.Src, lf.Dest, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func linkFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	_ = os.Remove(dst)
	rel, err := filepath.Rel(filepath.Dir(dst), src)
	if err != nil {
		rel = src
	}
	return os.Symlink(rel, dst)
}

// LoadRefIndex loads a ref-index snapshot for this project's git-dir, used
// by the caller to populate reconcile.State before calling SyncLocalHalf.
func (h *Handle) LoadRefIndex() (*refindex.Index, error) {
	return refindex.Load(h.Project.GitDir)
}

// EnsureWorktree materializes the on-disk worktree directory for a
// checkout project whose git-dir already exists: the directory is created
// with a .git link file pointing at the project's git-dir, and the
// repository is marked non-bare so checkouts work. Idempotent; a no-op
// for mirror projects and for worktrees already linked.
func (h *Handle) EnsureWorktree(ctx context.Context) error {
	if h.Project.Worktree == "" {
		return nil
	}
	dotGit := filepath.Join(h.Project.Worktree, ".git")
	if _, err := os.Lstat(dotGit); err == nil {
		return nil
	}
	if err := os.MkdirAll(h.Project.Worktree, 0o755); err != nil {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("create worktree: %w", err))
	}
	if err := os.WriteFile(dotGit, []byte("gitdir: "+h.Project.GitDir+"\n"), 0o644); err != nil {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("link worktree: %w", err))
	}
	if _, err := h.Runner.Run(ctx, h.Project.Worktree, "config", "core.bare", "false"); err != nil {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("mark non-bare: %w", err))
	}
	return nil
}

// ResolveRevisionID resolves the project's declared revision to a concrete
// object id against the local git-dir, after a successful network half. A
// pin is its own id; a branch resolves under the remote tracking
// namespace; a tag under refs/tags.
func (h *Handle) ResolveRevisionID(ctx context.Context) (string, error) {
	if IsObjectID(h.Project.RevisionExpr) {
		return h.Project.RevisionExpr, nil
	}
	var candidates []string
	if strings.HasPrefix(h.Project.RevisionExpr, "refs/tags/") {
		candidates = []string{h.Project.RevisionExpr}
	} else {
		branch := strings.TrimPrefix(h.Project.RevisionExpr, "refs/heads/")
		candidates = []string{
			"refs/remotes/" + h.Project.Remote.Name + "/" + branch,
			"refs/tags/" + branch,
		}
	}
	for _, ref := range candidates {
		if id, err := h.Driver.RevParse(ctx, h.Project.GitDir, "--verify", "--quiet", ref+"^{commit}"); err == nil && id != "" {
			return id, nil
		}
	}
	return "", synerr.Newf(synerr.KindManifestInvalidRevision, h.Project.Name,
		"revision %q did not resolve after fetch", h.Project.RevisionExpr)
}

// publishedRefPrefix is the well-known ref namespace reserved for the
// commit id last pushed for review on a branch.
const publishedRefPrefix = "refs/published/"

// GatherState reads the worktree/ref-index/config state SyncLocalHalf's
// reconcile.Decide needs for this project: HEAD attachment, the target
// commit the manifest revision resolves to in idx, local-only commits
// partitioned by committer email, and the project's prior published id.
// A mirror project (no worktree) is reported detached with the manifest
// target, the only decision that ever applies to it. force does not
// suppress the dirty-worktree check here: SyncLocalHalf's force flag only
// controls whether an ActionFail decision aborts the whole sync, not
// whether the decision itself is computed truthfully.
func (h *Handle) GatherState(ctx context.Context, idx *refindex.Index, mineEmail string) (LocalHalfInput, error) {
	target := h.resolveTargetID(idx)
	if h.Project.Worktree == "" {
		return LocalHalfInput{State: reconcile.State{
			Detached: true,
			HeadID:   idx.Get("HEAD"),
			TargetID: target,
		}}, nil
	}

	head, err := gitx.Head(ctx, h.Runner, h.Project.Worktree)
	if err != nil {
		return LocalHalfInput{}, synerr.New(synerr.KindGitOperation, h.Project.Name, err)
	}

	in := LocalHalfInput{State: reconcile.State{
		Detached:     head.Detached,
		OnBranch:     !head.Detached,
		BranchName:   head.Branch,
		HeadID:       idx.Get("HEAD"),
		TargetID:     target,
		RebasePolicy: h.Project.Rebase,
	}}

	if head.Detached {
		return in, nil
	}
	in.UpstreamRef = h.branchMergeRef(ctx, head.Branch)
	in.HasUpstream = in.UpstreamRef != ""

	if wt, err := gitx.WorktreeStatus(ctx, h.Runner, h.Project.Worktree); err == nil {
		// Untracked files don't block reconciliation, only staged/unstaged
		// modifications do.
		in.WorkingTreeDirty = wt.Staged > 0 || wt.Unstaged > 0
	}
	in.RebaseInProgress = h.rebaseInProgress()

	if in.HeadID != target && target != "" && in.HeadID != "" {
		in.LocalOnly = h.commitsBetween(ctx, target, in.HeadID)
		in.UpstreamGainCount = h.countBetween(ctx, in.HeadID, target)
	}

	in.PublishedID = idx.Get(publishedRefPrefix + head.Branch)
	if in.PublishedID != "" && target != "" {
		in.PublishedMerged = h.isAncestor(ctx, in.PublishedID, target)
	}
	in.MineEmail = mineEmail

	return in, nil
}

// resolveTargetID resolves the project's declared revision against idx: a
// pinned object id is already resolved; a branch/tag expr is looked up
// under the remote tracking namespace.
func (h *Handle) resolveTargetID(idx *refindex.Index) string {
	if IsObjectID(h.Project.RevisionExpr) {
		return h.Project.RevisionExpr
	}
	if h.Project.RevisionID != "" {
		return h.Project.RevisionID
	}
	branch := strings.TrimPrefix(strings.TrimPrefix(h.Project.RevisionExpr, "refs/heads/"), "refs/tags/")
	if id := idx.Get("refs/remotes/" + h.Project.Remote.Name + "/" + branch); id != "" {
		return id
	}
	return idx.Get("refs/tags/" + branch)
}

func (h *Handle) branchMergeRef(ctx context.Context, branch string) string {
	out, err := h.Runner.Run(ctx, h.Project.Worktree, "config", "--get", "branch."+branch+".merge")
	if err != nil {
		return ""
	}
	merge := strings.TrimSpace(out)
	if merge == "" {
		return ""
	}
	remote, rerr := h.Runner.Run(ctx, h.Project.Worktree, "config", "--get", "branch."+branch+".remote")
	if rerr != nil || strings.TrimSpace(remote) == "" {
		return ""
	}
	return fmt.Sprintf("refs/remotes/%s/%s", strings.TrimSpace(remote), strings.TrimPrefix(merge, "refs/heads/"))
}

func (h *Handle) commitsBetween(ctx context.Context, fromExclusive, toInclusive string) []reconcile.Commit {
	out, err := h.Driver.Log(ctx, h.Project.Worktree, "--format=%H%x09%ce", "--reverse", fromExclusive+".."+toInclusive)
	if err != nil {
		return nil
	}
	var commits []reconcile.Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		c := reconcile.Commit{ID: parts[0]}
		if len(parts) == 2 {
			c.CommitterMail = parts[1]
		}
		commits = append(commits, c)
	}
	return commits
}

func (h *Handle) countBetween(ctx context.Context, fromExclusive, toInclusive string) int {
	out, err := h.Driver.RevList(ctx, h.Project.Worktree, "--count", fromExclusive+".."+toInclusive)
	if err != nil {
		return 0
	}
	n := 0
	fmt.Sscanf(strings.TrimSpace(out), "%d", &n)
	return n
}

func (h *Handle) isAncestor(ctx context.Context, ancestor, descendant string) bool {
	_, err := h.Runner.Run(ctx, h.Project.Worktree, "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil
}
