package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/skaphos/reposync/internal/synerr"
)

// StartBranch creates (or reuses) a local branch tracking merge:
// idempotent if the branch already exists and already tracks merge.
func (h *Handle) StartBranch(ctx context.Context, name, merge string) error {
	if _, err := h.Driver.RevParse(ctx, h.Project.GitDir, "--verify", "--quiet", "refs/heads/"+name); err == nil {
		return nil
	}
	if err := h.Driver.Checkout(ctx, h.Project.Worktree, true, "-b", name, merge); err != nil {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("start branch %s: %w", name, err))
	}
	return nil
}

// CheckoutBranch switches the worktree to an existing local branch.
func (h *Handle) CheckoutBranch(ctx context.Context, name string) error {
	if err := h.Driver.Checkout(ctx, h.Project.Worktree, true, name); err != nil {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("checkout branch %s: %w", name, err))
	}
	return nil
}

// AbandonBranch deletes a local branch, refusing if it's the current one.
func (h *Handle) AbandonBranch(ctx context.Context, name string) error {
	cur, err := h.Driver.RevParse(ctx, h.Project.Worktree, "--abbrev-ref", "HEAD")
	if err == nil && strings.TrimSpace(cur) == name {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("cannot abandon the current branch %s", name))
	}
	if _, err := h.Runner.Run(ctx, h.Project.Worktree, "branch", "-D", name); err != nil {
		return synerr.New(synerr.KindGitOperation, h.Project.Name, fmt.Errorf("abandon branch %s: %w", name, err))
	}
	return nil
}

// PruneHeads removes local branches whose upstream is gone, using a
// porcelain scan of branch -vv output.
func (h *Handle) PruneHeads(ctx context.Context) ([]string, error) {
	out, err := h.Runner.Run(ctx, h.Project.Worktree, "branch", "-vv")
	if err != nil {
		return nil, synerr.New(synerr.KindGitOperation, h.Project.Name, err)
	}
	var pruned []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, ": gone]") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "*"))
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if _, err := h.Runner.Run(ctx, h.Project.Worktree, "branch", "-D", name); err == nil {
			pruned = append(pruned, name)
		}
	}
	return pruned, nil
}

// UploadOptions configures UploadForReview.
type UploadOptions struct {
	Draft bool
	Topic string
}

// UploadForReview pushes branch to the project's review remote using the
// conventional refs/for/<dest> magic refspec, cc'ing reviewers via push
// option the way Gerrit-style review endpoints expect. Review-server
// behavior itself is out of scope; this exists so start/abandon's
// round-trip has somewhere real to push.
func (h *Handle) UploadForReview(ctx context.Context, branch string, reviewers []string, opts UploadOptions) error {
	if h.Project.Remote.Review == "" {
		return synerr.New(synerr.KindUpload, h.Project.Name, fmt.Errorf("project has no review remote configured"))
	}
	dest := h.Project.DestBranch
	if dest == "" {
		dest = "main"
	}
	ref := fmt.Sprintf("refs/for/%s", dest)
	if opts.Topic != "" {
		ref += "%topic=" + opts.Topic
	}
	args := []string{"push", h.Project.Remote.Review, fmt.Sprintf("%s:%s", branch, ref)}
	for _, r := range reviewers {
		args = append(args, "--push-option", "r="+r)
	}
	if _, err := h.Runner.Run(ctx, h.Project.Worktree, args...); err != nil {
		return synerr.New(synerr.KindUpload, h.Project.Name, err)
	}
	return nil
}

// Push pushes branch to dest on the project's push remote (or primary
// remote if no push URL is configured).
func (h *Handle) Push(ctx context.Context, branch, dest string, force bool) error {
	remote := h.Project.Remote.PushURL
	if remote == "" {
		remote = h.Project.Remote.Name
	}
	args := []string{"push", remote, fmt.Sprintf("%s:%s", branch, dest)}
	if force {
		args = append(args, "--force")
	}
	if _, err := h.Runner.Run(ctx, h.Project.Worktree, args...); err != nil {
		return synerr.New(synerr.KindUpload, h.Project.Name, err)
	}
	return nil
}

// DownloadPatchset fetches a specific change/patchset ref to FETCH_HEAD.
func (h *Handle) DownloadPatchset(ctx context.Context, change, patchset int) error {
	last2 := change % 100
	ref := fmt.Sprintf("refs/changes/%02d/%d/%d", last2, change, patchset)
	if _, err := h.Runner.Run(ctx, h.Project.Worktree, "fetch", h.Project.Remote.Name, ref); err != nil {
		return synerr.New(synerr.KindDownload, h.Project.Name, err)
	}
	return nil
}

// UncommittedFiles lists human-readable descriptions of pending changes:
// an in-progress rebase, staged diffs, unstaged diffs, untracked files.
func (h *Handle) UncommittedFiles(ctx context.Context) ([]string, error) {
	if h.Project.Worktree == "" {
		return nil, nil
	}
	var out []string

	if h.rebaseInProgress() {
		out = append(out, "rebase in progress")
	}
	if staged, err := h.Driver.DiffIndex(ctx, h.Project.Worktree, "--cached", "--name-only", "HEAD"); err == nil && strings.TrimSpace(staged) != "" {
		for _, f := range strings.Split(strings.TrimSpace(staged), "\n") {
			out = append(out, "staged: "+f)
		}
	}
	if unstaged, err := h.Driver.DiffFiles(ctx, h.Project.Worktree, "--name-only"); err == nil && strings.TrimSpace(unstaged) != "" {
		for _, f := range strings.Split(strings.TrimSpace(unstaged), "\n") {
			out = append(out, "modified: "+f)
		}
	}
	if untracked, err := h.Driver.LsFiles(ctx, h.Project.Worktree, "--others", "--exclude-standard"); err == nil && strings.TrimSpace(untracked) != "" {
		for _, f := range strings.Split(strings.TrimSpace(untracked), "\n") {
			out = append(out, "untracked: "+f)
		}
	}
	return out, nil
}

func (h *Handle) rebaseInProgress() bool {
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		if isDir(h.Project.GitDir + "/" + name) {
			return true
		}
	}
	return false
}
