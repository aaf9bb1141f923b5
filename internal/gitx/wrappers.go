package gitx

import (
	"context"
	"strings"
)

// Push runs a plain git push in dir.
func Push(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "push")
	return err
}

// StashPush stashes uncommitted changes, including untracked files. It
// reports whether a stash entry was actually created: git prints "No local
// changes to save" and exits 0 when the worktree was already clean.
func StashPush(ctx context.Context, r Runner, dir, message string) (bool, error) {
	args := []string{"stash", "push", "-u"}
	if message != "" {
		args = append(args, "-m", message)
	}
	out, err := r.Run(ctx, dir, args...)
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, "No local changes to save"), nil
}

// StashPop restores the most recently pushed stash entry.
func StashPop(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "stash", "pop")
	return err
}

// SetUpstream points branch at upstream for future push/pull tracking.
func SetUpstream(ctx context.Context, r Runner, dir, upstream, branch string) error {
	_, err := r.Run(ctx, dir, "branch", "--set-upstream-to", upstream, branch)
	return err
}

// Clone clones url into target. When mirror is true the branch argument is
// ignored and a bare mirror clone is created; otherwise a single-branch
// clone of branch is created, or the remote's default branch when branch
// is empty.
func Clone(ctx context.Context, r Runner, url, target, branch string, mirror bool) error {
	args := []string{"clone"}
	switch {
	case mirror:
		args = append(args, "--mirror")
	case branch != "":
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, url, target)
	_, err := r.Run(ctx, "", args...)
	return err
}
