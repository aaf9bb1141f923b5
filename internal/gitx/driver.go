package gitx

import (
	"context"
	"fmt"
	"strings"
)

// Driver names every low-level git operation the sync engine's repository
// handle (internal/repo) needs. An operation missing here is a compile
// error at the call site, never a runtime dispatch failure.
type Driver interface {
	RevParse(ctx context.Context, dir string, args ...string) (string, error)
	LsRemote(ctx context.Context, dir, url string, args ...string) (string, error)
	UpdateRef(ctx context.Context, dir, ref, newID string) error
	SymbolicRef(ctx context.Context, dir, name, target string) error
	UpdateIndex(ctx context.Context, dir string, args ...string) error
	DiffIndex(ctx context.Context, dir string, args ...string) (string, error)
	DiffFiles(ctx context.Context, dir string, args ...string) (string, error)
	LsFiles(ctx context.Context, dir string, args ...string) (string, error)
	PackRefs(ctx context.Context, dir string, all, prune bool) error
	RevList(ctx context.Context, dir string, args ...string) (string, error)
	Log(ctx context.Context, dir string, args ...string) (string, error)
	Describe(ctx context.Context, dir string, args ...string) (string, error)
	Gc(ctx context.Context, dir string, packThreads int) error
	Tag(ctx context.Context, dir string, args ...string) error
	Var(ctx context.Context, dir, name string) (string, error)
	Checkout(ctx context.Context, dir string, quiet bool, target string, args ...string) error
	CherryPick(ctx context.Context, dir string, commit string) error
	Revert(ctx context.Context, dir string, commit string) error
	Reset(ctx context.Context, dir, mode, target string) error
	Rebase(ctx context.Context, dir string, args ...string) error
	Merge(ctx context.Context, dir string, args ...string) error
	Init(ctx context.Context, dir string, bare bool) error
}

// GitDriver implements Driver by shelling out through a Runner.
type GitDriver struct {
	Runner Runner
}

func NewGitDriver(r Runner) *GitDriver {
	if r == nil {
		r = &GitRunner{}
	}
	return &GitDriver{Runner: r}
}

func (d *GitDriver) run(ctx context.Context, dir string, args ...string) (string, error) {
	return d.Runner.Run(ctx, dir, args...)
}

func (d *GitDriver) RevParse(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := d.run(ctx, dir, append([]string{"rev-parse"}, args...)...)
	return strings.TrimSpace(out), err
}

func (d *GitDriver) LsRemote(ctx context.Context, dir, url string, args ...string) (string, error) {
	full := append([]string{"ls-remote", url}, args...)
	return d.run(ctx, dir, full...)
}

func (d *GitDriver) UpdateRef(ctx context.Context, dir, ref, newID string) error {
	_, err := d.run(ctx, dir, "update-ref", ref, newID)
	return err
}

func (d *GitDriver) SymbolicRef(ctx context.Context, dir, name, target string) error {
	_, err := d.run(ctx, dir, "symbolic-ref", name, target)
	return err
}

func (d *GitDriver) UpdateIndex(ctx context.Context, dir string, args ...string) error {
	_, err := d.run(ctx, dir, append([]string{"update-index"}, args...)...)
	return err
}

func (d *GitDriver) DiffIndex(ctx context.Context, dir string, args ...string) (string, error) {
	return d.run(ctx, dir, append([]string{"diff-index"}, args...)...)
}

func (d *GitDriver) DiffFiles(ctx context.Context, dir string, args ...string) (string, error) {
	return d.run(ctx, dir, append([]string{"diff-files"}, args...)...)
}

func (d *GitDriver) LsFiles(ctx context.Context, dir string, args ...string) (string, error) {
	return d.run(ctx, dir, append([]string{"ls-files"}, args...)...)
}

func (d *GitDriver) PackRefs(ctx context.Context, dir string, all, prune bool) error {
	args := []string{"pack-refs"}
	if all {
		args = append(args, "--all")
	}
	if prune {
		args = append(args, "--prune")
	}
	_, err := d.run(ctx, dir, args...)
	return err
}

func (d *GitDriver) RevList(ctx context.Context, dir string, args ...string) (string, error) {
	return d.run(ctx, dir, append([]string{"rev-list"}, args...)...)
}

func (d *GitDriver) Log(ctx context.Context, dir string, args ...string) (string, error) {
	return d.run(ctx, dir, append([]string{"log"}, args...)...)
}

func (d *GitDriver) Describe(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := d.run(ctx, dir, append([]string{"describe"}, args...)...)
	return strings.TrimSpace(out), err
}

func (d *GitDriver) Gc(ctx context.Context, dir string, packThreads int) error {
	args := []string{"gc", "--auto"}
	if packThreads > 0 {
		args = append(args, "-c", fmt.Sprintf("pack.threads=%d", packThreads))
	}
	_, err := d.run(ctx, dir, args...)
	return err
}

func (d *GitDriver) Tag(ctx context.Context, dir string, args ...string) error {
	_, err := d.run(ctx, dir, append([]string{"tag"}, args...)...)
	return err
}

func (d *GitDriver) Var(ctx context.Context, dir, name string) (string, error) {
	out, err := d.run(ctx, dir, "var", name)
	return strings.TrimSpace(out), err
}

func (d *GitDriver) Checkout(ctx context.Context, dir string, quiet bool, target string, args ...string) error {
	cmd := []string{"checkout"}
	if quiet {
		cmd = append(cmd, "--quiet")
	}
	cmd = append(cmd, target)
	cmd = append(cmd, args...)
	_, err := d.run(ctx, dir, cmd...)
	return err
}

func (d *GitDriver) CherryPick(ctx context.Context, dir string, commit string) error {
	_, err := d.run(ctx, dir, "cherry-pick", commit)
	return err
}

func (d *GitDriver) Revert(ctx context.Context, dir string, commit string) error {
	_, err := d.run(ctx, dir, "revert", "--no-edit", commit)
	return err
}

func (d *GitDriver) Reset(ctx context.Context, dir, mode, target string) error {
	args := []string{"reset"}
	if mode != "" {
		args = append(args, "--"+mode)
	}
	args = append(args, target)
	_, err := d.run(ctx, dir, args...)
	return err
}

func (d *GitDriver) Rebase(ctx context.Context, dir string, args ...string) error {
	_, err := d.run(ctx, dir, append([]string{"rebase"}, args...)...)
	return err
}

func (d *GitDriver) Merge(ctx context.Context, dir string, args ...string) error {
	_, err := d.run(ctx, dir, append([]string{"merge"}, args...)...)
	return err
}

func (d *GitDriver) Init(ctx context.Context, dir string, bare bool) error {
	args := []string{"init"}
	if bare {
		args = append(args, "--bare")
	}
	args = append(args, dir)
	_, err := d.run(ctx, "", args...)
	return err
}
