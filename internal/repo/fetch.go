package repo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/term"

	"github.com/skaphos/reposync/internal/synerr"
)

const maxFetchAttempts = 2

// cloneBundleMagic is the header a valid clone bundle must start with.
const cloneBundleMagic = "# v2 git bundle\n"

// FetchNetworkHalf drives the network half for one project: init-or-update
// the git-dir, try a clone bundle on the very first fetch, construct and
// run the fetch invocation with retries, then seal the result. It never
// mutates the filesystem concurrently with another fetch against the same
// git-dir — callers (the scheduler) are responsible for that serialization
// via task groups.
func (h *Handle) FetchNetworkHalf(ctx context.Context, opts FetchOptions) error {
	firstFetch := !isDir(h.Project.GitDir)

	if err := h.initOrUpdateGitDir(ctx); err != nil {
		return err
	}

	if IsObjectID(h.Project.RevisionExpr) && opts.OptimizedFetch && !opts.ForceSync {
		if _, err := h.Driver.RevParse(ctx, h.Project.GitDir, "--verify", "--quiet", h.Project.RevisionExpr+"^{commit}"); err == nil {
			return nil
		}
	}

	if firstFetch && opts.CloneBundleAllowed && h.Project.ObjDir == h.Project.GitDir {
		// Any bundle failure is swallowed; the normal fetch below covers it.
		_ = h.tryCloneBundle(ctx)
	}

	if err := h.fetchWithRetry(ctx, opts); err != nil {
		return err
	}

	if h.Project.Upstream != "" && opts.CurrentBranchOnly {
		if err := h.verifyPinPresent(ctx, opts); err != nil {
			return err
		}
	}

	return h.seal(ctx)
}

// fetchWithRetry runs the fetch via backoff.Retry: up to
// maxFetchAttempts tries total, a prune-and-retry on a pruning hint, an
// immediate abort (backoff.Permanent) on a signal exit or a sha-pinned
// unknown-ref failure, and otherwise a random 30-45s delay between
// attempts from randomRetryBackOff.
func (h *Handle) fetchWithRetry(ctx context.Context, opts FetchOptions) error {
	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	args := h.fetchArgs(ctx, opts, isTTY)

	policy := backoff.WithContext(backoff.WithMaxRetries(randomRetryBackOff{}, maxFetchAttempts-1), ctx)

	err := backoff.Retry(func() error {
		out, err := h.Runner.Run(ctx, h.Project.GitDir, args...)
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(out), "prune") {
			_ = h.Driver.PackRefs(ctx, h.Project.GitDir, false, false)
			return err
		}
		if synerr.Classify(err) == synerr.ClassNoRemote && IsObjectID(h.Project.RevisionExpr) && opts.CurrentBranchOnly {
			return backoff.Permanent(fmt.Errorf("sha-pinned ref not found in current-branch mode: %w", err))
		}
		if isSignalExit(err) {
			return backoff.Permanent(fmt.Errorf("fetch terminated by signal: %w", err))
		}
		return err
	}, policy)

	if err != nil {
		return synerr.New(synerr.KindFetch, h.Project.Name, fmt.Errorf("fetch failed: %w", err))
	}
	return nil
}

// randomRetryBackOff satisfies backoff.BackOff with a flat random 30-45s
// delay between fetch attempts.
type randomRetryBackOff struct{}

func (randomRetryBackOff) NextBackOff() time.Duration {
	return time.Duration(30+rand.Intn(16)) * time.Second
}
func (randomRetryBackOff) Reset() {}

func isSignalExit(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "signal:")
}

// verifyPinPresent re-checks, for sha pins fetched in current-branch
// mode, that the target object is now present; if not, it retries once
// with CurrentBranchOnly=false, then once more with no depth cap, to
// avoid infinite recursion.
func (h *Handle) verifyPinPresent(ctx context.Context, opts FetchOptions) error {
	if _, err := h.Driver.RevParse(ctx, h.Project.GitDir, "--verify", "--quiet", h.Project.RevisionExpr+"^{commit}"); err == nil {
		return nil
	}
	widened := opts
	widened.CurrentBranchOnly = false
	if err := h.fetchWithRetry(ctx, widened); err != nil {
		return err
	}
	if _, err := h.Driver.RevParse(ctx, h.Project.GitDir, "--verify", "--quiet", h.Project.RevisionExpr+"^{commit}"); err == nil {
		return nil
	}
	widened.GlobalDefaultDepth = 0
	return h.fetchWithRetry(ctx, widened)
}

// seal finishes the network half: repack refs and point
// refs/remotes/m/<branch> (or HEAD, for mirrors) at the resolved revision.
func (h *Handle) seal(ctx context.Context) error {
	if err := h.Driver.PackRefs(ctx, h.Project.GitDir, true, true); err != nil {
		return synerr.New(synerr.KindFetch, h.Project.Name, fmt.Errorf("pack-refs: %w", err))
	}
	branch := strings.TrimPrefix(h.Project.RevisionExpr, "refs/heads/")
	target := fmt.Sprintf("refs/remotes/%s/%s", h.Project.Remote.Name, branch)
	if h.Project.Worktree == "" {
		if err := h.Driver.SymbolicRef(ctx, h.Project.GitDir, "HEAD", target); err != nil {
			return synerr.New(synerr.KindFetch, h.Project.Name, fmt.Errorf("set mirror HEAD: %w", err))
		}
		return nil
	}
	if id, err := h.Driver.RevParse(ctx, h.Project.GitDir, "--verify", "--quiet", target); err == nil && id != "" {
		_ = h.Driver.UpdateRef(ctx, h.Project.GitDir, "refs/remotes/m/"+branch, id)
	}
	return nil
}

// tryCloneBundle downloads <remote>/clone.bundle with resume support,
// validates its magic, and fetches from it. Any failure is silently
// swallowed and the caller falls back to a normal fetch.
func (h *Handle) tryCloneBundle(ctx context.Context) error {
	bundleURL := strings.TrimSuffix(h.Project.Remote.URL, "/") + "/clone.bundle"
	tmp := filepath.Join(h.Project.GitDir, "clone.bundle.part")

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2

	if err := downloadWithResume(ctx, client.StandardClient(), bundleURL, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	defer os.Remove(tmp)

	if err := validateBundleMagic(tmp); err != nil {
		return err
	}

	_, err := h.Runner.Run(ctx, h.Project.GitDir, "fetch", tmp,
		fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", h.Project.Remote.Name))
	return err
}

func downloadWithResume(ctx context.Context, client *http.Client, url, dest string) error {
	var startAt int64
	if st, err := os.Stat(dest); err == nil {
		startAt = st.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if startAt > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startAt))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("clone bundle fetch: unexpected status %d", resp.StatusCode)
	}

	flag := os.O_CREATE | os.O_WRONLY
	if resp.StatusCode == http.StatusPartialContent {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(dest, flag, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func validateBundleMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	header := make([]byte, len(cloneBundleMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	if string(header) != cloneBundleMagic {
		return fmt.Errorf("clone bundle: invalid magic %q", header)
	}
	return nil
}
