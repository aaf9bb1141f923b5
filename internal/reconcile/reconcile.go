// Package reconcile implements the local reconciler: the per-project
// state machine that decides what to do with a worktree once its
// network half has fetched. Grounded on internal/engine.go's
// pullRebaseSkipReason cascade-of-checks idiom and its
// stash/rebase/reset action-string-building pattern, generalized into a
// seven-case decision tree.
package reconcile

import (
	"fmt"
)

// Commit is the minimal shape the reconciler needs about a local-only
// commit: its id and the email that authored/committed it.
type Commit struct {
	ID            string
	CommitterMail string
}

// State captures everything the reconciler needs to know about one
// project before deciding what to do with its worktree.
type State struct {
	// Detached is true when HEAD is not a symbolic ref.
	Detached bool
	// DetachRequested is the caller's explicit --detach flag.
	DetachRequested bool
	// OnBranch is true when HEAD resolves to a local branch.
	OnBranch   bool
	BranchName string

	HeadID   string
	TargetID string

	// HasUpstream is false for a branch with no tracked merge ref.
	HasUpstream bool
	// UpstreamGainCount is the number of commits reachable from TargetID
	// but not from HeadID (i.e. "how far behind upstream").
	UpstreamGainCount int

	// LocalOnly lists commits reachable from HeadID but not from TargetID,
	// oldest first.
	LocalOnly []Commit
	MineEmail string

	// PublishedID is the commit id previously pushed for review on this
	// branch, or "" if never published.
	PublishedID string
	// PublishedMerged is true if the prior published id has an ancestor
	// relationship landing it upstream of TargetID.
	PublishedMerged bool

	RebaseInProgress bool
	WorkingTreeDirty bool // ignoring untracked files

	// RebasePolicy mirrors model.Project.Rebase: prefer rebase over reset
	// when reapplying "mine" commits onto the new target.
	RebasePolicy bool

	// SuppressFileMaterialization skips copyfile/linkfile re-application
	// even on paths that would otherwise re-apply them.
	SuppressFileMaterialization bool
}

// ActionKind enumerates the outcomes reconciliation can produce.
type ActionKind int

const (
	// ActionNoOp: nothing to do; file materializations may still run per
	// ActionRematerialize.
	ActionNoOp ActionKind = iota
	// ActionCheckout: detach (or move) HEAD straight to TargetID.
	ActionCheckout
	// ActionFastForward: phase-1 fast-forward the branch to TargetID.
	ActionFastForward
	// ActionReset: hard reset the branch to TargetID, discarding every
	// local-only commit (the user's own too when the rebase policy is off).
	ActionReset
	// ActionRebase: phase-2 rebase the "mine" commits onto TargetID.
	ActionRebase
	// ActionFail: reconciliation cannot safely proceed; see Decision.Err.
	ActionFail
)

// Decision is the reconciler's verdict for one project.
type Decision struct {
	Kind ActionKind
	Err  error

	// Rematerialize reports whether copyfile/linkfile entries should be
	// re-applied for a no-op/checkout outcome. The detached no-op path
	// rematerializes but the on-branch no-op path does not; this
	// asymmetry is intentional, not a bug to fix.
	Rematerialize bool

	// RebaseFromExclusive is the commit rebase --onto should start after
	// (the last "mine" commit's parent), set only for ActionRebase.
	RebaseFromExclusive string

	// Info is a human-readable message for the sync buffer, or "".
	Info string

	// UpdateMerge reports whether the branch's tracked merge ref should be
	// adjusted to the new revision after this decision is applied.
	UpdateMerge bool
}

// Decide applies the seven-case local-reconciliation policy.
func Decide(s State) Decision {
	if s.Detached || s.DetachRequested {
		return decideDetached(s)
	}
	if !s.OnBranch {
		return Decision{Kind: ActionFail, Err: fmt.Errorf("not on a branch and not detached: inconsistent head state")}
	}
	if !s.HasUpstream {
		return Decision{
			Kind:          ActionCheckout,
			Rematerialize: !s.SuppressFileMaterialization,
			Info:          fmt.Sprintf("leaving %s; does not track upstream", s.BranchName),
			UpdateMerge:   true,
		}
	}
	if s.HeadID == s.TargetID {
		return Decision{Kind: ActionNoOp, Rematerialize: false}
	}
	if len(s.LocalOnly) == 0 {
		return Decision{Kind: ActionFastForward, UpdateMerge: true}
	}

	if s.PublishedID != "" {
		if !s.PublishedMerged && s.UpstreamGainCount > 0 {
			return Decision{
				Kind: ActionFail,
				Err: fmt.Errorf("branch %s is published (but not merged) and is now %d commits behind",
					s.BranchName, s.UpstreamGainCount),
			}
		}
		if s.PublishedID == s.HeadID {
			return Decision{Kind: ActionFastForward, UpdateMerge: true}
		}
	}

	return decideDiverged(s)
}

func decideDetached(s State) Decision {
	if s.RebaseInProgress {
		return Decision{Kind: ActionFail, Err: fmt.Errorf("prior sync failed: rebase in progress")}
	}
	if s.HeadID == s.TargetID {
		return Decision{Kind: ActionNoOp, Rematerialize: !s.SuppressFileMaterialization}
	}
	return Decision{
		Kind:          ActionCheckout,
		Rematerialize: !s.SuppressFileMaterialization,
		Info:          fmt.Sprintf("discarding %d commits", len(s.LocalOnly)),
	}
}

func decideDiverged(s State) Decision {
	mine, notMine := partitionCommits(s.LocalOnly, s.MineEmail)

	if s.UpstreamGainCount == 0 && len(notMine) == 0 {
		return Decision{Kind: ActionNoOp, Rematerialize: false}
	}

	var info string
	if len(notMine) > 0 {
		info = fmt.Sprintf("discarding %d commits removed from upstream", len(notMine))
	}

	if s.WorkingTreeDirty {
		return Decision{Kind: ActionFail, Err: fmt.Errorf("worktree has uncommitted changes, cannot reconcile %s", s.BranchName)}
	}

	if len(mine) > 0 && s.RebasePolicy {
		lastMine := mine[len(mine)-1]
		return Decision{
			Kind:                ActionRebase,
			RebaseFromExclusive: lastMine.ID + "^1",
			Info:                info,
			UpdateMerge:         true,
		}
	}

	return Decision{Kind: ActionReset, Info: info, UpdateMerge: true}
}

// partitionCommits splits localOnly into commits attributable to mineEmail
// ("mine") and everything else, preserving relative order.
func partitionCommits(localOnly []Commit, mineEmail string) (mine, notMine []Commit) {
	for _, c := range localOnly {
		if mineEmail != "" && c.CommitterMail == mineEmail {
			mine = append(mine, c)
		} else {
			notMine = append(notMine, c)
		}
	}
	return mine, notMine
}
