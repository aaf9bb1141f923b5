// Package syncbuf implements the sync buffer: a two-phase deferred
// action queue that collects messages and late actions from the local
// reconciler and replays them in order, with colored output. Grounded
// on internal/termstyle's colored-output idiom; SyncOutcome is a tagged
// variant type replacing exception-driven failure propagation.
package syncbuf

import (
	"fmt"
	"io"
	"sort"

	"github.com/skaphos/reposync/internal/termstyle"
)

// LateFunc is a deferred action queued for phase 1 (fast-forwards) or
// phase 2 (rebases). It returns an error if the action failed.
type LateFunc = func() error

type message struct {
	project string
	text    string
}

type failure struct {
	project string
	err     error
}

type lateEntry struct {
	project string
	fn      LateFunc
}

// Buffer collects info messages, failures, and two ordered queues of
// deferred actions for one sync run.
type Buffer struct {
	messages []message
	failures []failure
	queue1   []lateEntry
	queue2   []lateEntry

	color bool
}

// New returns an empty Buffer. color controls whether Finish's output is
// ANSI-colorized.
func New(color bool) *Buffer {
	return &Buffer{color: color}
}

// Info records an informational message for project, formatted like
// fmt.Sprintf.
func (b *Buffer) Info(project, format string, args ...any) {
	b.messages = append(b.messages, message{project: project, text: fmt.Sprintf(format, args...)})
}

// Fail records project as having failed local reconciliation.
func (b *Buffer) Fail(project string, err error) {
	b.failures = append(b.failures, failure{project: project, err: err})
}

// Later1 queues a phase-1 (fast-forward) deferred action for project.
// Phase-1 actions are idempotent and safe to run before any rebase.
func (b *Buffer) Later1(project string, fn LateFunc) {
	b.queue1 = append(b.queue1, lateEntry{project: project, fn: fn})
}

// Later2 queues a phase-2 (rebase) deferred action for project. Phase 2
// only runs if phase 1 reported no failures.
func (b *Buffer) Later2(project string, fn LateFunc) {
	b.queue2 = append(b.queue2, lateEntry{project: project, fn: fn})
}

// Outcome is the tagged-variant result of Finish, replacing exception-
// driven sync-buffer failure propagation.
type Outcome struct {
	Clean          bool
	FailedProjects []string
}

// Finish prints all info messages, runs queue 1 in declaration order
// (recording any failures but continuing), prints messages again, then —
// only if queue 1 reported no failures — runs queue 2 the same way and
// prints a final time. It returns whether the run was entirely clean.
func (b *Buffer) Finish(w io.Writer) Outcome {
	failedSet := map[string]bool{}
	for _, f := range b.failures {
		failedSet[f.project] = true
	}

	b.printMessages(w)

	queue1Failed := false
	for _, entry := range b.queue1 {
		if err := entry.fn(); err != nil {
			b.Fail(entry.project, err)
			failedSet[entry.project] = true
			queue1Failed = true
		}
	}

	b.printMessages(w)

	if !queue1Failed {
		for _, entry := range b.queue2 {
			if err := entry.fn(); err != nil {
				b.Fail(entry.project, err)
				failedSet[entry.project] = true
			}
		}
		b.printMessages(w)
	}

	out := Outcome{Clean: len(failedSet) == 0}
	for p := range failedSet {
		out.FailedProjects = append(out.FailedProjects, p)
	}
	sort.Strings(out.FailedProjects)
	return out
}

// printMessages flushes and clears the pending info/failure messages,
// following a "print, drain, print again" shape across each phase
// boundary.
func (b *Buffer) printMessages(w io.Writer) {
	for _, m := range b.messages {
		fmt.Fprintf(w, "%s %s\n", termstyle.Colorize(b.color, m.project+":", termstyle.Info), m.text)
	}
	for _, f := range b.failures {
		fmt.Fprintf(w, "%s %s: %v\n", termstyle.Colorize(b.color, "error", termstyle.Error), f.project, f.err)
	}
	b.messages = nil
	b.failures = nil
}
