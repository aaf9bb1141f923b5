// Package synerr defines the sync engine's error taxonomy as typed,
// classifiable errors rather than ad-hoc strings.
package synerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the error categories the engine distinguishes.
type Kind int

const (
	// KindManifestParse covers structural or semantic manifest defects.
	KindManifestParse Kind = iota
	// KindManifestInvalidRevision covers a project revision that fails to
	// resolve locally after a successful fetch.
	KindManifestInvalidRevision
	// KindNoManifest covers a missing manifest (advise running init).
	KindNoManifest
	// KindNoSuchProject covers a selector argument that names nothing.
	KindNoSuchProject
	// KindInvalidProjectGroups covers a malformed group expression.
	KindInvalidProjectGroups
	// KindFetch covers a network-half failure for one project.
	KindFetch
	// KindGitOperation covers a local-half repository-driver failure.
	KindGitOperation
	// KindUpload covers a review-upload failure.
	KindUpload
	// KindDownload covers a patchset-download failure.
	KindDownload
	// KindHook covers a refused or failed hook invocation.
	KindHook
	// KindRepoChanged signals the tool must re-execute itself.
	KindRepoChanged
)

func (k Kind) String() string {
	switch k {
	case KindManifestParse:
		return "manifest_parse"
	case KindManifestInvalidRevision:
		return "manifest_invalid_revision"
	case KindNoManifest:
		return "no_manifest"
	case KindNoSuchProject:
		return "no_such_project"
	case KindInvalidProjectGroups:
		return "invalid_project_groups"
	case KindFetch:
		return "fetch"
	case KindGitOperation:
		return "git_operation"
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindHook:
		return "hook"
	case KindRepoChanged:
		return "repo_changed"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a taxonomy Kind and the project it
// concerns, when applicable.
type Error struct {
	Kind    Kind
	Project string
	Err     error
}

func (e *Error) Error() string {
	if e.Project != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Project, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error for the given kind.
func New(kind Kind, project string, err error) *Error {
	return &Error{Kind: kind, Project: project, Err: err}
}

// Newf builds a taxonomy error from a formatted message.
func Newf(kind Kind, project, format string, args ...any) *Error {
	return &Error{Kind: kind, Project: project, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Class is the coarse classification vocabulary used for fetch/sync error
// reporting, independent of the Kind taxonomy above.
type Class string

const (
	ClassAuth      Class = "auth"
	ClassNetwork   Class = "network"
	ClassTimeout   Class = "timeout"
	ClassCorrupt   Class = "corrupt"
	ClassNoRemote  Class = "missing_remote"
	ClassUnknown   Class = "unknown"
)

// Classify maps an underlying repository-driver error into a Class using
// sentinel checks first, then substring heuristics on the error text.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential"):
		return ClassAuth
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection timed out", "failed to connect", "temporary failure in name resolution", "tls handshake timeout"):
		return ClassNetwork
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ClassTimeout
	case containsAny(msg, "not a git repository", "bad object", "corrupt", "object file"):
		return ClassCorrupt
	case containsAny(msg, "repository not found", "couldn't find remote ref", "remote ref does not exist", "no such remote"):
		return ClassNoRemote
	default:
		return ClassUnknown
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
