package hosting

import "errors"

// Forge provider errors.
var (
	// ErrNoPRFound is returned when no PR/MR matches a lookup.
	ErrNoPRFound = errors.New("no pull request found")

	// ErrAmbiguousCommit is returned when a commit SHA matches more than one
	// open pull request, so the check-lifecycle rerun cannot be resolved
	// without help (spec §4.9).
	ErrAmbiguousCommit = errors.New("commit matches more than one open pull request")

	// ErrAuthFailed is returned when authentication fails.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
)
