package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	ErrDuplicateRig       = errors.New("rig already registered")
	ErrInvalidRepository  = errors.New("not a reachable git repository")
	ErrUnknownRig         = errors.New("unknown rig")
	ErrInvalidRigName     = errors.New("invalid rig name")
	ErrHookConflict       = errors.New("hook branch or path already exists")
	ErrGitOperationFailed = errors.New("git operation failed")
	ErrCorruptStore       = errors.New("bead store document is corrupt")
	ErrBeadNotFound       = errors.New("bead not found")
	ErrRateLimited        = errors.New("rate limited by remote service")
	ErrRetryExhausted     = errors.New("submission retries exhausted")
	ErrRemoteFailed       = errors.New("remote job failed")
	ErrPollFailed         = errors.New("remote job polling failed repeatedly")
	ErrJobNotFound        = errors.New("job not found")
	ErrJobTerminal        = errors.New("job already in a terminal state")
	ErrInvalidTransition  = errors.New("invalid job state transition")
	ErrDuplicateJob       = errors.New("job id already in use")
	ErrConvoyNotFound     = errors.New("convoy not found")
	ErrEmptyConvoy        = errors.New("convoy has no tasks")
	ErrMayorStopped       = errors.New("mayor is not running")
	ErrNotInitialized     = errors.New("gastown workspace not initialized (run 'gt init' first)")
	ErrAlreadyInitialized = errors.New("gastown workspace already initialized")
	ErrOrphanedByRestart  = errors.New("job orphaned by mayor restart")
	ErrEmptyTask          = errors.New("task description cannot be empty")
	ErrInvalidCommand     = errors.New("invalid operator command")
	ErrConfigExists       = errors.New("config file already exists")
	ErrRigInUse           = errors.New("rig has active jobs")
	ErrAtCapacity         = errors.New("concurrency limit reached")
)

// GitError describes a failed git invocation.
// It matches ErrGitOperationFailed with errors.Is.
type GitError struct {
	Err    error
	Op     string
	Output string
}

func (e *GitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", e.Op, e.Err, out)
}

func (e *GitError) Unwrap() error { return e.Err }

// Is reports whether target is ErrGitOperationFailed.
func (e *GitError) Is(target error) bool {
	return target == ErrGitOperationFailed
}

// NewGitError wraps err as a GitError for the given operation.
func NewGitError(op string, err error, output []byte) error {
	return &GitError{Op: op, Err: err, Output: string(output)}
}
