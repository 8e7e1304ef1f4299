package domain

import (
	"context"
	"fmt"
)

// RemoteState is the state declared by the remote execution service.
type RemoteState string

const (
	RemotePending     RemoteState = "PENDING"
	RemoteRunning     RemoteState = "RUNNING"
	RemoteCompleted   RemoteState = "COMPLETED"
	RemoteFailed      RemoteState = "FAILED"
	RemoteRateLimited RemoteState = "RATE_LIMITED"
)

// IsValid returns true if the state is a known value.
func (s RemoteState) IsValid() bool {
	switch s {
	case RemotePending, RemoteRunning, RemoteCompleted, RemoteFailed, RemoteRateLimited:
		return true
	}
	return false
}

// SubmitRequest describes a job handed to the remote service.
// Fields are ordered to minimize memory padding.
type SubmitRequest struct {
	JobID        string
	Task         string
	Branch       string
	RepoPath     string
	HookPath     string
	RemoteURL    string
	ContextFiles []string
}

// PollStatus is the result of polling a remote job.
type PollStatus struct {
	State   RemoteState
	Step    string
	DiffRef string
	Error   string
}

// RemoteError is an error response whose status was declared by the remote service.
// A RemoteError with Status RemoteRateLimited matches ErrRateLimited.
type RemoteError struct {
	Status  RemoteState
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote service: %s", e.Status)
	}
	return fmt.Sprintf("remote service: %s: %s", e.Status, e.Message)
}

// Is reports whether target is ErrRateLimited for throttling responses.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == RemoteRateLimited
}

// RemoteService is the submit/poll contract of the remote agent execution service.
type RemoteService interface {
	// Submit hands a task to the service and returns its correlation handle.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Poll returns the current state of a submitted job.
	Poll(ctx context.Context, handle string) (PollStatus, error)
	// Cancel asks the service to stop a submitted job.
	Cancel(ctx context.Context, handle string) error
}
