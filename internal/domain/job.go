package domain

import (
	"fmt"
	"slices"
	"time"
)

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobQueued     JobState = "queued"     // Waiting for a concurrency slot
	JobSubmitting JobState = "submitting" // Hook acquired, submission pending
	JobRunning    JobState = "running"    // Accepted by the remote service
	JobCompleted  JobState = "completed"  // Remote service reported success
	JobFailed     JobState = "failed"     // Remote failure or local precondition error
	JobCancelled  JobState = "cancelled"  // Cancelled by the operator
)

// AllJobStates returns all valid job states.
func AllJobStates() []JobState {
	return []JobState{JobQueued, JobSubmitting, JobRunning, JobCompleted, JobFailed, JobCancelled}
}

// jobTransitions defines the allowed state transitions.
// Rate limiting is an overlay flag on submitting and running, not a state.
//
//	queued → submitting → running → completed
//	   ↓          ↓           ↓
//	   └──────────┴───────────┴──→ failed | cancelled
var jobTransitions = map[JobState][]JobState{
	JobQueued:     {JobSubmitting, JobFailed, JobCancelled},
	JobSubmitting: {JobRunning, JobFailed, JobCancelled},
	JobRunning:    {JobCompleted, JobFailed, JobCancelled},
	JobCompleted:  {},
	JobFailed:     {},
	JobCancelled:  {},
}

// CanTransitionTo returns true if the state can transition to the target state.
func (s JobState) CanTransitionTo(target JobState) bool {
	allowed, ok := jobTransitions[s]
	if !ok {
		return false
	}
	return slices.Contains(allowed, target)
}

// IsTerminal returns true for completed, failed and cancelled.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// HoldsSlot returns true if a job in this state counts against the concurrency budget.
func (s JobState) HoldsSlot() bool {
	return s == JobSubmitting || s == JobRunning
}

// IsValid returns true if the state is a known value.
func (s JobState) IsValid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// BeadStatus maps the job state onto the status recorded in the bead store.
// Submitting is recorded as running.
func (s JobState) BeadStatus() BeadStatus {
	switch s {
	case JobQueued:
		return BeadQueued
	case JobSubmitting, JobRunning:
		return BeadRunning
	case JobCompleted:
		return BeadCompleted
	case JobFailed:
		return BeadFailed
	case JobCancelled:
		return BeadCancelled
	default:
		return BeadFailed
	}
}

// Job is one unit of remote agent work.
// Jobs are owned by the mayor loop and must not be shared across goroutines.
// Fields are ordered to minimize memory padding.
type Job struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextAttempt  time.Time // When the next submit or poll is due
	LastError    error
	Hook         *Hook
	ID           string
	Task         string
	Rig          string
	Branch       string
	BaseRef      string // Optional; the rig's default branch when empty
	Handle       string // Remote correlation handle
	ConvoyID     string
	Step         string // Last step reported by the remote service
	DiffRef      string
	ContextFiles []string
	State        JobState
	ConvoyIndex  int
	RetryCount   int // Submission retries caused by throttling
	PollErrors   int // Consecutive non-throttling poll errors
	RateLimited  bool
}

// NewJob creates a queued job. The branch name is derived from the task and id.
func NewJob(id, rig, task string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Rig:       rig,
		Task:      task,
		Branch:    BranchName(task, id),
		State:     JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the job to target, clearing the rate-limited overlay.
func (j *Job) TransitionTo(target JobState, now time.Time) error {
	if !j.State.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, j.State, target)
	}
	j.State = target
	j.RateLimited = false
	j.UpdatedAt = now
	return nil
}

// MarkRateLimited sets the throttling overlay without changing the state.
func (j *Job) MarkRateLimited(now time.Time) {
	j.RateLimited = true
	j.UpdatedAt = now
}

// IsTerminal reports whether the job has reached a terminal state.
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// Display returns the state for display, including the rate-limited overlay.
func (j *Job) Display() string {
	if j.RateLimited && !j.State.IsTerminal() {
		return fmt.Sprintf("rate_limited(%s)", j.State)
	}
	return string(j.State)
}

// Snapshot returns a copy of the job that is safe to hand to other goroutines.
func (j *Job) Snapshot() Job {
	cp := *j
	cp.ContextFiles = slices.Clone(j.ContextFiles)
	if j.Hook != nil {
		h := *j.Hook
		cp.Hook = &h
	}
	return cp
}

// ErrorText returns the last error message or an empty string.
func (j *Job) ErrorText() string {
	if j.LastError == nil {
		return ""
	}
	return j.LastError.Error()
}
