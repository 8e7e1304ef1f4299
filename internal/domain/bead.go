package domain

import (
	"slices"
	"time"
)

// BeadStatus is the status recorded for a job in the bead store.
type BeadStatus string

const (
	BeadQueued    BeadStatus = "queued"
	BeadRunning   BeadStatus = "running"
	BeadCompleted BeadStatus = "completed"
	BeadFailed    BeadStatus = "failed"
	BeadCancelled BeadStatus = "cancelled"
)

// AllBeadStatuses returns all valid bead statuses.
func AllBeadStatuses() []BeadStatus {
	return []BeadStatus{BeadQueued, BeadRunning, BeadCompleted, BeadFailed, BeadCancelled}
}

// IsTerminal returns true for completed, failed and cancelled.
func (s BeadStatus) IsTerminal() bool {
	return s == BeadCompleted || s == BeadFailed || s == BeadCancelled
}

// IsValid returns true if the status is a known value.
func (s BeadStatus) IsValid() bool {
	return slices.Contains(AllBeadStatuses(), s)
}

// Bead is the durable record of a job's outcome.
// Fields are ordered to minimize memory padding.
type Bead struct {
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ID           string     `json:"id"`
	BranchName   string     `json:"branch_name"`
	Status       BeadStatus `json:"status"`
	DiffRef      string     `json:"diff_ref,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Rig          string     `json:"rig,omitempty"`
	Task         string     `json:"task,omitempty"`
	Handle       string     `json:"handle,omitempty"`
	Error        string     `json:"error,omitempty"`
	ConvoyID     string     `json:"convoy_id,omitempty"`
	HookPath     string     `json:"hook_path,omitempty"`
	BaseCommit   string     `json:"base_commit,omitempty"`
	FilesChanged []string   `json:"files_changed,omitempty"`
	RetryCount   int        `json:"retry_count,omitempty"`
}

// BeadFilter specifies criteria for listing beads.
// Empty fields match everything.
type BeadFilter struct {
	Rig      string
	ConvoyID string
	Statuses []BeadStatus
}

// Match reports whether the bead satisfies the filter.
func (f BeadFilter) Match(b *Bead) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
		return false
	}
	if f.Rig != "" && b.Rig != f.Rig {
		return false
	}
	if f.ConvoyID != "" && b.ConvoyID != f.ConvoyID {
		return false
	}
	return true
}

// PruneFilter selects terminal beads for explicit pruning.
type PruneFilter struct {
	Before   time.Time // Only beads completed before this time; zero means any
	Statuses []BeadStatus
}

// Match reports whether the bead may be pruned.
func (f PruneFilter) Match(b *Bead) bool {
	if !b.Status.IsTerminal() {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
		return false
	}
	if !f.Before.IsZero() {
		if b.CompletedAt == nil || !b.CompletedAt.Before(f.Before) {
			return false
		}
	}
	return true
}

// NewBead projects a job onto its bead record.
func NewBead(j *Job) *Bead {
	b := &Bead{
		ID:         j.ID,
		BranchName: j.Branch,
		Status:     j.State.BeadStatus(),
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		DiffRef:    j.DiffRef,
		Summary:    j.Step,
		Rig:        j.Rig,
		Task:       j.Task,
		Handle:     j.Handle,
		Error:      j.ErrorText(),
		ConvoyID:   j.ConvoyID,
		RetryCount: j.RetryCount,
	}
	if j.Hook != nil {
		b.HookPath = j.Hook.Path
		b.BaseCommit = j.Hook.BaseCommit
	}
	if j.State.IsTerminal() {
		t := j.UpdatedAt
		b.CompletedAt = &t
	}
	return b
}
