package domain

import "time"

// Event types recorded in the event journal.
const (
	EventQueued      = "queued"
	EventSubmitting  = "submitting"
	EventRateLimited = "rate_limited"
	EventRunning     = "running"
	EventStep        = "step"
	EventCompleted   = "completed"
	EventFailed      = "failed"
	EventCancelled   = "cancelled"
	EventReattached  = "reattached"
	EventOrphanHook  = "orphan_hook"
)

// Event is one entry of the job journal.
// Fields are ordered to minimize memory padding.
type Event struct {
	CreatedAt time.Time
	Type      string
	JobID     string
	Detail    string
	ID        int64
}

// EventQuery filters journal entries. Zero values match everything.
type EventQuery struct {
	JobID string
	Type  string
	Limit int
}
