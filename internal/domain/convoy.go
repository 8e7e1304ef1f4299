package domain

import "time"

// Convoy is a named bundle of task descriptions distributed as jobs.
// Fields are ordered to minimize memory padding.
type Convoy struct {
	CreatedAt time.Time    `yaml:"created_at"`
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Rig       string       `yaml:"rig"`
	Tasks     []ConvoyTask `yaml:"tasks"`
}

// ConvoyTask is one task of a convoy; JobID is empty until the task is spawned.
type ConvoyTask struct {
	Description string `yaml:"description"`
	JobID       string `yaml:"job_id,omitempty"`
}

// Pending returns the indexes of tasks that have not been spawned yet, in order.
func (c *Convoy) Pending() []int {
	var idx []int
	for i, t := range c.Tasks {
		if t.JobID == "" {
			idx = append(idx, i)
		}
	}
	return idx
}

// ConvoyState summarizes the progress of a convoy.
type ConvoyState string

const (
	ConvoyPending   ConvoyState = "pending"   // No job spawned yet
	ConvoyRunning   ConvoyState = "running"   // Some task not yet terminal
	ConvoyCompleted ConvoyState = "completed" // Every job completed
	ConvoyPartial   ConvoyState = "partial"   // Every job terminal, some not completed
)

// ConvoyStatus is the computed status of a convoy.
type ConvoyStatus struct {
	Counts map[BeadStatus]int
	Convoy *Convoy
	State  ConvoyState
	Total  int
}

// NewConvoyStatus computes the status of a convoy from the beads of its jobs.
// beads maps job id to bead; tasks without a bead count as queued.
func NewConvoyStatus(c *Convoy, beads map[string]*Bead) ConvoyStatus {
	st := ConvoyStatus{
		Convoy: c,
		Total:  len(c.Tasks),
		Counts: make(map[BeadStatus]int),
	}
	spawned := 0
	terminal := 0
	completed := 0
	for _, t := range c.Tasks {
		if t.JobID == "" {
			st.Counts[BeadQueued]++
			continue
		}
		spawned++
		b, ok := beads[t.JobID]
		if !ok {
			st.Counts[BeadQueued]++
			continue
		}
		st.Counts[b.Status]++
		if b.Status.IsTerminal() {
			terminal++
		}
		if b.Status == BeadCompleted {
			completed++
		}
	}

	switch {
	case spawned == 0:
		st.State = ConvoyPending
	case terminal < st.Total:
		st.State = ConvoyRunning
	case completed == st.Total:
		st.State = ConvoyCompleted
	default:
		st.State = ConvoyPartial
	}
	return st
}

// IsDone reports whether every task of the convoy reached a terminal state.
func (s ConvoyStatus) IsDone() bool {
	return s.State == ConvoyCompleted || s.State == ConvoyPartial
}
