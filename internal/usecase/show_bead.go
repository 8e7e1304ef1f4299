package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// ShowBeadInput contains the parameters for showing a bead.
type ShowBeadInput struct {
	ID         string
	WithEvents bool // Include the job's journal
}

// ShowBeadOutput contains a bead and optionally its events.
type ShowBeadOutput struct {
	Bead   *domain.Bead
	Events []domain.Event
}

// ShowBead is the use case for displaying a single bead.
type ShowBead struct {
	beads  domain.BeadStore
	events domain.EventLog
}

// NewShowBead creates a new ShowBead use case.
func NewShowBead(beads domain.BeadStore, events domain.EventLog) *ShowBead {
	return &ShowBead{beads: beads, events: events}
}

// Execute returns the bead for the job id.
func (uc *ShowBead) Execute(ctx context.Context, in ShowBeadInput) (*ShowBeadOutput, error) {
	bead, err := uc.beads.Get(in.ID)
	if err != nil {
		return nil, err
	}
	out := &ShowBeadOutput{Bead: bead}
	if in.WithEvents {
		events, err := uc.events.Query(ctx, domain.EventQuery{JobID: in.ID})
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		out.Events = events
	}
	return out, nil
}
