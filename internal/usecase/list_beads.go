package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// ListBeadsInput contains the parameters for listing beads.
type ListBeadsInput struct {
	Rig      string              // Filter by rig (optional)
	ConvoyID string              // Filter by convoy (optional)
	Statuses []domain.BeadStatus // Filter by status (optional)
	Limit    int                 // Keep only the newest Limit beads (0 = all)
}

// ListBeadsOutput contains the matching beads, oldest first.
type ListBeadsOutput struct {
	Beads []*domain.Bead
}

// ListBeads is the use case for listing beads.
type ListBeads struct {
	beads domain.BeadStore
}

// NewListBeads creates a new ListBeads use case.
func NewListBeads(beads domain.BeadStore) *ListBeads {
	return &ListBeads{beads: beads}
}

// Execute returns beads matching the filter.
func (uc *ListBeads) Execute(_ context.Context, in ListBeadsInput) (*ListBeadsOutput, error) {
	for _, s := range in.Statuses {
		if !s.IsValid() {
			return nil, fmt.Errorf("invalid status %q", s)
		}
	}

	filter := domain.BeadFilter{Rig: in.Rig, ConvoyID: in.ConvoyID, Statuses: in.Statuses}
	beads := []*domain.Bead{}
	for b, err := range uc.beads.List(filter) {
		if err != nil {
			return nil, fmt.Errorf("list beads: %w", err)
		}
		beads = append(beads, b)
	}
	if in.Limit > 0 && len(beads) > in.Limit {
		beads = beads[len(beads)-in.Limit:]
	}
	return &ListBeadsOutput{Beads: beads}, nil
}
