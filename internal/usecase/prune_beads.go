package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// PruneBeadsInput contains the parameters for pruning beads.
type PruneBeadsInput struct {
	Statuses  []domain.BeadStatus // Terminal statuses to prune (empty = all terminal)
	OlderThan time.Duration       // Only beads completed at least this long ago (0 = any age)
	DryRun    bool                // Report without deleting
}

// PruneBeadsOutput contains the pruned beads.
type PruneBeadsOutput struct {
	Pruned []*domain.Bead
	DryRun bool
}

// PruneBeads is the use case for removing old terminal beads.
type PruneBeads struct {
	beads domain.BeadStore
	clock domain.Clock
}

// NewPruneBeads creates a new PruneBeads use case.
func NewPruneBeads(beads domain.BeadStore, clock domain.Clock) *PruneBeads {
	return &PruneBeads{beads: beads, clock: clock}
}

// Execute deletes terminal beads matching the input. Queued and running
// beads are never pruned.
func (uc *PruneBeads) Execute(_ context.Context, in PruneBeadsInput) (*PruneBeadsOutput, error) {
	for _, s := range in.Statuses {
		if !s.IsTerminal() {
			return nil, fmt.Errorf("cannot prune %q beads", s)
		}
	}

	filter := domain.PruneFilter{Statuses: in.Statuses}
	if in.OlderThan > 0 {
		filter.Before = uc.clock.Now().Add(-in.OlderThan)
	}

	if in.DryRun {
		var matched []*domain.Bead
		for b, err := range uc.beads.List(domain.BeadFilter{}) {
			if err != nil {
				return nil, fmt.Errorf("list beads: %w", err)
			}
			if filter.Match(b) {
				matched = append(matched, b)
			}
		}
		return &PruneBeadsOutput{Pruned: matched, DryRun: true}, nil
	}

	pruned, err := uc.beads.Prune(filter)
	if err != nil {
		return nil, fmt.Errorf("prune beads: %w", err)
	}
	return &PruneBeadsOutput{Pruned: pruned}, nil
}
