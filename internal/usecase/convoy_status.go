package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// ConvoyStatusInput contains the parameters for a convoy status query.
type ConvoyStatusInput struct {
	ID string
}

// ConvoyStatusOutput contains the aggregate status and the per-task beads.
type ConvoyStatusOutput struct {
	Beads  map[string]*domain.Bead // by job id
	Status domain.ConvoyStatus
}

// ConvoyStatus is the use case for aggregating a convoy's progress.
type ConvoyStatus struct {
	convoys domain.ConvoyRepository
	beads   domain.BeadStore
}

// NewConvoyStatus creates a new ConvoyStatus use case.
func NewConvoyStatus(convoys domain.ConvoyRepository, beads domain.BeadStore) *ConvoyStatus {
	return &ConvoyStatus{convoys: convoys, beads: beads}
}

// Execute loads the beads of every spawned task and aggregates them.
func (uc *ConvoyStatus) Execute(_ context.Context, in ConvoyStatusInput) (*ConvoyStatusOutput, error) {
	convoy, err := uc.convoys.Get(in.ID)
	if err != nil {
		return nil, err
	}
	beads, err := convoyBeads(uc.beads, convoy)
	if err != nil {
		return nil, err
	}
	return &ConvoyStatusOutput{
		Beads:  beads,
		Status: domain.NewConvoyStatus(convoy, beads),
	}, nil
}

func convoyBeads(store domain.BeadStore, convoy *domain.Convoy) (map[string]*domain.Bead, error) {
	beads := make(map[string]*domain.Bead)
	for _, t := range convoy.Tasks {
		if t.JobID == "" {
			continue
		}
		b, err := store.Get(t.JobID)
		if errors.Is(err, domain.ErrBeadNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get bead %s: %w", t.JobID, err)
		}
		beads[t.JobID] = b
	}
	return beads, nil
}
