package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// DispatchConvoyInput contains the parameters for dispatching a convoy.
type DispatchConvoyInput struct {
	ID    string
	Count int // Maximum number of the convoy's jobs in flight
}

// DispatchConvoyOutput reports what was handed to the mayor.
type DispatchConvoyOutput struct {
	Pending int // Tasks without a job at dispatch time
}

// DispatchConvoy is the use case for asking the mayor to feed a convoy.
type DispatchConvoy struct {
	convoys domain.ConvoyRepository
	coord   domain.Coordinator
}

// NewDispatchConvoy creates a new DispatchConvoy use case.
func NewDispatchConvoy(convoys domain.ConvoyRepository, coord domain.Coordinator) *DispatchConvoy {
	return &DispatchConvoy{convoys: convoys, coord: coord}
}

// Execute checks the convoy locally and forwards the dispatch.
func (uc *DispatchConvoy) Execute(ctx context.Context, in DispatchConvoyInput) (*DispatchConvoyOutput, error) {
	if in.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", domain.ErrInvalidCommand)
	}
	convoy, err := uc.convoys.Get(in.ID)
	if err != nil {
		return nil, err
	}
	if len(convoy.Tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyConvoy, in.ID)
	}
	if err := uc.coord.DispatchConvoy(ctx, in.ID, in.Count); err != nil {
		return nil, fmt.Errorf("dispatch convoy: %w", err)
	}
	return &DispatchConvoyOutput{Pending: len(convoy.Pending())}, nil
}
