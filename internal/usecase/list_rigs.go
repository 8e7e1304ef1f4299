package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// ListRigsOutput contains the registered rigs.
type ListRigsOutput struct {
	Rigs []*domain.Rig
}

// ListRigs is the use case for listing rigs.
type ListRigs struct {
	rigs domain.RigRegistry
}

// NewListRigs creates a new ListRigs use case.
func NewListRigs(rigs domain.RigRegistry) *ListRigs {
	return &ListRigs{rigs: rigs}
}

// Execute returns every rig sorted by name.
func (uc *ListRigs) Execute(_ context.Context) (*ListRigsOutput, error) {
	out := &ListRigsOutput{Rigs: []*domain.Rig{}}
	for rig, err := range uc.rigs.List() {
		if err != nil {
			return nil, fmt.Errorf("list rigs: %w", err)
		}
		out.Rigs = append(out.Rigs, rig)
	}
	return out, nil
}
