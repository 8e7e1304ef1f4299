package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// ListConvoysOutput contains every convoy with its aggregate status.
type ListConvoysOutput struct {
	Convoys []domain.ConvoyStatus
}

// ListConvoys is the use case for listing convoys.
type ListConvoys struct {
	convoys domain.ConvoyRepository
	beads   domain.BeadStore
}

// NewListConvoys creates a new ListConvoys use case.
func NewListConvoys(convoys domain.ConvoyRepository, beads domain.BeadStore) *ListConvoys {
	return &ListConvoys{convoys: convoys, beads: beads}
}

// Execute returns convoys ordered by creation time.
func (uc *ListConvoys) Execute(_ context.Context) (*ListConvoysOutput, error) {
	convoys, err := uc.convoys.List()
	if err != nil {
		return nil, fmt.Errorf("list convoys: %w", err)
	}
	out := &ListConvoysOutput{Convoys: make([]domain.ConvoyStatus, 0, len(convoys))}
	for _, c := range convoys {
		beads, err := convoyBeads(uc.beads, c)
		if err != nil {
			return nil, err
		}
		out.Convoys = append(out.Convoys, domain.NewConvoyStatus(c, beads))
	}
	return out, nil
}
