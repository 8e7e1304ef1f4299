package usecase

import (
	"context"

	"github.com/runoshun/gastown/internal/domain"
)

// ShowRigInput contains the parameters for showing a rig.
type ShowRigInput struct {
	Name string
}

// ShowRigOutput contains a rig and the bead counts of its jobs.
type ShowRigOutput struct {
	Rig    *domain.Rig
	Counts map[domain.BeadStatus]int
}

// ShowRig is the use case for displaying a rig.
type ShowRig struct {
	rigs  domain.RigRegistry
	beads domain.BeadStore
}

// NewShowRig creates a new ShowRig use case.
func NewShowRig(rigs domain.RigRegistry, beads domain.BeadStore) *ShowRig {
	return &ShowRig{rigs: rigs, beads: beads}
}

// Execute resolves the rig and counts its beads by status.
func (uc *ShowRig) Execute(_ context.Context, in ShowRigInput) (*ShowRigOutput, error) {
	rig, err := uc.rigs.Resolve(in.Name)
	if err != nil {
		return nil, err
	}
	counts, err := countBeads(uc.beads, domain.BeadFilter{Rig: rig.Name})
	if err != nil {
		return nil, err
	}
	return &ShowRigOutput{Rig: rig, Counts: counts}, nil
}
