package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// RemoveRigInput contains the parameters for removing a rig.
type RemoveRigInput struct {
	Name  string
	Force bool // Remove even if jobs of the rig are still active
}

// RemoveRig is the use case for removing a rig registration.
type RemoveRig struct {
	rigs  domain.RigRegistry
	beads domain.BeadStore
}

// NewRemoveRig creates a new RemoveRig use case.
func NewRemoveRig(rigs domain.RigRegistry, beads domain.BeadStore) *RemoveRig {
	return &RemoveRig{rigs: rigs, beads: beads}
}

// Execute removes the rig. A rig with queued or running jobs is only
// removed with Force.
func (uc *RemoveRig) Execute(_ context.Context, in RemoveRigInput) error {
	if _, err := uc.rigs.Resolve(in.Name); err != nil {
		return err
	}
	if !in.Force {
		counts, err := countBeads(uc.beads, domain.BeadFilter{
			Rig:      in.Name,
			Statuses: []domain.BeadStatus{domain.BeadQueued, domain.BeadRunning},
		})
		if err != nil {
			return err
		}
		if active := counts[domain.BeadQueued] + counts[domain.BeadRunning]; active > 0 {
			return fmt.Errorf("%w: %s has %d active job(s)", domain.ErrRigInUse, in.Name, active)
		}
	}
	return uc.rigs.Remove(in.Name)
}

func countBeads(beads domain.BeadStore, filter domain.BeadFilter) (map[domain.BeadStatus]int, error) {
	counts := make(map[domain.BeadStatus]int)
	for b, err := range beads.List(filter) {
		if err != nil {
			return nil, fmt.Errorf("list beads: %w", err)
		}
		counts[b.Status]++
	}
	return counts, nil
}
