package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/runoshun/gastown/internal/domain"
)

// CreateConvoyInput contains the parameters for creating a convoy.
type CreateConvoyInput struct {
	Name  string
	Rig   string
	Tasks []string // Task descriptions in dispatch order
}

// CreateConvoyOutput contains the created convoy.
type CreateConvoyOutput struct {
	Convoy *domain.Convoy
}

// CreateConvoy is the use case for creating a convoy.
type CreateConvoy struct {
	convoys domain.ConvoyRepository
	rigs    domain.RigRegistry
	clock   domain.Clock
}

// NewCreateConvoy creates a new CreateConvoy use case.
func NewCreateConvoy(convoys domain.ConvoyRepository, rigs domain.RigRegistry, clock domain.Clock) *CreateConvoy {
	return &CreateConvoy{convoys: convoys, rigs: rigs, clock: clock}
}

// Execute validates the rig and tasks and saves a new convoy.
// No job is spawned until the convoy is dispatched.
func (uc *CreateConvoy) Execute(_ context.Context, in CreateConvoyInput) (*CreateConvoyOutput, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: convoy name is required", domain.ErrInvalidCommand)
	}
	if _, err := uc.rigs.Resolve(in.Rig); err != nil {
		return nil, err
	}

	tasks := make([]domain.ConvoyTask, 0, len(in.Tasks))
	for i, desc := range in.Tasks {
		desc = strings.TrimSpace(desc)
		if desc == "" {
			return nil, fmt.Errorf("task %d: %w", i+1, domain.ErrEmptyTask)
		}
		tasks = append(tasks, domain.ConvoyTask{Description: desc})
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyConvoy, in.Name)
	}

	convoy := &domain.Convoy{
		ID:        domain.NewConvoyID(),
		Name:      in.Name,
		Rig:       in.Rig,
		Tasks:     tasks,
		CreatedAt: uc.clock.Now(),
	}
	if err := uc.convoys.Save(convoy); err != nil {
		return nil, fmt.Errorf("save convoy: %w", err)
	}
	return &CreateConvoyOutput{Convoy: convoy}, nil
}
