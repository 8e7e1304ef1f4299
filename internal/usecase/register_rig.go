package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// RegisterRigInput contains the parameters for registering a rig.
type RegisterRigInput struct {
	Name   string // Rig name (required)
	Source string // Local repository path or clone URL (required)
}

// RegisterRigOutput contains the registered rig.
type RegisterRigOutput struct {
	Rig *domain.Rig
}

// RegisterRig is the use case for registering a rig.
type RegisterRig struct {
	rigs domain.RigRegistry
}

// NewRegisterRig creates a new RegisterRig use case.
func NewRegisterRig(rigs domain.RigRegistry) *RegisterRig {
	return &RegisterRig{rigs: rigs}
}

// Execute registers the rig, cloning it first when the source is a URL.
func (uc *RegisterRig) Execute(ctx context.Context, in RegisterRigInput) (*RegisterRigOutput, error) {
	if in.Source == "" {
		return nil, fmt.Errorf("%w: source is required", domain.ErrInvalidRepository)
	}
	rig, err := uc.rigs.Register(ctx, in.Name, in.Source)
	if err != nil {
		return nil, err
	}
	return &RegisterRigOutput{Rig: rig}, nil
}
