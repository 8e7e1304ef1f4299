package usecase

import (
	"context"

	"github.com/runoshun/gastown/internal/domain"
)

// QuitMayorInput contains the parameters for stopping the mayor.
type QuitMayorInput struct {
	Drain bool // Cancel every non-terminal job before stopping
}

// QuitMayor is the use case for stopping a running mayor.
type QuitMayor struct {
	coord domain.Coordinator
}

// NewQuitMayor creates a new QuitMayor use case.
func NewQuitMayor(coord domain.Coordinator) *QuitMayor {
	return &QuitMayor{coord: coord}
}

// Execute sends the quit request.
func (uc *QuitMayor) Execute(ctx context.Context, in QuitMayorInput) error {
	return uc.coord.Quit(ctx, in.Drain)
}
