package usecase

import (
	"context"
	"fmt"
	"os"

	"github.com/runoshun/gastown/internal/domain"
)

// SpawnJobInput contains the parameters for spawning a job.
type SpawnJobInput struct {
	Rig          string
	Task         string
	BaseRef      string   // Optional; the rig's default branch when empty
	ContextFiles []string // Files passed to the remote agent as context
}

// SpawnJobOutput contains the id assigned to the job.
type SpawnJobOutput struct {
	JobID string
}

// SpawnJob is the use case for handing a new job to the mayor.
type SpawnJob struct {
	rigs  domain.RigRegistry
	coord domain.Coordinator
}

// NewSpawnJob creates a new SpawnJob use case.
func NewSpawnJob(rigs domain.RigRegistry, coord domain.Coordinator) *SpawnJob {
	return &SpawnJob{rigs: rigs, coord: coord}
}

// Execute validates the request locally and forwards it.
func (uc *SpawnJob) Execute(ctx context.Context, in SpawnJobInput) (*SpawnJobOutput, error) {
	req := domain.SpawnRequest{
		Rig:          in.Rig,
		Task:         in.Task,
		BaseRef:      in.BaseRef,
		ContextFiles: in.ContextFiles,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := uc.rigs.Resolve(in.Rig); err != nil {
		return nil, err
	}
	if err := checkContextFiles(in.ContextFiles); err != nil {
		return nil, err
	}

	id, err := uc.coord.Spawn(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("spawn job: %w", err)
	}
	return &SpawnJobOutput{JobID: id}, nil
}

func checkContextFiles(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("context file: %w", err)
		}
	}
	return nil
}
