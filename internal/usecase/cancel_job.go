package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// DefaultCancelWaitInterval is how often CancelJob re-reads the bead while waiting.
const DefaultCancelWaitInterval = 500 * time.Millisecond

// CancelJobInput contains the parameters for cancelling a job.
type CancelJobInput struct {
	JobID        string
	Timeout      time.Duration // Wait limit; 0 waits until ctx is done
	WaitInterval time.Duration
	Wait         bool // Block until the bead reaches a terminal status
}

// CancelJobOutput contains the bead after the cancel was requested.
type CancelJobOutput struct {
	Bead *domain.Bead
}

// CancelJob is the use case for cancelling a job.
type CancelJob struct {
	beads domain.BeadStore
	coord domain.Coordinator
}

// NewCancelJob creates a new CancelJob use case.
func NewCancelJob(beads domain.BeadStore, coord domain.Coordinator) *CancelJob {
	return &CancelJob{beads: beads, coord: coord}
}

// Execute checks that the job is still live and requests its cancellation.
func (uc *CancelJob) Execute(ctx context.Context, in CancelJobInput) (*CancelJobOutput, error) {
	bead, err := uc.beads.Get(in.JobID)
	if errors.Is(err, domain.ErrBeadNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, in.JobID)
	}
	if err != nil {
		return nil, err
	}
	if bead.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, in.JobID, bead.Status)
	}

	if err := uc.coord.Cancel(ctx, in.JobID); err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !in.Wait {
		return &CancelJobOutput{Bead: bead}, nil
	}

	bead, err = uc.wait(ctx, in)
	if err != nil {
		return nil, err
	}
	return &CancelJobOutput{Bead: bead}, nil
}

func (uc *CancelJob) wait(ctx context.Context, in CancelJobInput) (*domain.Bead, error) {
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}
	interval := in.WaitInterval
	if interval <= 0 {
		interval = DefaultCancelWaitInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		bead, err := uc.beads.Get(in.JobID)
		if err != nil {
			return nil, err
		}
		if bead.Status.IsTerminal() {
			return bead, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", in.JobID, ctx.Err())
		case <-ticker.C:
		}
	}
}
