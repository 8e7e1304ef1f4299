package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/ratelimit"
)

// SubmitDirectInput contains the parameters for a one-shot submission.
type SubmitDirectInput struct {
	Rig          string
	Task         string
	BaseRef      string
	ContextFiles []string
}

// SubmitDirectOutput contains the bead of the submitted job.
type SubmitDirectOutput struct {
	Bead *domain.Bead
}

// SubmitDirect submits one job without a running mayor. The job is left
// running with its remote handle recorded, so the next mayor start
// reattaches and polls it.
// Fields are ordered to minimize memory padding.
type SubmitDirect struct {
	rigs    domain.RigRegistry
	hooks   domain.HookManager
	beads   domain.BeadStore
	remote  domain.RemoteService
	events  domain.EventLog
	logger  domain.Logger
	clock   domain.Clock
	limiter *ratelimit.Controller
	keep    domain.HookKeepPolicy
	timeout time.Duration
	limit   int // max_concurrent_agents
}

// NewSubmitDirect creates a new SubmitDirect use case.
func NewSubmitDirect(
	rigs domain.RigRegistry,
	hooks domain.HookManager,
	beads domain.BeadStore,
	remote domain.RemoteService,
	events domain.EventLog,
	logger domain.Logger,
	clock domain.Clock,
	limiter *ratelimit.Controller,
	keep domain.HookKeepPolicy,
	timeout time.Duration,
	limit int,
) *SubmitDirect {
	return &SubmitDirect{
		rigs:    rigs,
		hooks:   hooks,
		beads:   beads,
		remote:  remote,
		events:  events,
		logger:  logger,
		clock:   clock,
		limiter: limiter,
		keep:    keep,
		timeout: timeout,
		limit:   limit,
	}
}

// Execute acquires a hook and submits the job, retrying declared
// throttling per the rate limit policy. It returns domain.ErrAtCapacity
// when the workspace already has limit jobs in flight.
func (uc *SubmitDirect) Execute(ctx context.Context, in SubmitDirectInput) (*SubmitDirectOutput, error) {
	req := domain.SpawnRequest{Rig: in.Rig, Task: in.Task, BaseRef: in.BaseRef, ContextFiles: in.ContextFiles}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rig, err := uc.rigs.Resolve(in.Rig)
	if err != nil {
		return nil, err
	}
	if err := checkContextFiles(in.ContextFiles); err != nil {
		return nil, err
	}
	if err := uc.checkCapacity(); err != nil {
		return nil, err
	}

	job := domain.NewJob(domain.NewJobID(), rig.Name, in.Task, uc.clock.Now())
	job.BaseRef = in.BaseRef
	job.ContextFiles = in.ContextFiles
	uc.record(ctx, job.ID, domain.EventQueued, job.Task)

	hook, err := uc.hooks.Acquire(ctx, rig, job.ID, job.Branch, job.BaseRef)
	if err != nil {
		return uc.fail(ctx, job, fmt.Errorf("acquire hook: %w", err))
	}
	job.Hook = hook
	if err := job.TransitionTo(domain.JobSubmitting, uc.clock.Now()); err != nil {
		return nil, err
	}
	if err := uc.beads.Put(domain.NewBead(job)); err != nil {
		_ = uc.hooks.Release(ctx, hook, false)
		return nil, fmt.Errorf("save bead: %w", err)
	}
	uc.record(ctx, job.ID, domain.EventSubmitting, hook.Path)

	submitReq := domain.SubmitRequest{
		JobID:        job.ID,
		Task:         job.Task,
		Branch:       job.Branch,
		RepoPath:     rig.Path,
		HookPath:     hook.Path,
		RemoteURL:    rig.RemoteURL,
		ContextFiles: job.ContextFiles,
	}
	handle, err := uc.limiter.Submit(ctx, uc.callRemote(), submitReq, func(attempt int, delay time.Duration) {
		job.RetryCount = attempt
		job.MarkRateLimited(uc.clock.Now())
		uc.logger.Warn(job.ID, "remote", fmt.Sprintf("rate limited, retry %d in %s", attempt, delay))
		uc.record(ctx, job.ID, domain.EventRateLimited, delay.String())
	})
	if err != nil {
		return uc.fail(ctx, job, fmt.Errorf("submit: %w", err))
	}

	job.Handle = handle
	if err := job.TransitionTo(domain.JobRunning, uc.clock.Now()); err != nil {
		return nil, err
	}
	bead := domain.NewBead(job)
	if err := uc.beads.Put(bead); err != nil {
		return nil, fmt.Errorf("save bead: %w", err)
	}
	uc.logger.Info(job.ID, "job", "submitted as "+handle)
	uc.record(ctx, job.ID, domain.EventRunning, handle)
	return &SubmitDirectOutput{Bead: bead}, nil
}

// checkCapacity counts running beads across the workspace, including
// those of a running mayor.
func (uc *SubmitDirect) checkCapacity() error {
	if uc.limit <= 0 {
		return nil
	}
	counts, err := countBeads(uc.beads, domain.BeadFilter{Statuses: []domain.BeadStatus{domain.BeadRunning}})
	if err != nil {
		return err
	}
	if n := counts[domain.BeadRunning]; n >= uc.limit {
		return fmt.Errorf("%w: %d of %d jobs in flight", domain.ErrAtCapacity, n, uc.limit)
	}
	return nil
}

// fail records the job as failed and releases its hook. The returned
// error is the job's failure.
func (uc *SubmitDirect) fail(ctx context.Context, job *domain.Job, cause error) (*SubmitDirectOutput, error) {
	job.LastError = cause
	if err := job.TransitionTo(domain.JobFailed, uc.clock.Now()); err != nil {
		return nil, err
	}
	bead := domain.NewBead(job)
	putErr := uc.beads.Put(bead)
	if job.Hook != nil {
		keep := uc.keep.Keep(domain.JobFailed) || putErr != nil
		if err := uc.hooks.Release(ctx, job.Hook, keep); err != nil {
			uc.logger.Warn(job.ID, "hook", "release hook: "+err.Error())
		}
	}
	uc.logger.Error(job.ID, "job", cause.Error())
	uc.record(ctx, job.ID, domain.EventFailed, cause.Error())
	if putErr != nil {
		return nil, fmt.Errorf("%w (save bead: %w)", cause, putErr)
	}
	return &SubmitDirectOutput{Bead: bead}, cause
}

func (uc *SubmitDirect) record(ctx context.Context, jobID, typ, detail string) {
	ev := domain.Event{JobID: jobID, Type: typ, Detail: detail, CreatedAt: uc.clock.Now()}
	if err := uc.events.Append(ctx, ev); err != nil {
		uc.logger.Warn(jobID, "journal", "append event: "+err.Error())
	}
}

// callRemote bounds each remote call by the configured timeout.
func (uc *SubmitDirect) callRemote() domain.RemoteService {
	if uc.timeout <= 0 {
		return uc.remote
	}
	return timeoutRemote{RemoteService: uc.remote, timeout: uc.timeout}
}

type timeoutRemote struct {
	domain.RemoteService
	timeout time.Duration
}

func (r timeoutRemote) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.RemoteService.Submit(ctx, req)
}
