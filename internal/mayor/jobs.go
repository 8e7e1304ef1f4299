package mayor

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/ratelimit"
)

type callKind int

const (
	callSubmit callKind = iota
	callPoll
	callCancel
)

// entry is the loop's bookkeeping for one job.
// Fields are ordered to minimize memory padding.
type entry struct {
	job        *domain.Job
	rig        *domain.Rig
	ctx        context.Context // Cancelled when the job terminates
	cancel     context.CancelFunc
	callCancel context.CancelFunc // Aborts the in-flight call, if any
	files      []string           // Files changed, recorded on completion
	callKind   callKind
	throttles  int // Consecutive throttled polls
	inflight   bool
}

// due reports whether the job waits for a submit or poll call.
func (e *entry) due() bool {
	return !e.inflight && e.job.State.HoldsSlot()
}

// result is what a call goroutine reports back to the loop.
// Fields are ordered to minimize memory padding.
type result struct {
	err    error
	jobID  string
	handle string
	status domain.PollStatus
	kind   callKind
}

// enqueue creates a queued job and records its bead.
func (m *Mayor) enqueue(req domain.SpawnRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if _, err := m.rigs.Resolve(req.Rig); err != nil {
		return "", err
	}

	id := req.JobID
	if id == "" {
		id = domain.NewJobID()
	}
	if _, ok := m.jobs[id]; ok {
		return "", fmt.Errorf("%w: %s", domain.ErrDuplicateJob, id)
	}
	if _, err := m.beads.Get(id); err == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrDuplicateJob, id)
	} else if !errors.Is(err, domain.ErrBeadNotFound) {
		return "", fmt.Errorf("check bead: %w", err)
	}

	job := domain.NewJob(id, req.Rig, req.Task, m.clock.Now())
	job.BaseRef = req.BaseRef
	job.ConvoyID = req.ConvoyID
	job.ConvoyIndex = req.ConvoyIndex
	job.ContextFiles = req.ContextFiles

	e := &entry{job: job}
	if err := m.putBead(e); err != nil {
		return "", fmt.Errorf("record job: %w", err)
	}
	m.track(e)
	m.queue = append(m.queue, id)
	m.record(id, domain.EventQueued, job.Task)
	m.logger.Info(id, catJob, fmt.Sprintf("queued on rig %s as %s", job.Rig, job.Branch))
	return id, nil
}

func (m *Mayor) track(e *entry) {
	m.jobs[e.job.ID] = e
	m.order = append(m.order, e.job.ID)
}

// service runs the non-blocking work of one loop iteration. Convoys are
// topped up, queued jobs are admitted into free slots and due calls are
// launched. Nothing new starts once the mayor is stopping.
func (m *Mayor) service() {
	if m.stopping {
		return
	}
	for id, run := range m.runs {
		if err := m.topUp(run); err != nil {
			m.logger.Error("", catConvoy, fmt.Sprintf("convoy %s stopped: %v", id, err))
			delete(m.runs, id)
		}
	}
	for m.active < m.cfg.MaxConcurrent && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		if e := m.jobs[id]; e != nil && e.job.State == domain.JobQueued {
			m.admit(e)
		}
	}

	now := m.clock.Now()
	for _, id := range m.order {
		e := m.jobs[id]
		if e.due() && !now.Before(e.job.NextAttempt) {
			m.launch(e)
		}
	}
}

// admit acquires a hook for a queued job and takes a slot.
// Hook failures are not retried.
func (m *Mayor) admit(e *entry) {
	job := e.job
	rig, err := m.rigs.Resolve(job.Rig)
	if err != nil {
		m.finish(e, domain.JobFailed, err)
		return
	}
	hook, err := m.hooks.Acquire(m.ctx, rig, job.ID, job.Branch, job.BaseRef)
	if err != nil {
		m.finish(e, domain.JobFailed, fmt.Errorf("acquire hook: %w", err))
		return
	}

	now := m.clock.Now()
	if err := job.TransitionTo(domain.JobSubmitting, now); err != nil {
		m.logger.Error(job.ID, catJob, err.Error())
		return
	}
	job.Hook = hook
	job.NextAttempt = now
	e.rig = rig
	e.ctx, e.cancel = context.WithCancel(m.ctx)
	m.active++

	if err := m.putBead(e); err != nil {
		m.logger.Warn(job.ID, catJob, "bead write failed: "+err.Error())
	}
	m.record(job.ID, domain.EventSubmitting, hook.Path)
	m.logger.Info(job.ID, catJob, "hook acquired at "+hook.Path)
}

// launch starts the call the job is waiting for.
func (m *Mayor) launch(e *entry) {
	job := e.job
	kind := callPoll
	if job.State == domain.JobSubmitting {
		kind = callSubmit
	}

	callCtx, cancel := context.WithTimeout(e.ctx, m.cfg.CallTimeout)
	e.inflight = true
	e.callKind = kind
	e.callCancel = cancel
	m.inflight++

	id := job.ID
	handle := job.Handle
	var req domain.SubmitRequest
	if kind == callSubmit {
		req = domain.SubmitRequest{
			JobID:        id,
			Task:         job.Task,
			Branch:       job.Branch,
			ContextFiles: job.ContextFiles,
		}
		if job.Hook != nil {
			req.HookPath = job.Hook.Path
		}
		if e.rig != nil {
			req.RepoPath = e.rig.Path
			req.RemoteURL = e.rig.RemoteURL
		}
	}

	go func() {
		defer cancel()
		r := result{jobID: id, kind: kind, handle: handle}
		if kind == callSubmit {
			r.handle, r.err = m.remote.Submit(callCtx, req)
		} else {
			r.status, r.err = m.remote.Poll(callCtx, handle)
		}
		m.post(r)
	}()
}

// remoteCancel asks the remote service to stop a job, without waiting.
func (m *Mayor) remoteCancel(jobID, handle string) {
	m.inflight++
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.CallTimeout)
		defer cancel()
		m.post(result{jobID: jobID, kind: callCancel, handle: handle, err: m.remote.Cancel(ctx, handle)})
	}()
}

func (m *Mayor) post(r result) {
	select {
	case m.results <- r:
	case <-m.done:
	}
}

// apply folds a call result into the job it belongs to.
func (m *Mayor) apply(r result) {
	m.inflight--
	e := m.jobs[r.jobID]
	if e == nil {
		return
	}

	if r.kind == callCancel {
		if r.err != nil {
			m.logger.Warn(r.jobID, catRemote, "remote cancel failed: "+r.err.Error())
		} else {
			m.logger.Info(r.jobID, catRemote, "remote job cancelled")
		}
		return
	}

	e.inflight = false
	e.callCancel = nil
	job := e.job
	if job.IsTerminal() {
		if r.kind == callSubmit && r.err == nil && r.handle != "" {
			m.logger.Info(job.ID, catRemote, "late submission accepted, cancelling "+r.handle)
			m.remoteCancel(job.ID, r.handle)
		}
		return
	}
	if m.stopping && r.kind == callPoll && errors.Is(r.err, context.Canceled) {
		return
	}

	if r.kind == callSubmit {
		m.applySubmit(e, r)
	} else {
		m.applyPoll(e, r)
	}
}

func (m *Mayor) applySubmit(e *entry, r result) {
	job := e.job
	now := m.clock.Now()

	if r.err == nil {
		if err := job.TransitionTo(domain.JobRunning, now); err != nil {
			m.logger.Error(job.ID, catJob, err.Error())
			return
		}
		job.Handle = r.handle
		job.NextAttempt = now.Add(m.cfg.PollInterval)
		if err := m.putBead(e); err != nil {
			m.logger.Warn(job.ID, catJob, "bead write failed: "+err.Error())
		}
		m.record(job.ID, domain.EventRunning, r.handle)
		m.logger.Info(job.ID, catRemote, "submitted as "+r.handle)
		return
	}

	if m.limiter.Classify(r.err) != ratelimit.Throttled {
		m.finish(e, domain.JobFailed, fmt.Errorf("submit: %w", r.err))
		return
	}

	job.RetryCount++
	if m.limiter.Exhausted(job.RetryCount) {
		m.finish(e, domain.JobFailed, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetryExhausted, job.RetryCount, r.err))
		return
	}
	delay := m.limiter.Delay(job.RetryCount)
	job.MarkRateLimited(now)
	job.NextAttempt = now.Add(delay)
	m.record(job.ID, domain.EventRateLimited, fmt.Sprintf("submit retry %d in %s", job.RetryCount, delay))
	m.logger.Warn(job.ID, catRemote, fmt.Sprintf("submission throttled, retry %d in %s", job.RetryCount, delay))
}

func (m *Mayor) applyPoll(e *entry, r result) {
	job := e.job
	now := m.clock.Now()

	if m.limiter.ClassifyPoll(r.status, r.err) == ratelimit.Throttled {
		e.throttles++
		delay := m.limiter.Delay(e.throttles)
		if !job.RateLimited {
			m.record(job.ID, domain.EventRateLimited, "poll")
		}
		job.MarkRateLimited(now)
		job.NextAttempt = now.Add(delay)
		m.logger.Warn(job.ID, catRemote, fmt.Sprintf("poll throttled, next poll in %s", delay))
		return
	}

	if r.err != nil {
		job.PollErrors++
		if job.PollErrors > m.cfg.MaxPollErrors {
			m.finish(e, domain.JobFailed, fmt.Errorf("%w: %w", domain.ErrPollFailed, r.err))
			return
		}
		job.NextAttempt = now.Add(m.cfg.PollInterval)
		m.logger.Warn(job.ID, catRemote, fmt.Sprintf("poll error %d/%d: %v", job.PollErrors, m.cfg.MaxPollErrors, r.err))
		return
	}

	e.throttles = 0
	job.PollErrors = 0
	job.RateLimited = false

	switch r.status.State {
	case domain.RemoteCompleted:
		m.complete(e, r.status)
	case domain.RemoteFailed:
		msg := r.status.Error
		if msg == "" {
			msg = r.status.Step
		}
		if r.status.Step != "" {
			job.Step = r.status.Step
		}
		m.finish(e, domain.JobFailed, fmt.Errorf("%w: %s", domain.ErrRemoteFailed, msg))
	default:
		if r.status.Step != "" && r.status.Step != job.Step {
			job.Step = r.status.Step
			job.UpdatedAt = now
			if err := m.putBead(e); err != nil {
				m.logger.Warn(job.ID, catJob, "bead write failed: "+err.Error())
			}
			m.record(job.ID, domain.EventStep, job.Step)
			m.logger.Debug(job.ID, catRemote, "step: "+job.Step)
		}
		job.NextAttempt = now.Add(m.cfg.PollInterval)
	}
}

// complete records what the job produced. A diff reference declared by the
// remote service wins over the hook's head commit.
func (m *Mayor) complete(e *entry, status domain.PollStatus) {
	job := e.job
	job.DiffRef = status.DiffRef
	if status.Step != "" {
		job.Step = status.Step
	}
	if job.Hook != nil {
		diff, err := m.hooks.Inspect(m.ctx, job.Hook)
		if err != nil {
			m.logger.Warn(job.ID, catJob, "inspect hook: "+err.Error())
		} else {
			e.files = diff.FilesChanged
			if job.DiffRef == "" && diff.Changed {
				job.DiffRef = diff.HeadCommit
			}
			if job.Step == "" {
				job.Step = diff.Summary
			}
		}
	}
	m.finish(e, domain.JobCompleted, nil)
}

// cancelJob cancels a non-terminal job synchronously.
func (m *Mayor) cancelJob(jobID string) error {
	e, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if e.job.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, jobID, e.job.State)
	}
	handle := e.job.Handle
	m.finish(e, domain.JobCancelled, nil)
	if handle != "" {
		m.remoteCancel(jobID, handle)
	}
	return nil
}

// finish moves a job to a terminal state. The bead is written first, then
// the hook is released, then the slot is freed. If the bead cannot be
// written the hook is kept so the work is not lost.
func (m *Mayor) finish(e *entry, state domain.JobState, cause error) {
	job := e.job
	held := job.State.HoldsSlot()
	if err := job.TransitionTo(state, m.clock.Now()); err != nil {
		m.logger.Error(job.ID, catJob, err.Error())
		return
	}
	job.LastError = cause

	keep := m.cfg.Keep.Keep(state)
	if err := m.putBead(e); err != nil {
		m.logger.Error(job.ID, catJob, "bead write failed, keeping hook: "+err.Error())
		keep = true
	}
	if job.Hook != nil {
		if err := m.hooks.Release(m.ctx, job.Hook, keep); err != nil {
			m.logger.Warn(job.ID, catJob, "release hook: "+err.Error())
		}
	}
	if held {
		m.active--
	}
	if run := m.runs[job.ConvoyID]; run != nil {
		delete(run.live, job.ID)
	}
	if e.callCancel != nil {
		e.callCancel()
	}
	if e.cancel != nil {
		e.cancel()
	}

	detail := job.ErrorText()
	if state == domain.JobCompleted {
		detail = job.DiffRef
	}
	m.record(job.ID, string(state), detail)
	if cause != nil {
		m.logger.Warn(job.ID, catJob, fmt.Sprintf("%s: %v", state, cause))
	} else {
		m.logger.Info(job.ID, catJob, string(state))
	}
	if c, ok := m.logger.(interface{ CloseJob(string) }); ok {
		c.CloseJob(job.ID)
	}
}

func (m *Mayor) putBead(e *entry) error {
	b := domain.NewBead(e.job)
	b.FilesChanged = e.files
	return m.beads.Put(b)
}

// record appends to the event journal when one is configured.
func (m *Mayor) record(jobID, typ, detail string) {
	if m.events == nil {
		return
	}
	err := m.events.Append(m.ctx, domain.Event{
		Type:      typ,
		JobID:     jobID,
		Detail:    detail,
		CreatedAt: m.clock.Now(),
	})
	if err != nil {
		m.logger.Warn(jobID, catMayor, "event journal: "+err.Error())
	}
}
