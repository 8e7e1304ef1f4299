package mayor

import (
	"context"
	"fmt"
	"sort"

	"github.com/runoshun/gastown/internal/domain"
)

// recoverJobs applies the recovery policy to beads left non-terminal by a
// previous run.
func (m *Mayor) recoverJobs() error {
	var leftover []*domain.Bead
	filter := domain.BeadFilter{Statuses: []domain.BeadStatus{domain.BeadQueued, domain.BeadRunning}}
	for b, err := range m.beads.List(filter) {
		if err != nil {
			return fmt.Errorf("read beads: %w", err)
		}
		leftover = append(leftover, b)
	}
	sort.SliceStable(leftover, func(i, j int) bool {
		return leftover[i].CreatedAt.Before(leftover[j].CreatedAt)
	})

	for _, b := range leftover {
		switch {
		case m.cfg.Recovery == domain.RecoveryMarkFailed:
			m.failLeftover(b, domain.ErrOrphanedByRestart)
		case b.Status == domain.BeadQueued:
			m.requeue(b)
		case b.Handle == "":
			// Never accepted remotely, or the handle was lost with the process
			m.failLeftover(b, fmt.Errorf("%w: no remote handle recorded", domain.ErrOrphanedByRestart))
		default:
			m.reattach(b)
		}
	}
	if len(leftover) > 0 {
		m.logger.Info("", catMayor, fmt.Sprintf("recovered %d job(s) with policy %s", len(leftover), m.cfg.Recovery))
	}
	return nil
}

func (m *Mayor) failLeftover(b *domain.Bead, cause error) {
	now := m.clock.Now()
	b.Status = domain.BeadFailed
	b.Error = cause.Error()
	b.UpdatedAt = now
	b.CompletedAt = &now
	if err := m.beads.Put(b); err != nil {
		m.logger.Error(b.ID, catJob, "bead write failed: "+err.Error())
		return
	}
	m.record(b.ID, domain.EventFailed, b.Error)
	m.logger.Warn(b.ID, catJob, "marked failed after restart")
}

// jobFromBead rebuilds the parts of a job a bead records.
func (m *Mayor) jobFromBead(b *domain.Bead) *domain.Job {
	return &domain.Job{
		ID:         b.ID,
		Rig:        b.Rig,
		Task:       b.Task,
		Branch:     b.BranchName,
		Handle:     b.Handle,
		ConvoyID:   b.ConvoyID,
		DiffRef:    b.DiffRef,
		Step:       b.Summary,
		RetryCount: b.RetryCount,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
		State:      domain.JobQueued,
	}
}

func (m *Mayor) requeue(b *domain.Bead) {
	e := &entry{job: m.jobFromBead(b)}
	m.track(e)
	m.queue = append(m.queue, b.ID)
	m.record(b.ID, domain.EventReattached, "queued")
}

// reattach resumes polling a job the remote service already accepted.
func (m *Mayor) reattach(b *domain.Bead) {
	job := m.jobFromBead(b)
	job.State = domain.JobRunning
	job.NextAttempt = m.clock.Now()

	e := &entry{job: job}
	if rig, err := m.rigs.Resolve(b.Rig); err == nil {
		e.rig = rig
	} else {
		m.logger.Warn(b.ID, catJob, "rig not found on reattach: "+err.Error())
	}
	if b.HookPath != "" {
		job.Hook = &domain.Hook{
			Path:       b.HookPath,
			JobID:      b.ID,
			Rig:        b.Rig,
			Branch:     b.BranchName,
			BaseCommit: b.BaseCommit,
		}
		if e.rig != nil {
			job.Hook.RepoPath = e.rig.Path
		}
	}
	e.ctx, e.cancel = context.WithCancel(m.ctx)
	m.track(e)
	m.active++
	m.record(b.ID, domain.EventReattached, b.Handle)
	m.logger.Info(b.ID, catJob, "reattached to "+b.Handle)
}

// reconcileHooks reports hooks on disk that no non-terminal job owns.
// Orphans are left in place for the operator.
func (m *Mayor) reconcileHooks() {
	infos, err := m.hooks.List(m.ctx)
	if err != nil {
		m.logger.Warn("", catMayor, "list hooks: "+err.Error())
		return
	}
	for _, info := range domain.Orphans(infos, m.liveJobs()) {
		m.logger.Warn(info.JobID, catMayor, "orphaned hook at "+info.Path)
		m.record(info.JobID, domain.EventOrphanHook, info.Path)
	}
}

func (m *Mayor) liveJobs() map[string]bool {
	live := make(map[string]bool, len(m.jobs))
	for id, e := range m.jobs {
		if !e.job.IsTerminal() {
			live[id] = true
		}
	}
	return live
}
