package mayor

import (
	"errors"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// convoyRun tracks a dispatched convoy.
type convoyRun struct {
	live  map[string]bool // non-terminal job ids of the convoy
	id    string
	limit int
}

// dispatch starts or resizes a convoy run. Jobs of the convoy that are
// already live count against the limit, so dispatching twice resumes
// rather than duplicates.
func (m *Mayor) dispatch(convoyID string, count int) error {
	if m.stopping {
		return domain.ErrMayorStopped
	}
	if count <= 0 {
		return fmt.Errorf("%w: dispatch count must be positive", domain.ErrInvalidCommand)
	}
	convoy, err := m.convoys.Get(convoyID)
	if err != nil {
		return err
	}
	if len(convoy.Tasks) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEmptyConvoy, convoyID)
	}
	if _, err := m.rigs.Resolve(convoy.Rig); err != nil {
		return err
	}

	run := m.runs[convoyID]
	if run == nil {
		run = &convoyRun{id: convoyID, live: make(map[string]bool)}
		m.runs[convoyID] = run
	}
	run.limit = count
	for _, t := range convoy.Tasks {
		if e := m.jobs[t.JobID]; e != nil && !e.job.IsTerminal() {
			run.live[t.JobID] = true
		}
	}

	pending, err := m.pendingTasks(convoy)
	if err != nil {
		return err
	}
	m.logger.Info("", catConvoy, fmt.Sprintf("dispatching convoy %s (%d pending, %d at a time)", convoyID, len(pending), count))
	if err := m.topUp(run); err != nil {
		delete(m.runs, convoyID)
		return err
	}
	return nil
}

// topUp spawns pending tasks in order until the run is at its limit.
// The job id is saved in the convoy before the job exists, so a task is
// never spawned twice.
func (m *Mayor) topUp(run *convoyRun) error {
	if len(run.live) >= run.limit {
		return nil
	}
	convoy, err := m.convoys.Get(run.id)
	if err != nil {
		return err
	}
	pending, err := m.pendingTasks(convoy)
	if err != nil {
		return err
	}

	spawned := 0
	for _, idx := range pending {
		if len(run.live) >= run.limit {
			break
		}
		id := convoy.Tasks[idx].JobID
		assigned := id == ""
		if assigned {
			id = domain.NewJobID()
			convoy.Tasks[idx].JobID = id
			if err := m.convoys.Save(convoy); err != nil {
				return fmt.Errorf("save convoy: %w", err)
			}
		}
		_, err := m.enqueue(domain.SpawnRequest{
			JobID:       id,
			Rig:         convoy.Rig,
			Task:        convoy.Tasks[idx].Description,
			ConvoyID:    convoy.ID,
			ConvoyIndex: idx,
		})
		if err != nil {
			if assigned {
				convoy.Tasks[idx].JobID = ""
				if saveErr := m.convoys.Save(convoy); saveErr != nil {
					m.logger.Warn("", catConvoy, "save convoy: "+saveErr.Error())
				}
			}
			return fmt.Errorf("spawn task %d: %w", idx, err)
		}
		run.live[id] = true
		spawned++
	}

	if len(run.live) == 0 && len(pending) == spawned {
		delete(m.runs, run.id)
		m.logger.Info("", catConvoy, "convoy "+run.id+" finished")
	}
	return nil
}

// pendingTasks returns the indexes of tasks still to spawn, in order.
// A task whose job id has neither a tracked job nor a bead was cut off
// between saving the convoy and queueing the job; it is spawned again
// under the same id.
func (m *Mayor) pendingTasks(convoy *domain.Convoy) ([]int, error) {
	var idx []int
	for i, t := range convoy.Tasks {
		if t.JobID == "" {
			idx = append(idx, i)
			continue
		}
		if _, ok := m.jobs[t.JobID]; ok {
			continue
		}
		_, err := m.beads.Get(t.JobID)
		switch {
		case errors.Is(err, domain.ErrBeadNotFound):
			idx = append(idx, i)
		case err != nil:
			return nil, fmt.Errorf("check bead %s: %w", t.JobID, err)
		}
	}
	return idx, nil
}
