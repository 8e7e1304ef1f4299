package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// ListHooksInput contains the parameters for listing hooks.
type ListHooksInput struct {
	OrphansOnly bool // Only hooks with no queued or running job
}

// HookEntry is a hook with its bead, if any.
type HookEntry struct {
	Bead   *domain.Bead // nil when the job has no bead
	Info   domain.HookInfo
	Orphan bool
}

// ListHooksOutput contains the hooks sorted by path.
type ListHooksOutput struct {
	Hooks []HookEntry
}

// ListHooks is the use case for listing hook directories.
type ListHooks struct {
	hooks domain.HookManager
	beads domain.BeadStore
}

// NewListHooks creates a new ListHooks use case.
func NewListHooks(hooks domain.HookManager, beads domain.BeadStore) *ListHooks {
	return &ListHooks{hooks: hooks, beads: beads}
}

// Execute lists hooks and marks the ones no live job owns.
func (uc *ListHooks) Execute(ctx context.Context, in ListHooksInput) (*ListHooksOutput, error) {
	entries, err := hookEntries(ctx, uc.hooks, uc.beads)
	if err != nil {
		return nil, err
	}
	out := &ListHooksOutput{Hooks: []HookEntry{}}
	for _, e := range entries {
		if in.OrphansOnly && !e.Orphan {
			continue
		}
		out.Hooks = append(out.Hooks, e)
	}
	return out, nil
}

func hookEntries(ctx context.Context, hooks domain.HookManager, beads domain.BeadStore) ([]HookEntry, error) {
	infos, err := hooks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}

	live := make(map[string]bool)
	byJob := make(map[string]*domain.Bead, len(infos))
	for _, info := range infos {
		b, err := beads.Get(info.JobID)
		if errors.Is(err, domain.ErrBeadNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get bead %s: %w", info.JobID, err)
		}
		byJob[info.JobID] = b
		if !b.Status.IsTerminal() {
			live[info.JobID] = true
		}
	}

	orphan := make(map[string]bool)
	for _, info := range domain.Orphans(infos, live) {
		orphan[info.Path] = true
	}

	entries := make([]HookEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, HookEntry{Info: info, Bead: byJob[info.JobID], Orphan: orphan[info.Path]})
	}
	return entries, nil
}
