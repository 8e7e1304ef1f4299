package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// HookDiscarder removes hook directories found by HookManager.List.
type HookDiscarder interface {
	Discard(ctx context.Context, info domain.HookInfo, repoPath string) error
}

// PruneHooksInput contains the parameters for pruning hooks.
type PruneHooksInput struct {
	Force bool // Remove the orphans; without it they are only reported
}

// PruneHooksOutput reports the orphaned hooks.
type PruneHooksOutput struct {
	Failed  map[string]error // by hook path
	Orphans []domain.HookInfo
	Removed int
}

// PruneHooks is the use case for cleaning up orphaned hooks.
type PruneHooks struct {
	hooks     domain.HookManager
	discarder HookDiscarder
	beads     domain.BeadStore
	rigs      domain.RigRegistry
}

// NewPruneHooks creates a new PruneHooks use case.
func NewPruneHooks(hooks domain.HookManager, discarder HookDiscarder, beads domain.BeadStore, rigs domain.RigRegistry) *PruneHooks {
	return &PruneHooks{hooks: hooks, discarder: discarder, beads: beads, rigs: rigs}
}

// Execute finds hooks no queued or running job owns and, with Force,
// removes them. A failure on one hook does not stop the others.
func (uc *PruneHooks) Execute(ctx context.Context, in PruneHooksInput) (*PruneHooksOutput, error) {
	entries, err := hookEntries(ctx, uc.hooks, uc.beads)
	if err != nil {
		return nil, err
	}

	out := &PruneHooksOutput{Failed: make(map[string]error)}
	for _, e := range entries {
		if e.Orphan {
			out.Orphans = append(out.Orphans, e.Info)
		}
	}
	if !in.Force {
		return out, nil
	}

	for _, info := range out.Orphans {
		var repoPath string
		if rig, err := uc.rigs.Resolve(info.Rig); err == nil {
			repoPath = rig.Path
		}
		if err := uc.discarder.Discard(ctx, info, repoPath); err != nil {
			out.Failed[info.Path] = fmt.Errorf("discard hook: %w", err)
			continue
		}
		out.Removed++
	}
	return out, nil
}
