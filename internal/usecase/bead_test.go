package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beadIDs(beads []*domain.Bead) []string {
	ids := make([]string, 0, len(beads))
	for _, b := range beads {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestListBeads_Execute(t *testing.T) {
	// Setup
	beads := testutil.NewMockBeadStore()
	putBead(t, beads, "job-1", "demo", domain.BeadCompleted)
	putBead(t, beads, "job-2", "other", domain.BeadRunning)
	putBead(t, beads, "job-3", "demo", domain.BeadFailed)
	putBead(t, beads, "job-4", "demo", domain.BeadRunning)
	uc := NewListBeads(beads)

	tests := []struct {
		name string
		in   ListBeadsInput
		want []string
	}{
		{"all", ListBeadsInput{}, []string{"job-1", "job-2", "job-3", "job-4"}},
		{"by rig", ListBeadsInput{Rig: "demo"}, []string{"job-1", "job-3", "job-4"}},
		{"by status", ListBeadsInput{Statuses: []domain.BeadStatus{domain.BeadRunning}}, []string{"job-2", "job-4"}},
		{"newest two", ListBeadsInput{Limit: 2}, []string{"job-3", "job-4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := uc.Execute(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, beadIDs(out.Beads))
		})
	}
}

func TestListBeads_Execute_InvalidStatus(t *testing.T) {
	uc := NewListBeads(testutil.NewMockBeadStore())

	_, err := uc.Execute(context.Background(), ListBeadsInput{Statuses: []domain.BeadStatus{"done"}})

	assert.Error(t, err)
}

func TestShowBead_Execute(t *testing.T) {
	// Setup
	beads := testutil.NewMockBeadStore()
	putBead(t, beads, "job-1", "demo", domain.BeadRunning)
	events := &testutil.MockEventLog{}
	ctx := context.Background()
	require.NoError(t, events.Append(ctx, domain.Event{JobID: "job-1", Type: domain.EventQueued}))
	require.NoError(t, events.Append(ctx, domain.Event{JobID: "job-2", Type: domain.EventQueued}))
	require.NoError(t, events.Append(ctx, domain.Event{JobID: "job-1", Type: domain.EventRunning}))
	uc := NewShowBead(beads, events)

	// Execute
	out, err := uc.Execute(ctx, ShowBeadInput{ID: "job-1", WithEvents: true})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.BeadRunning, out.Bead.Status)
	require.Len(t, out.Events, 2)
	assert.Equal(t, domain.EventRunning, out.Events[0].Type)
}

func TestShowBead_Execute_NotFound(t *testing.T) {
	uc := NewShowBead(testutil.NewMockBeadStore(), &testutil.MockEventLog{})

	_, err := uc.Execute(context.Background(), ShowBeadInput{ID: "job-x"})

	assert.ErrorIs(t, err, domain.ErrBeadNotFound)
}

func TestPruneBeads_Execute(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	seed := func() *testutil.MockBeadStore {
		store := testutil.NewMockBeadStore()
		store.Beads["old-done"] = &domain.Bead{ID: "old-done", Status: domain.BeadCompleted, CompletedAt: &old}
		store.Beads["old-failed"] = &domain.Bead{ID: "old-failed", Status: domain.BeadFailed, CompletedAt: &old}
		store.Beads["new-done"] = &domain.Bead{ID: "new-done", Status: domain.BeadCompleted, CompletedAt: &recent}
		store.Beads["running"] = &domain.Bead{ID: "running", Status: domain.BeadRunning}
		return store
	}

	t.Run("older than", func(t *testing.T) {
		store := seed()
		uc := NewPruneBeads(store, &testutil.MockClock{NowTime: now})

		out, err := uc.Execute(context.Background(), PruneBeadsInput{OlderThan: 24 * time.Hour})

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old-done", "old-failed"}, beadIDs(out.Pruned))
		assert.Contains(t, store.Beads, "new-done")
		assert.Contains(t, store.Beads, "running")
	})

	t.Run("by status", func(t *testing.T) {
		store := seed()
		uc := NewPruneBeads(store, &testutil.MockClock{NowTime: now})

		out, err := uc.Execute(context.Background(), PruneBeadsInput{Statuses: []domain.BeadStatus{domain.BeadCompleted}})

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old-done", "new-done"}, beadIDs(out.Pruned))
		assert.Contains(t, store.Beads, "old-failed")
	})

	t.Run("dry run", func(t *testing.T) {
		store := seed()
		uc := NewPruneBeads(store, &testutil.MockClock{NowTime: now})

		out, err := uc.Execute(context.Background(), PruneBeadsInput{DryRun: true})

		require.NoError(t, err)
		assert.True(t, out.DryRun)
		assert.Len(t, out.Pruned, 3)
		assert.Len(t, store.Beads, 4)
	})

	t.Run("live status rejected", func(t *testing.T) {
		uc := NewPruneBeads(seed(), &testutil.MockClock{NowTime: now})

		_, err := uc.Execute(context.Background(), PruneBeadsInput{Statuses: []domain.BeadStatus{domain.BeadRunning}})

		assert.Error(t, err)
	})
}

func TestShowEvents_Execute(t *testing.T) {
	// Setup
	events := &testutil.MockEventLog{}
	ctx := context.Background()
	for i := 0; i < DefaultEventLimit+5; i++ {
		require.NoError(t, events.Append(ctx, domain.Event{JobID: "job-1", Type: domain.EventStep}))
	}
	require.NoError(t, events.Append(ctx, domain.Event{JobID: "job-2", Type: domain.EventFailed}))
	uc := NewShowEvents(events)

	// Execute
	all, err := uc.Execute(ctx, ShowEventsInput{})
	require.NoError(t, err)
	failed, err := uc.Execute(ctx, ShowEventsInput{Type: domain.EventFailed})
	require.NoError(t, err)
	one, err := uc.Execute(ctx, ShowEventsInput{JobID: "job-1", Limit: 3})
	require.NoError(t, err)

	// Assert
	assert.Len(t, all.Events, DefaultEventLimit)
	assert.Equal(t, "job-2", all.Events[0].JobID)
	require.Len(t, failed.Events, 1)
	assert.Equal(t, "job-2", failed.Events[0].JobID)
	assert.Len(t, one.Events, 3)
}
