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

func TestCreateConvoy_Execute(t *testing.T) {
	// Setup
	convoys := testutil.NewMockConvoyRepository()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	uc := NewCreateConvoy(convoys, testutil.NewMockRigRegistry(demoRig()), &testutil.MockClock{NowTime: now})

	// Execute
	out, err := uc.Execute(context.Background(), CreateConvoyInput{
		Name:  "cleanup",
		Rig:   "demo",
		Tasks: []string{"fix lint", "  bump deps  "},
	})

	// Assert
	require.NoError(t, err)
	assert.Contains(t, out.Convoy.ID, "convoy-")
	assert.Equal(t, now, out.Convoy.CreatedAt)
	assert.Equal(t, []domain.ConvoyTask{{Description: "fix lint"}, {Description: "bump deps"}}, out.Convoy.Tasks)

	saved, err := convoys.Get(out.Convoy.ID)
	require.NoError(t, err)
	assert.Equal(t, "cleanup", saved.Name)
}

func TestCreateConvoy_Execute_Errors(t *testing.T) {
	uc := NewCreateConvoy(testutil.NewMockConvoyRepository(), testutil.NewMockRigRegistry(demoRig()), &testutil.MockClock{})
	ctx := context.Background()

	_, err := uc.Execute(ctx, CreateConvoyInput{Name: "c", Rig: "nope", Tasks: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrUnknownRig)

	_, err = uc.Execute(ctx, CreateConvoyInput{Name: "c", Rig: "demo"})
	assert.ErrorIs(t, err, domain.ErrEmptyConvoy)

	_, err = uc.Execute(ctx, CreateConvoyInput{Name: "c", Rig: "demo", Tasks: []string{"a", " "}})
	assert.ErrorIs(t, err, domain.ErrEmptyTask)

	_, err = uc.Execute(ctx, CreateConvoyInput{Rig: "demo", Tasks: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)
}

func seedConvoy(t *testing.T, convoys *testutil.MockConvoyRepository, id string, jobIDs ...string) {
	t.Helper()
	c := &domain.Convoy{ID: id, Name: id, Rig: "demo"}
	for _, j := range jobIDs {
		c.Tasks = append(c.Tasks, domain.ConvoyTask{Description: "task", JobID: j})
	}
	require.NoError(t, convoys.Save(c))
}

func TestConvoyStatus_Execute(t *testing.T) {
	// Setup
	convoys := testutil.NewMockConvoyRepository()
	seedConvoy(t, convoys, "convoy-1", "job-1", "job-2", "")
	beads := testutil.NewMockBeadStore()
	putBead(t, beads, "job-1", "demo", domain.BeadCompleted)
	putBead(t, beads, "job-2", "demo", domain.BeadRunning)
	uc := NewConvoyStatus(convoys, beads)

	// Execute
	out, err := uc.Execute(context.Background(), ConvoyStatusInput{ID: "convoy-1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.ConvoyRunning, out.Status.State)
	assert.Equal(t, 3, out.Status.Total)
	assert.Equal(t, 1, out.Status.Counts[domain.BeadCompleted])
	assert.Equal(t, 1, out.Status.Counts[domain.BeadQueued])
	assert.Len(t, out.Beads, 2)
}

func TestConvoyStatus_Execute_NotFound(t *testing.T) {
	uc := NewConvoyStatus(testutil.NewMockConvoyRepository(), testutil.NewMockBeadStore())

	_, err := uc.Execute(context.Background(), ConvoyStatusInput{ID: "convoy-x"})

	assert.ErrorIs(t, err, domain.ErrConvoyNotFound)
}

func TestListConvoys_Execute(t *testing.T) {
	// Setup
	convoys := testutil.NewMockConvoyRepository()
	seedConvoy(t, convoys, "convoy-1", "job-1")
	seedConvoy(t, convoys, "convoy-2", "")
	beads := testutil.NewMockBeadStore()
	putBead(t, beads, "job-1", "demo", domain.BeadCompleted)
	uc := NewListConvoys(convoys, beads)

	// Execute
	out, err := uc.Execute(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, out.Convoys, 2)
	states := map[string]domain.ConvoyState{}
	for _, st := range out.Convoys {
		states[st.Convoy.ID] = st.State
	}
	assert.Equal(t, domain.ConvoyCompleted, states["convoy-1"])
	assert.Equal(t, domain.ConvoyPending, states["convoy-2"])
}

func TestDispatchConvoy_Execute(t *testing.T) {
	// Setup
	convoys := testutil.NewMockConvoyRepository()
	seedConvoy(t, convoys, "convoy-1", "job-1", "", "")
	coord := &testutil.MockCoordinator{}
	uc := NewDispatchConvoy(convoys, coord)

	// Execute
	out, err := uc.Execute(context.Background(), DispatchConvoyInput{ID: "convoy-1", Count: 2})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pending)
	assert.Equal(t, map[string]int{"convoy-1": 2}, coord.Dispatched)
}

func TestDispatchConvoy_Execute_Errors(t *testing.T) {
	convoys := testutil.NewMockConvoyRepository()
	seedConvoy(t, convoys, "empty")
	coord := &testutil.MockCoordinator{}
	uc := NewDispatchConvoy(convoys, coord)
	ctx := context.Background()

	_, err := uc.Execute(ctx, DispatchConvoyInput{ID: "empty", Count: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	_, err = uc.Execute(ctx, DispatchConvoyInput{ID: "empty", Count: 1})
	assert.ErrorIs(t, err, domain.ErrEmptyConvoy)

	_, err = uc.Execute(ctx, DispatchConvoyInput{ID: "missing", Count: 1})
	assert.ErrorIs(t, err, domain.ErrConvoyNotFound)

	assert.Empty(t, coord.Dispatched)
}
