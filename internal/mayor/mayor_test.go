package mayor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/ratelimit"
	"github.com/runoshun/gastown/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type harness struct {
	m       *Mayor
	remote  *testutil.FakeRemote
	hooks   *testutil.MockHookManager
	beads   *testutil.MockBeadStore
	store   domain.BeadStore // defaults to beads
	convoys *testutil.MockConvoyRepository
	events  *testutil.MockEventLog
	rigs    *testutil.MockRigRegistry
	cfg     Config
	policy  ratelimit.Policy
}

func newHarness() *harness {
	beads := testutil.NewMockBeadStore()
	return &harness{
		remote:  testutil.NewFakeRemote(),
		hooks:   testutil.NewMockHookManager("/ws"),
		beads:   beads,
		store:   beads,
		convoys: testutil.NewMockConvoyRepository(),
		events:  &testutil.MockEventLog{},
		rigs:    testutil.NewMockRigRegistry(&domain.Rig{Name: "demo", Path: "/repos/demo", DefaultBranch: "main"}),
		cfg: Config{
			Keep:          domain.KeepNever,
			Recovery:      domain.RecoveryReattach,
			PollInterval:  5 * time.Millisecond,
			CallTimeout:   time.Second,
			MaxConcurrent: 4,
			MaxPollErrors: 3,
		},
		policy: ratelimit.Policy{Mode: domain.BackoffFixed, Base: 5 * time.Millisecond, Max: time.Second, MaxAttempts: 3},
	}
}

// start runs the mayor until the test ends.
func (h *harness) start(t *testing.T) *Mayor {
	t.Helper()
	h.m = New(Deps{
		Rigs:    h.rigs,
		Hooks:   h.hooks,
		Beads:   h.store,
		Convoys: h.convoys,
		Remote:  h.remote,
		Events:  h.events,
		Limiter: ratelimit.New(h.policy),
	}, h.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.m.Done():
		case <-time.After(waitFor):
			t.Error("mayor did not stop")
		}
	})
	return h.m
}

func waitState(t *testing.T, m *Mayor, jobID string, state domain.JobState) domain.Job {
	t.Helper()
	var job domain.Job
	require.Eventually(t, func() bool {
		j, err := m.Status(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.State == state
	}, waitFor, 2*time.Millisecond, "job %s never reached %s", jobID, state)
	return job
}

func running(step string) testutil.PollResult {
	return testutil.PollResult{Status: domain.PollStatus{State: domain.RemoteRunning, Step: step}}
}

func TestMayor_CompletedJobRecordsDiff(t *testing.T) {
	h := newHarness()
	h.remote.Script(testutil.HandleFor("job-a"), testutil.PollResult{
		Status: domain.PollStatus{State: domain.RemoteCompleted, DiffRef: "abc123"},
	})
	m := h.start(t)

	id, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-a", Rig: "demo", Task: "Fix bug"})
	require.NoError(t, err)
	assert.Equal(t, "job-a", id)

	waitState(t, m, id, domain.JobCompleted)

	require.Len(t, h.beads.Beads, 1)
	bead, err := h.beads.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.BeadCompleted, bead.Status)
	assert.Equal(t, "abc123", bead.DiffRef)
	assert.Equal(t, "polecat/fix-bug-a", bead.BranchName)
	assert.NotNil(t, bead.CompletedAt)
	assert.Zero(t, h.hooks.ActiveCount(), "hook removed")
	assert.False(t, h.hooks.WasKept(id))

	assert.Equal(t, []string{
		domain.EventQueued, domain.EventSubmitting, domain.EventRunning, domain.EventCompleted,
	}, h.events.Types(id))

	calls := h.remote.SubmitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Fix bug", calls[0].Task)
	assert.Equal(t, "/repos/demo", calls[0].RepoPath)
	assert.Equal(t, domain.HookPath("/ws", "demo", id), calls[0].HookPath)
}

func TestMayor_SubmitThrottledThenAccepted(t *testing.T) {
	h := newHarness()
	var calls atomic.Int32
	h.remote.SubmitFunc = func(context.Context, domain.SubmitRequest) (string, error) {
		if calls.Add(1) <= 3 {
			return "", &domain.RemoteError{Status: domain.RemoteRateLimited, Message: "slow down"}
		}
		return "remote-b", nil
	}
	h.remote.Script("remote-b", running("working"))
	m := h.start(t)

	id, err := m.Spawn(context.Background(), domain.SpawnRequest{Rig: "demo", Task: "Add feature"})
	require.NoError(t, err)

	job := waitState(t, m, id, domain.JobRunning)
	assert.Equal(t, 3, job.RetryCount)
	assert.Equal(t, "remote-b", job.Handle)
	assert.False(t, job.RateLimited)

	assert.Len(t, h.remote.SubmitCalls(), 4)
	assert.Equal(t, 1, h.remote.MaxActive(), "exactly one submission accepted")
	assert.Equal(t, 1, h.hooks.Acquired, "hook acquired once")
	assert.Contains(t, h.events.Types(id), domain.EventRateLimited)
	assert.Equal(t, domain.BeadRunning, h.beads.Status(id))
}

func TestMayor_SubmitRetriesExhausted(t *testing.T) {
	h := newHarness()
	h.remote.SubmitFunc = func(context.Context, domain.SubmitRequest) (string, error) {
		return "", &domain.RemoteError{Status: domain.RemoteRateLimited}
	}
	m := h.start(t)

	id, err := m.Spawn(context.Background(), domain.SpawnRequest{Rig: "demo", Task: "Refactor"})
	require.NoError(t, err)

	job := waitState(t, m, id, domain.JobFailed)
	assert.ErrorIs(t, job.LastError, domain.ErrRetryExhausted)
	assert.Equal(t, 4, job.RetryCount)
	assert.Len(t, h.remote.SubmitCalls(), 4)

	bead, err := h.beads.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.BeadFailed, bead.Status)
	assert.Contains(t, bead.Error, "retries exhausted")
	assert.Zero(t, h.hooks.ActiveCount())
}

func TestMayor_SubmitFailureNotRetried(t *testing.T) {
	h := newHarness()
	h.remote.SubmitFunc = func(context.Context, domain.SubmitRequest) (string, error) {
		return "", errors.New("429 too many requests")
	}
	m := h.start(t)

	id, err := m.Spawn(context.Background(), domain.SpawnRequest{Rig: "demo", Task: "Fix"})
	require.NoError(t, err)

	job := waitState(t, m, id, domain.JobFailed)
	assert.NotErrorIs(t, job.LastError, domain.ErrRetryExhausted)
	assert.Zero(t, job.RetryCount)
	assert.Len(t, h.remote.SubmitCalls(), 1)
}

// countingStore records how many beads of a convoy are non-terminal at once.
type countingStore struct {
	*testutil.MockBeadStore
	live map[string]bool
	peak int
	mu   sync.Mutex
}

func (c *countingStore) Put(b *domain.Bead) error {
	if err := c.MockBeadStore.Put(b); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.ConvoyID == "" {
		return nil
	}
	if b.Status.IsTerminal() {
		delete(c.live, b.ID)
	} else {
		c.live[b.ID] = true
	}
	c.peak = max(c.peak, len(c.live))
	return nil
}

func (c *countingStore) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

func TestMayor_ConvoyDispatchBoundsInFlight(t *testing.T) {
	h := newHarness()
	h.cfg.MaxConcurrent = 2
	counting := &countingStore{MockBeadStore: h.beads, live: make(map[string]bool)}
	h.store = counting

	tasks := make([]domain.ConvoyTask, 10)
	for i := range tasks {
		tasks[i] = domain.ConvoyTask{Description: fmt.Sprintf("task %d", i)}
	}
	require.NoError(t, h.convoys.Save(&domain.Convoy{ID: "convoy-1", Name: "batch", Rig: "demo", Tasks: tasks}))

	// Each job runs for two polls before completing
	var mu sync.Mutex
	polls := make(map[string]int)
	h.remote.PollFunc = func(_ context.Context, handle string) (domain.PollStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		polls[handle]++
		if polls[handle] < 3 {
			return domain.PollStatus{State: domain.RemoteRunning}, nil
		}
		return domain.PollStatus{State: domain.RemoteCompleted}, nil
	}
	m := h.start(t)

	require.NoError(t, m.DispatchConvoy(context.Background(), "convoy-1", 2))

	require.Eventually(t, func() bool {
		done := 0
		for b, err := range h.beads.List(domain.BeadFilter{ConvoyID: "convoy-1"}) {
			if err == nil && b.Status == domain.BeadCompleted {
				done++
			}
		}
		return done == 10
	}, waitFor, 5*time.Millisecond)

	assert.LessOrEqual(t, counting.Peak(), 2)
	assert.Equal(t, 2, counting.Peak())
	assert.LessOrEqual(t, h.remote.MaxActive(), 2)
	assert.LessOrEqual(t, h.hooks.MaxActive, 2)

	// Tasks are spawned in order
	jobs, err := m.Jobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 10)
	for i, job := range jobs {
		assert.Equal(t, i, job.ConvoyIndex)
		assert.Equal(t, fmt.Sprintf("task %d", i), job.Task)
	}

	convoy, err := h.convoys.Get("convoy-1")
	require.NoError(t, err)
	assert.Empty(t, convoy.Pending())
	for i, task := range convoy.Tasks {
		assert.Equal(t, jobs[i].ID, task.JobID)
	}
}

func TestMayor_ConvoyRespawnsTaskWithoutBead(t *testing.T) {
	h := newHarness()
	// Task 0 was assigned a job id but the job was never queued
	require.NoError(t, h.convoys.Save(&domain.Convoy{ID: "convoy-1", Name: "batch", Rig: "demo", Tasks: []domain.ConvoyTask{
		{Description: "interrupted", JobID: "job-cut"},
		{Description: "fresh"},
	}}))
	m := h.start(t)

	require.NoError(t, m.DispatchConvoy(context.Background(), "convoy-1", 2))

	waitState(t, m, "job-cut", domain.JobCompleted)
	require.Eventually(t, func() bool {
		convoy, err := h.convoys.Get("convoy-1")
		if err != nil || convoy.Tasks[1].JobID == "" {
			return false
		}
		b, err := h.beads.Get(convoy.Tasks[1].JobID)
		return err == nil && b.Status == domain.BeadCompleted
	}, waitFor, 5*time.Millisecond)

	convoy, err := h.convoys.Get("convoy-1")
	require.NoError(t, err)
	assert.Equal(t, "job-cut", convoy.Tasks[0].JobID, "same id reused")
	assert.Len(t, h.remote.SubmitCalls(), 2)

	bead, err := h.beads.Get("job-cut")
	require.NoError(t, err)
	assert.Equal(t, "interrupted", bead.Task)
	assert.Equal(t, "convoy-1", bead.ConvoyID)

	beads := map[string]*domain.Bead{}
	for b, err := range h.beads.List(domain.BeadFilter{ConvoyID: "convoy-1"}) {
		require.NoError(t, err)
		beads[b.ID] = b
	}
	assert.Equal(t, domain.ConvoyCompleted, domain.NewConvoyStatus(convoy, beads).State)
}

func TestMayor_ConvoyDoesNotRespawnFinishedTask(t *testing.T) {
	h := newHarness()
	seedBead(t, h.beads, domain.Bead{ID: "job-done", Status: domain.BeadCompleted, Rig: "demo", Task: "done", ConvoyID: "convoy-1"})
	require.NoError(t, h.convoys.Save(&domain.Convoy{ID: "convoy-1", Rig: "demo", Tasks: []domain.ConvoyTask{
		{Description: "done", JobID: "job-done"},
		{Description: "next"},
	}}))
	m := h.start(t)

	require.NoError(t, m.DispatchConvoy(context.Background(), "convoy-1", 2))

	require.Eventually(t, func() bool { return len(h.remote.SubmitCalls()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "next", h.remote.SubmitCalls()[0].Task)
	_, err := m.Status(context.Background(), "job-done")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMayor_CancelRunningFreesSlot(t *testing.T) {
	h := newHarness()
	h.cfg.MaxConcurrent = 1
	h.remote.Script(testutil.HandleFor("job-1"), running("thinking"))
	h.remote.Script(testutil.HandleFor("job-2"), running("thinking"))
	m := h.start(t)
	ctx := context.Background()

	_, err := m.Spawn(ctx, domain.SpawnRequest{JobID: "job-1", Rig: "demo", Task: "first"})
	require.NoError(t, err)
	waitState(t, m, "job-1", domain.JobRunning)

	_, err = m.Spawn(ctx, domain.SpawnRequest{JobID: "job-2", Rig: "demo", Task: "second"})
	require.NoError(t, err)
	job2, err := m.Status(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job2.State, "no free slot")

	require.NoError(t, m.Cancel(ctx, "job-1"))
	assert.Equal(t, domain.BeadCancelled, h.beads.Status("job-1"), "bead written before Cancel returns")
	assert.False(t, h.hooks.HasHook("job-1"), "hook released before Cancel returns")

	waitState(t, m, "job-2", domain.JobRunning)
	require.Eventually(t, func() bool {
		return len(h.remote.Cancelled()) == 1
	}, waitFor, 2*time.Millisecond)
	assert.Equal(t, []string{testutil.HandleFor("job-1")}, h.remote.Cancelled())

	err = m.Cancel(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrJobTerminal)
}

func TestMayor_ConcurrencyNeverExceedsLimit(t *testing.T) {
	h := newHarness()
	h.cfg.MaxConcurrent = 3
	var mu sync.Mutex
	polls := make(map[string]int)
	h.remote.PollFunc = func(_ context.Context, handle string) (domain.PollStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		polls[handle]++
		if polls[handle] < 4 {
			return domain.PollStatus{State: domain.RemoteRunning, Step: fmt.Sprintf("step %d", polls[handle])}, nil
		}
		return domain.PollStatus{State: domain.RemoteCompleted}, nil
	}
	m := h.start(t)

	ids := make([]string, 12)
	for i := range ids {
		id, err := m.Spawn(context.Background(), domain.SpawnRequest{Rig: "demo", Task: fmt.Sprintf("job %d", i)})
		require.NoError(t, err)
		ids[i] = id
	}
	for _, id := range ids {
		waitState(t, m, id, domain.JobCompleted)
	}

	assert.LessOrEqual(t, h.remote.MaxActive(), 3)
	assert.LessOrEqual(t, h.hooks.MaxActive, 3)
	assert.Zero(t, h.hooks.ActiveCount())
	for _, id := range ids {
		assert.Equal(t, domain.BeadCompleted, h.beads.Status(id))
	}
}

func TestMayor_PollThrottlingIsUnbounded(t *testing.T) {
	h := newHarness()
	throttled := testutil.PollResult{Status: domain.PollStatus{State: domain.RemoteRateLimited}}
	h.remote.Script(testutil.HandleFor("job-p"),
		throttled, throttled, throttled, throttled, throttled, throttled,
		testutil.PollResult{Status: domain.PollStatus{State: domain.RemoteCompleted}},
	)
	m := h.start(t)

	_, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-p", Rig: "demo", Task: "poll"})
	require.NoError(t, err)

	job := waitState(t, m, "job-p", domain.JobCompleted)
	assert.Zero(t, job.RetryCount, "poll throttling does not count as a submission retry")
	assert.Equal(t, 7, h.remote.PollCount(testutil.HandleFor("job-p")))
	assert.Contains(t, h.events.Types("job-p"), domain.EventRateLimited)
}

func TestMayor_RepeatedPollErrorsFail(t *testing.T) {
	h := newHarness()
	h.remote.PollFunc = func(context.Context, string) (domain.PollStatus, error) {
		return domain.PollStatus{}, errors.New("connection reset")
	}
	m := h.start(t)

	_, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-e", Rig: "demo", Task: "poll"})
	require.NoError(t, err)

	job := waitState(t, m, "job-e", domain.JobFailed)
	assert.ErrorIs(t, job.LastError, domain.ErrPollFailed)
	assert.Equal(t, 4, h.remote.PollCount(testutil.HandleFor("job-e")))
}

func TestMayor_PollErrorsResetOnSuccess(t *testing.T) {
	h := newHarness()
	boom := testutil.PollResult{Err: errors.New("timeout")}
	h.remote.Script(testutil.HandleFor("job-r"),
		boom, boom, boom, running("a"), boom, boom, boom,
		testutil.PollResult{Status: domain.PollStatus{State: domain.RemoteCompleted}},
	)
	m := h.start(t)

	_, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-r", Rig: "demo", Task: "flaky"})
	require.NoError(t, err)
	waitState(t, m, "job-r", domain.JobCompleted)
}

func TestMayor_RemoteFailureKeepsHookWhenConfigured(t *testing.T) {
	h := newHarness()
	h.cfg.Keep = domain.KeepFailed
	h.remote.Script(testutil.HandleFor("job-f"), testutil.PollResult{
		Status: domain.PollStatus{State: domain.RemoteFailed, Error: "tests failed"},
	})
	m := h.start(t)

	_, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-f", Rig: "demo", Task: "break"})
	require.NoError(t, err)

	job := waitState(t, m, "job-f", domain.JobFailed)
	assert.ErrorIs(t, job.LastError, domain.ErrRemoteFailed)
	assert.True(t, h.hooks.WasKept("job-f"))

	bead, err := h.beads.Get("job-f")
	require.NoError(t, err)
	assert.Contains(t, bead.Error, "tests failed")
}

func TestMayor_CompletionFallsBackToHookHead(t *testing.T) {
	h := newHarness()
	h.hooks.Diff = &domain.HookDiff{
		HeadCommit:   "deadbeef",
		Summary:      "Fix the parser",
		FilesChanged: []string{"parser.go"},
		Changed:      true,
	}
	m := h.start(t)

	_, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-d", Rig: "demo", Task: "parser"})
	require.NoError(t, err)
	waitState(t, m, "job-d", domain.JobCompleted)

	bead, err := h.beads.Get("job-d")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", bead.DiffRef)
	assert.Equal(t, "Fix the parser", bead.Summary)
	assert.Equal(t, []string{"parser.go"}, bead.FilesChanged)
}

func TestMayor_HookFailureFailsWithoutSubmit(t *testing.T) {
	h := newHarness()
	h.hooks.AcquireErr = fmt.Errorf("%w: branch exists", domain.ErrHookConflict)
	m := h.start(t)

	_, err := m.Spawn(context.Background(), domain.SpawnRequest{JobID: "job-h", Rig: "demo", Task: "x"})
	require.NoError(t, err)

	job := waitState(t, m, "job-h", domain.JobFailed)
	assert.ErrorIs(t, job.LastError, domain.ErrHookConflict)
	assert.Empty(t, h.remote.SubmitCalls())
	assert.Equal(t, domain.BeadFailed, h.beads.Status("job-h"))
}

func TestMayor_LateSubmitIsCancelledRemotely(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	entered := make(chan struct{})
	h.remote.SubmitFunc = func(_ context.Context, req domain.SubmitRequest) (string, error) {
		close(entered)
		<-release
		return "remote-late", nil
	}
	m := h.start(t)
	ctx := context.Background()

	_, err := m.Spawn(ctx, domain.SpawnRequest{JobID: "job-l", Rig: "demo", Task: "slow"})
	require.NoError(t, err)
	<-entered

	require.NoError(t, m.Cancel(ctx, "job-l"))
	assert.Equal(t, domain.BeadCancelled, h.beads.Status("job-l"))
	close(release)

	require.Eventually(t, func() bool {
		return len(h.remote.Cancelled()) == 1
	}, waitFor, 2*time.Millisecond)
	assert.Equal(t, []string{"remote-late"}, h.remote.Cancelled())

	job, err := m.Status(ctx, "job-l")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.State)
	assert.Empty(t, job.Handle)
}

func TestMayor_SpawnErrors(t *testing.T) {
	h := newHarness()
	h.remote.Script(testutil.HandleFor("job-x"), running(""))
	m := h.start(t)
	ctx := context.Background()

	_, err := m.Spawn(ctx, domain.SpawnRequest{Rig: "demo", Task: "  "})
	assert.ErrorIs(t, err, domain.ErrEmptyTask)

	_, err = m.Spawn(ctx, domain.SpawnRequest{Rig: "nope", Task: "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownRig)

	_, err = m.Spawn(ctx, domain.SpawnRequest{JobID: "job-x", Rig: "demo", Task: "x"})
	require.NoError(t, err)
	_, err = m.Spawn(ctx, domain.SpawnRequest{JobID: "job-x", Rig: "demo", Task: "x"})
	assert.ErrorIs(t, err, domain.ErrDuplicateJob)

	_, err = m.Status(ctx, "job-missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.ErrorIs(t, m.Cancel(ctx, "job-missing"), domain.ErrJobNotFound)
}

func TestMayor_DispatchErrors(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.convoys.Save(&domain.Convoy{ID: "convoy-empty", Rig: "demo"}))
	require.NoError(t, h.convoys.Save(&domain.Convoy{ID: "convoy-norig", Rig: "gone", Tasks: []domain.ConvoyTask{{Description: "x"}}}))
	m := h.start(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.DispatchConvoy(ctx, "convoy-missing", 1), domain.ErrConvoyNotFound)
	assert.ErrorIs(t, m.DispatchConvoy(ctx, "convoy-empty", 1), domain.ErrEmptyConvoy)
	assert.ErrorIs(t, m.DispatchConvoy(ctx, "convoy-empty", 0), domain.ErrInvalidCommand)
	assert.ErrorIs(t, m.DispatchConvoy(ctx, "convoy-norig", 1), domain.ErrUnknownRig)
}

func TestMayor_QuitLeavesJobsRunning(t *testing.T) {
	h := newHarness()
	h.remote.Script(testutil.HandleFor("job-q"), running("busy"))
	m := h.start(t)
	ctx := context.Background()

	_, err := m.Spawn(ctx, domain.SpawnRequest{JobID: "job-q", Rig: "demo", Task: "long"})
	require.NoError(t, err)
	waitState(t, m, "job-q", domain.JobRunning)

	require.NoError(t, m.Quit(ctx, false))
	select {
	case <-m.Done():
	case <-time.After(waitFor):
		t.Fatal("mayor did not stop")
	}

	bead, err := h.beads.Get("job-q")
	require.NoError(t, err)
	assert.Equal(t, domain.BeadRunning, bead.Status)
	assert.Equal(t, testutil.HandleFor("job-q"), bead.Handle)
	assert.Empty(t, h.remote.Cancelled())
	assert.True(t, h.hooks.HasHook("job-q"))

	_, err = m.Spawn(ctx, domain.SpawnRequest{Rig: "demo", Task: "late"})
	assert.ErrorIs(t, err, domain.ErrMayorStopped)
}

func TestMayor_DrainCancelsEverything(t *testing.T) {
	h := newHarness()
	h.cfg.MaxConcurrent = 1
	h.remote.Script(testutil.HandleFor("job-1"), running("busy"))
	m := h.start(t)
	ctx := context.Background()

	_, err := m.Spawn(ctx, domain.SpawnRequest{JobID: "job-1", Rig: "demo", Task: "one"})
	require.NoError(t, err)
	waitState(t, m, "job-1", domain.JobRunning)
	_, err = m.Spawn(ctx, domain.SpawnRequest{JobID: "job-2", Rig: "demo", Task: "two"})
	require.NoError(t, err)

	require.NoError(t, m.Drain(ctx))
	<-m.Done()

	assert.Equal(t, domain.BeadCancelled, h.beads.Status("job-1"))
	assert.Equal(t, domain.BeadCancelled, h.beads.Status("job-2"))
	assert.Zero(t, h.hooks.ActiveCount())
	assert.Equal(t, []string{testutil.HandleFor("job-1")}, h.remote.Cancelled())
}

func TestMayor_QuitRequeuesUnsubmittedJobs(t *testing.T) {
	h := newHarness()
	h.policy.Base = time.Hour
	h.remote.SubmitFunc = func(context.Context, domain.SubmitRequest) (string, error) {
		return "", &domain.RemoteError{Status: domain.RemoteRateLimited}
	}
	m := h.start(t)
	ctx := context.Background()

	_, err := m.Spawn(ctx, domain.SpawnRequest{JobID: "job-w", Rig: "demo", Task: "wait"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := m.Status(ctx, "job-w")
		return err == nil && j.RateLimited
	}, waitFor, 2*time.Millisecond)

	require.NoError(t, m.Quit(ctx, false))
	<-m.Done()

	bead, err := h.beads.Get("job-w")
	require.NoError(t, err)
	assert.Equal(t, domain.BeadQueued, bead.Status)
	assert.Empty(t, bead.HookPath)
	assert.Zero(t, h.hooks.ActiveCount())
}

func seedBead(t *testing.T, beads *testutil.MockBeadStore, b domain.Bead) {
	t.Helper()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	b.UpdatedAt = b.CreatedAt
	require.NoError(t, beads.Put(&b))
}

func TestMayor_RecoveryReattach(t *testing.T) {
	h := newHarness()
	seedBead(t, h.beads, domain.Bead{
		ID: "job-old", Rig: "demo", Task: "old", BranchName: "polecat/old-old",
		Status: domain.BeadRunning, Handle: "remote-old",
		HookPath: "/ws/hooks/demo/job-old", BaseCommit: "c0ffee",
	})
	seedBead(t, h.beads, domain.Bead{ID: "job-wait", Rig: "demo", Task: "waiting", BranchName: "polecat/waiting-wait", Status: domain.BeadQueued})
	seedBead(t, h.beads, domain.Bead{ID: "job-lost", Rig: "demo", Task: "lost", BranchName: "polecat/lost-lost", Status: domain.BeadRunning})
	seedBead(t, h.beads, domain.Bead{ID: "job-done", Rig: "demo", Task: "done", Status: domain.BeadCompleted})
	h.remote.Script("remote-old", testutil.PollResult{
		Status: domain.PollStatus{State: domain.RemoteCompleted, DiffRef: "https://example.com/pr/1"},
	})
	m := h.start(t)

	waitState(t, m, "job-old", domain.JobCompleted)
	waitState(t, m, "job-wait", domain.JobCompleted)

	old, err := h.beads.Get("job-old")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/pr/1", old.DiffRef)
	assert.Equal(t, "polecat/old-old", old.BranchName)

	lost, err := h.beads.Get("job-lost")
	require.NoError(t, err)
	assert.Equal(t, domain.BeadFailed, lost.Status)
	assert.Contains(t, lost.Error, "orphaned by mayor restart")

	assert.Equal(t, []string{"job-wait"}, h.remote.SubmittedJobs(), "only the queued job is submitted")
	assert.Contains(t, h.events.Types("job-old"), domain.EventReattached)

	_, err = m.Status(context.Background(), "job-done")
	assert.ErrorIs(t, err, domain.ErrJobNotFound, "terminal beads are not loaded")
}

func TestMayor_RecoveryMarkFailed(t *testing.T) {
	h := newHarness()
	h.cfg.Recovery = domain.RecoveryMarkFailed
	seedBead(t, h.beads, domain.Bead{ID: "job-old", Rig: "demo", Task: "old", Status: domain.BeadRunning, Handle: "remote-old"})
	seedBead(t, h.beads, domain.Bead{ID: "job-wait", Rig: "demo", Task: "waiting", Status: domain.BeadQueued})
	m := h.start(t)

	jobs, err := m.Jobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	for _, id := range []string{"job-old", "job-wait"} {
		b, err := h.beads.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.BeadFailed, b.Status)
		assert.Equal(t, domain.ErrOrphanedByRestart.Error(), b.Error)
		assert.NotNil(t, b.CompletedAt)
	}
	assert.Empty(t, h.remote.SubmitCalls())
	assert.Zero(t, h.remote.PollCount("remote-old"))
}

func TestMayor_ReportsOrphanedHooks(t *testing.T) {
	h := newHarness()
	h.hooks.Infos = []domain.HookInfo{
		{Path: "/ws/hooks/demo/job-gone", Rig: "demo", JobID: "job-gone", Branch: "polecat/gone-gone"},
		{Path: "/ws/hooks/demo/job-live", Rig: "demo", JobID: "job-live", Branch: "polecat/live-live"},
	}
	seedBead(t, h.beads, domain.Bead{ID: "job-live", Rig: "demo", Task: "live", Status: domain.BeadRunning, Handle: "remote-live", HookPath: "/ws/hooks/demo/job-live"})
	h.remote.Script("remote-live", running("busy"))
	m := h.start(t)

	// Status goes through the loop, so recovery has finished
	_, err := m.Status(context.Background(), "job-live")
	require.NoError(t, err)

	assert.Equal(t, []string{domain.EventOrphanHook}, h.events.Types("job-gone"))
	assert.NotContains(t, h.events.Types("job-live"), domain.EventOrphanHook)
}

func TestConfigFrom(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	cfg.MaxConcurrentAgents = 7
	cfg.Hooks.Keep = domain.KeepAlways

	got := ConfigFrom(cfg)
	assert.Equal(t, 7, got.MaxConcurrent)
	assert.Equal(t, domain.KeepAlways, got.Keep)
	assert.Equal(t, domain.DefaultPollInterval, got.PollInterval)
	assert.Equal(t, domain.RecoveryReattach, got.Recovery)
}
