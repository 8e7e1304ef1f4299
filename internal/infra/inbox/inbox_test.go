package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads and removes every pending command.
func drain(box *Inbox) ([]domain.OperatorCommand, error) {
	pending, err := box.pending()
	if err != nil {
		return nil, err
	}
	cmds := make([]domain.OperatorCommand, 0, len(pending))
	for _, p := range pending {
		if err := os.Remove(p.path); err != nil {
			return nil, err
		}
		cmds = append(cmds, p.cmd)
	}
	return cmds, nil
}

func TestInbox_SendDrain(t *testing.T) {
	ctx := context.Background()
	box := New(filepath.Join(t.TempDir(), "inbox"))

	first, err := box.Send(ctx, domain.OperatorCommand{ID: "0001", Kind: domain.CommandSpawn, Rig: "demo", Task: "fix"})
	require.NoError(t, err)
	_, err = box.Send(ctx, domain.OperatorCommand{ID: "0002", Kind: domain.CommandCancel, JobID: "job-1"})
	require.NoError(t, err)
	assert.False(t, first.CreatedAt.IsZero())

	cmds, err := drain(box)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "0001", cmds[0].ID)
	assert.Equal(t, "fix", cmds[0].Task)
	assert.Equal(t, domain.CommandCancel, cmds[1].Kind)

	// Drained commands are removed
	cmds, err = drain(box)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestInbox_GeneratedIDsSortInOrder(t *testing.T) {
	ctx := context.Background()
	box := New(t.TempDir())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		box.now = func() time.Time { return base.Add(time.Duration(i) * time.Millisecond) }
		_, err := box.Send(ctx, domain.OperatorCommand{Kind: domain.CommandCancel, JobID: "job-" + string(rune('a'+i))})
		require.NoError(t, err)
	}

	cmds, err := drain(box)
	require.NoError(t, err)
	require.Len(t, cmds, 5)
	for i, cmd := range cmds {
		assert.Equal(t, "job-"+string(rune('a'+i)), cmd.JobID)
	}
}

func TestInbox_SendRejectsInvalid(t *testing.T) {
	box := New(t.TempDir())
	_, err := box.Send(context.Background(), domain.OperatorCommand{Kind: domain.CommandSpawn})
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	entries, err := os.ReadDir(box.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInbox_MalformedFilesMoveToFailed(t *testing.T) {
	box := New(t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(box.Dir(), "0001.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(box.Dir(), "0002.json"), []byte(`{"kind":"launch"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(box.Dir(), ".tmp-0003"), []byte(`{}`), 0o600))
	_, err := box.Send(context.Background(), domain.OperatorCommand{ID: "0004", Kind: domain.CommandQuit})
	require.NoError(t, err)

	cmds, err := drain(box)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.CommandQuit, cmds[0].Kind)

	assert.FileExists(t, filepath.Join(box.Dir(), "failed", "0001.json"))
	assert.FileExists(t, filepath.Join(box.Dir(), "failed", "0002.json"))
	assert.FileExists(t, filepath.Join(box.Dir(), ".tmp-0003"), "in-flight temp files are left alone")
}

func TestInbox_PendingMissingDir(t *testing.T) {
	box := New(filepath.Join(t.TempDir(), "absent"))
	cmds, err := drain(box)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestInbox_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	box := New(t.TempDir())

	// Pending before the watch starts
	_, err := box.Send(ctx, domain.OperatorCommand{ID: "0001", Kind: domain.CommandCancel, JobID: "job-early"})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- box.Watch(ctx, 50*time.Millisecond, func(cmd domain.OperatorCommand) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, cmd.JobID)
			return nil
		})
	}()

	_, err = box.Send(ctx, domain.OperatorCommand{ID: "0002", Kind: domain.CommandCancel, JobID: "job-late"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"job-early", "job-late"}, got)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	// Accepted commands are removed
	pending, err := box.pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInbox_Watch_RejectedCommandMovesToFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	box := New(t.TempDir())
	_, err := box.Send(ctx, domain.OperatorCommand{ID: "0001", Kind: domain.CommandSpawn, Rig: "demo", Task: "late"})
	require.NoError(t, err)
	_, err = box.Send(ctx, domain.OperatorCommand{ID: "0002", Kind: domain.CommandCancel, JobID: "job-1"})
	require.NoError(t, err)

	var handled sync.WaitGroup
	handled.Add(2)
	done := make(chan error, 1)
	go func() {
		done <- box.Watch(ctx, 50*time.Millisecond, func(cmd domain.OperatorCommand) error {
			defer handled.Done()
			if cmd.Kind == domain.CommandSpawn {
				return domain.ErrMayorStopped
			}
			return nil
		})
	}()
	handled.Wait()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(box.FailedDir(), "0001.error"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.FileExists(t, filepath.Join(box.FailedDir(), "0001.json"))
	reason, err := os.ReadFile(filepath.Join(box.FailedDir(), "0001.error"))
	require.NoError(t, err)
	assert.Contains(t, string(reason), domain.ErrMayorStopped.Error())
	assert.NoFileExists(t, filepath.Join(box.FailedDir(), "0002.json"))

	pending, err := box.pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInbox_Watch_InterruptedCommandStaysPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	box := New(t.TempDir())
	_, err := box.Send(ctx, domain.OperatorCommand{ID: "0001", Kind: domain.CommandQuit})
	require.NoError(t, err)

	err = box.Watch(ctx, 50*time.Millisecond, func(domain.OperatorCommand) error {
		cancel()
		return context.Canceled
	})
	require.NoError(t, err)

	pending, err := box.pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.CommandQuit, pending[0].cmd.Kind)
	assert.NoDirExists(t, box.FailedDir())
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	box := New(t.TempDir())
	client := NewClient(box)

	id, err := client.Spawn(ctx, domain.SpawnRequest{Rig: "demo", Task: "fix bug", ContextFiles: []string{"a.go"}})
	require.NoError(t, err)
	assert.Regexp(t, `^job-[0-9a-f]{8}$`, id)

	_, err = client.Spawn(ctx, domain.SpawnRequest{Rig: "demo"})
	assert.ErrorIs(t, err, domain.ErrEmptyTask)

	require.NoError(t, client.Cancel(ctx, id))
	require.NoError(t, client.DispatchConvoy(ctx, "convoy-1", 2))
	require.NoError(t, client.Quit(ctx, true))

	cmds, err := drain(box)
	require.NoError(t, err)
	require.Len(t, cmds, 4)

	coord := &testutil.MockCoordinator{}
	for _, cmd := range cmds {
		require.NoError(t, domain.Deliver(ctx, coord, cmd))
	}

	require.Len(t, coord.Spawned, 1)
	assert.Equal(t, id, coord.Spawned[0].JobID)
	assert.Equal(t, []string{"a.go"}, coord.Spawned[0].ContextFiles)
	assert.Equal(t, []string{id}, coord.Cancelled)
	assert.Equal(t, 2, coord.Dispatched["convoy-1"])
	assert.True(t, coord.QuitCalled)
	assert.True(t, coord.Drained)
}
