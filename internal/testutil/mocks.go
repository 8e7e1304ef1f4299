// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// FakeRemote is a scriptable test double for domain.RemoteService.
// Without a func set, Submit returns "remote-<job id>" and Poll reports
// COMPLETED. All methods are safe for concurrent use.
// Fields are ordered to minimize memory padding.
type FakeRemote struct {
	SubmitFunc func(ctx context.Context, req domain.SubmitRequest) (string, error)
	PollFunc   func(ctx context.Context, handle string) (domain.PollStatus, error)
	CancelFunc func(ctx context.Context, handle string) error

	scripts   map[string][]PollResult
	polls     map[string]int
	active    map[string]bool
	submits   []domain.SubmitRequest
	cancels   []string
	maxActive int
	mu        sync.Mutex
}

// PollResult is one scripted poll response.
type PollResult struct {
	Err    error
	Status domain.PollStatus
}

// NewFakeRemote creates a FakeRemote with initialized maps.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		scripts: make(map[string][]PollResult),
		polls:   make(map[string]int),
		active:  make(map[string]bool),
	}
}

// Ensure FakeRemote implements domain.RemoteService.
var _ domain.RemoteService = (*FakeRemote)(nil)

// HandleFor returns the handle the default Submit assigns to a job.
func HandleFor(jobID string) string {
	return "remote-" + jobID
}

// Script sets the poll responses for a handle. Responses are consumed in
// order and the last one repeats.
func (f *FakeRemote) Script(handle string, results ...PollResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[handle] = results
}

// Submit records the request and returns a handle.
func (f *FakeRemote) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	fn := f.SubmitFunc
	f.mu.Unlock()

	handle := HandleFor(req.JobID)
	if fn != nil {
		h, err := fn(ctx, req)
		if err != nil {
			return "", err
		}
		handle = h
	}

	f.mu.Lock()
	f.active[handle] = true
	f.maxActive = max(f.maxActive, f.countActive())
	f.mu.Unlock()
	return handle, nil
}

// Poll returns the next scripted response for handle.
func (f *FakeRemote) Poll(ctx context.Context, handle string) (domain.PollStatus, error) {
	f.mu.Lock()
	f.polls[handle]++
	fn := f.PollFunc
	var res PollResult
	script, scripted := f.scripts[handle]
	if scripted && len(script) > 0 {
		res = script[0]
		if len(script) > 1 {
			f.scripts[handle] = script[1:]
		}
	}
	f.mu.Unlock()

	switch {
	case fn != nil:
		res.Status, res.Err = fn(ctx, handle)
	case !scripted:
		res = PollResult{Status: domain.PollStatus{State: domain.RemoteCompleted}}
	}

	if res.Err == nil && (res.Status.State == domain.RemoteCompleted || res.Status.State == domain.RemoteFailed) {
		f.mu.Lock()
		delete(f.active, handle)
		f.mu.Unlock()
	}
	return res.Status, res.Err
}

// Cancel records the cancellation.
func (f *FakeRemote) Cancel(ctx context.Context, handle string) error {
	f.mu.Lock()
	f.cancels = append(f.cancels, handle)
	delete(f.active, handle)
	fn := f.CancelFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, handle)
	}
	return nil
}

// SubmitCalls returns every Submit request in call order.
func (f *FakeRemote) SubmitCalls() []domain.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.submits)
}

// SubmittedJobs returns the job ids of every Submit call in call order.
func (f *FakeRemote) SubmittedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.submits))
	for _, req := range f.submits {
		ids = append(ids, req.JobID)
	}
	return ids
}

// PollCount returns how often a handle was polled.
func (f *FakeRemote) PollCount(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[handle]
}

// Cancelled returns the handles passed to Cancel.
func (f *FakeRemote) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cancels)
}

// MaxActive returns the highest number of submitted, unfinished remote jobs observed.
func (f *FakeRemote) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *FakeRemote) countActive() int {
	return len(f.active)
}

// MockBeadStore is an in-memory test double for domain.BeadStore.
// Fields are ordered to minimize memory padding.
type MockBeadStore struct {
	Beads  map[string]*domain.Bead
	PutErr error
	GetErr error
	Puts   int
	mu     sync.Mutex
}

// NewMockBeadStore creates a new MockBeadStore.
func NewMockBeadStore() *MockBeadStore {
	return &MockBeadStore{Beads: make(map[string]*domain.Bead)}
}

// Ensure MockBeadStore implements domain.BeadStore.
var _ domain.BeadStore = (*MockBeadStore)(nil)

// Put stores a copy of the bead.
func (m *MockBeadStore) Put(bead *domain.Bead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	if m.PutErr != nil {
		return m.PutErr
	}
	cp := *bead
	cp.FilesChanged = slices.Clone(bead.FilesChanged)
	m.Beads[bead.ID] = &cp
	return nil
}

// Get returns a copy of the bead.
func (m *MockBeadStore) Get(id string) (*domain.Bead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	b, ok := m.Beads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBeadNotFound, id)
	}
	cp := *b
	return &cp, nil
}

// List yields matching beads ordered by creation time.
func (m *MockBeadStore) List(filter domain.BeadFilter) iter.Seq2[*domain.Bead, error] {
	return func(yield func(*domain.Bead, error) bool) {
		m.mu.Lock()
		beads := make([]*domain.Bead, 0, len(m.Beads))
		for _, b := range m.Beads {
			if filter.Match(b) {
				cp := *b
				beads = append(beads, &cp)
			}
		}
		m.mu.Unlock()
		sort.Slice(beads, func(i, j int) bool {
			if beads[i].CreatedAt.Equal(beads[j].CreatedAt) {
				return beads[i].ID < beads[j].ID
			}
			return beads[i].CreatedAt.Before(beads[j].CreatedAt)
		})
		for _, b := range beads {
			if !yield(b, nil) {
				return
			}
		}
	}
}

// Prune deletes matching terminal beads.
func (m *MockBeadStore) Prune(filter domain.PruneFilter) ([]*domain.Bead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned []*domain.Bead
	for id, b := range m.Beads {
		if filter.Match(b) {
			pruned = append(pruned, b)
			delete(m.Beads, id)
		}
	}
	return pruned, nil
}

// Status returns the stored status of a bead, or an empty status.
func (m *MockBeadStore) Status(id string) domain.BeadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.Beads[id]; ok {
		return b.Status
	}
	return ""
}

// MockHookManager is an in-memory test double for domain.HookManager.
// Fields are ordered to minimize memory padding.
type MockHookManager struct {
	Active     map[string]*domain.Hook // by job id
	Kept       map[string]bool         // by job id, set on Release with keep
	AcquireErr error
	ReleaseErr error
	DiscardErr error
	Diff       *domain.HookDiff
	Infos      []domain.HookInfo
	Discarded  []string // repo paths passed to Discard
	Root       string
	Acquired   int
	MaxActive  int
	mu         sync.Mutex
}

// NewMockHookManager creates a new MockHookManager rooted at root.
func NewMockHookManager(root string) *MockHookManager {
	return &MockHookManager{
		Active: make(map[string]*domain.Hook),
		Kept:   make(map[string]bool),
		Root:   root,
	}
}

// Ensure MockHookManager implements domain.HookManager.
var _ domain.HookManager = (*MockHookManager)(nil)

// Acquire records a hook for the job.
func (m *MockHookManager) Acquire(_ context.Context, rig *domain.Rig, jobID, branch, _ string) (*domain.Hook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	if _, ok := m.Active[jobID]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHookConflict, jobID)
	}
	hook := &domain.Hook{
		Path:       domain.HookPath(m.Root, rig.Name, jobID),
		JobID:      jobID,
		Rig:        rig.Name,
		RepoPath:   rig.Path,
		Branch:     branch,
		BaseCommit: "base",
	}
	m.Active[jobID] = hook
	m.Acquired++
	m.MaxActive = max(m.MaxActive, len(m.Active))
	return hook, nil
}

// Release drops the hook from the active set.
func (m *MockHookManager) Release(_ context.Context, hook *domain.Hook, keep bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hook == nil || hook.Released {
		return nil
	}
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	hook.Released = true
	delete(m.Active, hook.JobID)
	if keep {
		m.Kept[hook.JobID] = true
	}
	return nil
}

// Inspect returns the configured diff.
func (m *MockHookManager) Inspect(_ context.Context, _ *domain.Hook) (*domain.HookDiff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Diff == nil {
		return &domain.HookDiff{}, nil
	}
	cp := *m.Diff
	return &cp, nil
}

// List returns the configured hook infos plus every active hook.
func (m *MockHookManager) List(_ context.Context) ([]domain.HookInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := slices.Clone(m.Infos)
	for _, h := range m.Active {
		infos = append(infos, domain.HookInfo{Path: h.Path, Rig: h.Rig, JobID: h.JobID, Branch: h.Branch})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Discard removes the hook info from the listed infos.
func (m *MockHookManager) Discard(_ context.Context, info domain.HookInfo, repoPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DiscardErr != nil {
		return m.DiscardErr
	}
	m.Infos = slices.DeleteFunc(m.Infos, func(i domain.HookInfo) bool { return i.Path == info.Path })
	m.Discarded = append(m.Discarded, repoPath)
	return nil
}

// ActiveCount returns the number of unreleased hooks.
func (m *MockHookManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Active)
}

// HasHook reports whether the job holds an unreleased hook.
func (m *MockHookManager) HasHook(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Active[jobID]
	return ok
}

// WasKept reports whether the job's hook was released with keep set.
func (m *MockHookManager) WasKept(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Kept[jobID]
}

// MockRigRegistry is an in-memory test double for domain.RigRegistry.
type MockRigRegistry struct {
	Rigs map[string]*domain.Rig
}

// NewMockRigRegistry creates a registry holding the given rigs.
func NewMockRigRegistry(rigs ...*domain.Rig) *MockRigRegistry {
	m := &MockRigRegistry{Rigs: make(map[string]*domain.Rig)}
	for _, r := range rigs {
		m.Rigs[r.Name] = r
	}
	return m
}

// Ensure MockRigRegistry implements domain.RigRegistry.
var _ domain.RigRegistry = (*MockRigRegistry)(nil)

// Register adds a rig whose path is the source.
func (m *MockRigRegistry) Register(_ context.Context, name, source string) (*domain.Rig, error) {
	if _, ok := m.Rigs[name]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRig, name)
	}
	rig := &domain.Rig{Name: name, Path: source, DefaultBranch: "main"}
	m.Rigs[name] = rig
	return rig, nil
}

// List yields rigs sorted by name.
func (m *MockRigRegistry) List() iter.Seq2[*domain.Rig, error] {
	return func(yield func(*domain.Rig, error) bool) {
		names := make([]string, 0, len(m.Rigs))
		for name := range m.Rigs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !yield(m.Rigs[name], nil) {
				return
			}
		}
	}
}

// Resolve returns the rig or ErrUnknownRig.
func (m *MockRigRegistry) Resolve(name string) (*domain.Rig, error) {
	rig, ok := m.Rigs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRig, name)
	}
	return rig, nil
}

// Remove deletes the rig.
func (m *MockRigRegistry) Remove(name string) error {
	if _, ok := m.Rigs[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRig, name)
	}
	delete(m.Rigs, name)
	return nil
}

// MockConvoyRepository is an in-memory test double for domain.ConvoyRepository.
type MockConvoyRepository struct {
	Convoys map[string]*domain.Convoy
	SaveErr error
	mu      sync.Mutex
}

// NewMockConvoyRepository creates a new MockConvoyRepository.
func NewMockConvoyRepository() *MockConvoyRepository {
	return &MockConvoyRepository{Convoys: make(map[string]*domain.Convoy)}
}

// Ensure MockConvoyRepository implements domain.ConvoyRepository.
var _ domain.ConvoyRepository = (*MockConvoyRepository)(nil)

// Get returns a copy of the convoy or ErrConvoyNotFound.
func (m *MockConvoyRepository) Get(id string) (*domain.Convoy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Convoys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrConvoyNotFound, id)
	}
	cp := *c
	cp.Tasks = slices.Clone(c.Tasks)
	return &cp, nil
}

// List returns all convoys ordered by creation time.
func (m *MockConvoyRepository) List() ([]*domain.Convoy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Convoy, 0, len(m.Convoys))
	for _, c := range m.Convoys {
		cp := *c
		cp.Tasks = slices.Clone(c.Tasks)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Save stores a copy of the convoy.
func (m *MockConvoyRepository) Save(convoy *domain.Convoy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *convoy
	cp.Tasks = slices.Clone(convoy.Tasks)
	m.Convoys[convoy.ID] = &cp
	return nil
}

// MockEventLog is an in-memory test double for domain.EventLog.
type MockEventLog struct {
	Events []domain.Event
	mu     sync.Mutex
}

// Ensure MockEventLog implements domain.EventLog.
var _ domain.EventLog = (*MockEventLog)(nil)

// Append records the event.
func (m *MockEventLog) Append(_ context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.Events) + 1)
	m.Events = append(m.Events, ev)
	return nil
}

// Query returns matching events, newest first.
func (m *MockEventLog) Query(_ context.Context, q domain.EventQuery) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for i := len(m.Events) - 1; i >= 0; i-- {
		ev := m.Events[i]
		if q.JobID != "" && ev.JobID != q.JobID {
			continue
		}
		if q.Type != "" && ev.Type != q.Type {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Types returns the event types recorded for a job in order.
func (m *MockEventLog) Types(jobID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.Events {
		if ev.JobID == jobID {
			out = append(out, ev.Type)
		}
	}
	return out
}

// MockCoordinator is a test double for domain.Coordinator.
// Fields are ordered to minimize memory padding.
type MockCoordinator struct {
	SpawnErr   error
	CancelErr  error
	Spawned    []domain.SpawnRequest
	Cancelled  []string
	Dispatched map[string]int
	NextID     string
	QuitCalled bool
	Drained    bool
	mu         sync.Mutex
}

// Ensure MockCoordinator implements domain.Coordinator.
var _ domain.Coordinator = (*MockCoordinator)(nil)

// Spawn records the request and returns its id (or NextID).
func (m *MockCoordinator) Spawn(_ context.Context, req domain.SpawnRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SpawnErr != nil {
		return "", m.SpawnErr
	}
	m.Spawned = append(m.Spawned, req)
	if req.JobID != "" {
		return req.JobID, nil
	}
	if m.NextID != "" {
		return m.NextID, nil
	}
	return "job-00000001", nil
}

// Cancel records the job id.
func (m *MockCoordinator) Cancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.Cancelled = append(m.Cancelled, jobID)
	return nil
}

// DispatchConvoy records the dispatch.
func (m *MockCoordinator) DispatchConvoy(_ context.Context, convoyID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Dispatched == nil {
		m.Dispatched = make(map[string]int)
	}
	m.Dispatched[convoyID] = count
	return nil
}

// Quit records the quit request.
func (m *MockCoordinator) Quit(_ context.Context, drain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuitCalled = true
	m.Drained = drain
	return nil
}
