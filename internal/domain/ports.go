package domain

import (
	"context"
	"iter"
	"time"
)

// RigRegistry tracks the projects jobs may target.
type RigRegistry interface {
	// Register adds a rig from a local repository path or a clone URL.
	Register(ctx context.Context, name, source string) (*Rig, error)
	// List yields registered rigs sorted by name. The sequence can be ranged over repeatedly.
	List() iter.Seq2[*Rig, error]
	// Resolve returns the rig with the given name, or ErrUnknownRig.
	Resolve(name string) (*Rig, error)
	// Remove deletes a registration.
	Remove(name string) error
}

// HookManager provisions isolated worktrees for jobs.
type HookManager interface {
	// Acquire creates a worktree on a new branch from baseRef.
	// An empty baseRef means the rig's default branch.
	Acquire(ctx context.Context, rig *Rig, jobID, branch, baseRef string) (*Hook, error)
	// Release removes the worktree and its unmerged-free branch unless keep is set.
	// Releasing an already released hook is a no-op.
	Release(ctx context.Context, hook *Hook, keep bool) error
	// Inspect reports the changes the job produced on its branch.
	Inspect(ctx context.Context, hook *Hook) (*HookDiff, error)
	// List returns every hook directory in the workspace.
	List(ctx context.Context) ([]HookInfo, error)
}

// BeadStore persists job outcomes.
type BeadStore interface {
	// Put upserts a bead by id.
	Put(bead *Bead) error
	// Get returns the bead for a job id, or ErrBeadNotFound.
	Get(id string) (*Bead, error)
	// List yields beads matching the filter ordered by creation time.
	List(filter BeadFilter) iter.Seq2[*Bead, error]
	// Prune deletes terminal beads matching the filter and returns them.
	Prune(filter PruneFilter) ([]*Bead, error)
}

// ConvoyRepository persists convoys.
type ConvoyRepository interface {
	Get(id string) (*Convoy, error)
	List() ([]*Convoy, error)
	Save(convoy *Convoy) error
}

// EventLog is an append-only journal of job transitions.
type EventLog interface {
	Append(ctx context.Context, ev Event) error
	Query(ctx context.Context, q EventQuery) ([]Event, error)
}

// Coordinator is the operator command surface of the mayor.
type Coordinator interface {
	// Spawn enqueues a job and returns its id.
	Spawn(ctx context.Context, req SpawnRequest) (string, error)
	// Cancel cancels a non-terminal job.
	Cancel(ctx context.Context, jobID string) error
	// DispatchConvoy starts feeding a convoy's pending tasks with at most count in flight.
	DispatchConvoy(ctx context.Context, convoyID string, count int) error
	// Quit stops the mayor. With drain, every non-terminal job is cancelled first.
	Quit(ctx context.Context, drain bool) error
}

// ConfigLoader loads configuration.
type ConfigLoader interface {
	Load() (*Config, error)
}

// ConfigInfo describes a configuration file.
type ConfigInfo struct {
	Path    string
	Content string
	Exists  bool
}

// ConfigManager manages configuration files.
type ConfigManager interface {
	GlobalConfigInfo() ConfigInfo
	WorkspaceConfigInfo() ConfigInfo
	// InitWorkspaceConfig writes the default template; it fails if the file exists.
	InitWorkspaceConfig() error
}

// StoreInitializer creates an empty store document.
type StoreInitializer interface {
	Initialize() error
}

// Logger writes file logs scoped to a job or to the workspace.
// An empty jobID logs to the global log only.
type Logger interface {
	Info(jobID, category, msg string)
	Debug(jobID, category, msg string)
	Warn(jobID, category, msg string)
	Error(jobID, category, msg string)
}

// NopLogger discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(string, string, string)  {}
func (NopLogger) Debug(string, string, string) {}
func (NopLogger) Warn(string, string, string)  {}
func (NopLogger) Error(string, string, string) {}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
