// Package mayor implements the workspace coordinator loop.
//
// A single goroutine started by Run owns every job, the run queue, the
// concurrency slot counter and the convoy runs. Remote calls run in
// short-lived goroutines that post exactly one result back to the loop.
// Everything else the loop does (hook acquire and release, bead writes)
// happens inline.
package mayor

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/ratelimit"
)

// Logging categories.
const (
	catMayor  = "mayor"
	catJob    = "job"
	catRemote = "remote"
	catConvoy = "convoy"
)

// Config holds the loop settings derived from the workspace configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Keep          domain.HookKeepPolicy
	Recovery      domain.RecoveryPolicy
	PollInterval  time.Duration
	CallTimeout   time.Duration
	MaxConcurrent int
	MaxPollErrors int
}

// ConfigFrom extracts the loop settings from cfg.
func ConfigFrom(cfg *domain.Config) Config {
	return Config{
		Keep:          cfg.Hooks.Keep,
		Recovery:      cfg.Recovery.Policy,
		PollInterval:  cfg.PollInterval,
		CallTimeout:   cfg.CallTimeout,
		MaxConcurrent: cfg.MaxConcurrentAgents,
		MaxPollErrors: cfg.MaxPollErrors,
	}
}

// Deps are the collaborators of the mayor. Events and Logger may be nil.
type Deps struct {
	Rigs    domain.RigRegistry
	Hooks   domain.HookManager
	Beads   domain.BeadStore
	Convoys domain.ConvoyRepository
	Remote  domain.RemoteService
	Events  domain.EventLog
	Logger  domain.Logger
	Clock   domain.Clock
	Limiter *ratelimit.Controller
}

// Mayor coordinates jobs for one workspace.
// Its exported methods are safe to call from any goroutine once Run has started.
type Mayor struct {
	rigs    domain.RigRegistry
	hooks   domain.HookManager
	beads   domain.BeadStore
	convoys domain.ConvoyRepository
	remote  domain.RemoteService
	events  domain.EventLog
	logger  domain.Logger
	clock   domain.Clock
	limiter *ratelimit.Controller

	cmds    chan command
	results chan result
	done    chan struct{}

	// Loop state. Only the Run goroutine touches these.
	ctx      context.Context
	jobs     map[string]*entry
	runs     map[string]*convoyRun
	order    []string // job ids in creation order
	queue    []string // queued job ids, FIFO
	cfg      Config
	active   int // jobs holding a concurrency slot
	inflight int // remote calls not yet reported
	stopping bool
}

// New creates a mayor. Zero config values fall back to the defaults.
func New(deps Deps, cfg Config) *Mayor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = domain.DefaultMaxConcurrentAgents
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = domain.DefaultPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = domain.DefaultCallTimeout
	}
	if cfg.MaxPollErrors < 0 {
		cfg.MaxPollErrors = domain.DefaultMaxPollErrors
	}
	if !cfg.Keep.IsValid() {
		cfg.Keep = domain.KeepNever
	}
	if !cfg.Recovery.IsValid() {
		cfg.Recovery = domain.RecoveryReattach
	}

	m := &Mayor{
		rigs:    deps.Rigs,
		hooks:   deps.Hooks,
		beads:   deps.Beads,
		convoys: deps.Convoys,
		remote:  deps.Remote,
		events:  deps.Events,
		logger:  deps.Logger,
		clock:   deps.Clock,
		limiter: deps.Limiter,
		cfg:     cfg,
		cmds:    make(chan command),
		results: make(chan result),
		done:    make(chan struct{}),
		jobs:    make(map[string]*entry),
		runs:    make(map[string]*convoyRun),
	}
	if m.logger == nil {
		m.logger = domain.NopLogger{}
	}
	if m.clock == nil {
		m.clock = domain.RealClock{}
	}
	if m.limiter == nil {
		m.limiter = ratelimit.New(ratelimit.PolicyFromConfig(domain.NewDefaultConfig()))
	}
	return m
}

// Ensure Mayor implements domain.Coordinator interface.
var _ domain.Coordinator = (*Mayor)(nil)

// Done is closed when Run returns.
func (m *Mayor) Done() <-chan struct{} {
	return m.done
}

// Run recovers jobs left by a previous run and then services commands,
// remote results and poll timers until Quit is called or ctx is done.
// Cancelling ctx behaves like Quit without drain: in-flight submissions are
// awaited so their handles get recorded, then Run returns nil.
func (m *Mayor) Run(ctx context.Context) error {
	defer close(m.done)

	m.ctx = context.WithoutCancel(ctx)
	if err := m.recoverJobs(); err != nil {
		m.logger.Error("", catMayor, "recovery failed: "+err.Error())
		return err
	}
	m.reconcileHooks()
	m.logger.Info("", catMayor, "mayor started")

	ctxDone := ctx.Done()
	timer := time.NewTimer(m.cfg.PollInterval)
	defer timer.Stop()

	for {
		m.service()
		if m.stopping && m.inflight == 0 {
			m.shutdown()
			return nil
		}

		timer.Reset(m.nextWake())
		select {
		case <-ctxDone:
			ctxDone = nil
			m.stop(false)
		case c := <-m.cmds:
			c.reply <- m.handle(c)
		case r := <-m.results:
			m.apply(r)
		case <-timer.C:
		}
	}
}

// Spawn enqueues an ad-hoc job and returns its id.
func (m *Mayor) Spawn(ctx context.Context, req domain.SpawnRequest) (string, error) {
	r := m.send(ctx, command{kind: cmdSpawn, spawn: req})
	return r.id, r.err
}

// Cancel cancels a job. The cancelled bead is written and the hook released
// before Cancel returns.
func (m *Mayor) Cancel(ctx context.Context, jobID string) error {
	return m.send(ctx, command{kind: cmdCancel, jobID: jobID}).err
}

// DispatchConvoy starts feeding the pending tasks of a convoy, keeping at
// most count of its jobs non-terminal.
func (m *Mayor) DispatchConvoy(ctx context.Context, convoyID string, count int) error {
	return m.send(ctx, command{kind: cmdDispatch, convoyID: convoyID, count: count}).err
}

// Status returns a snapshot of a job known to this mayor.
func (m *Mayor) Status(ctx context.Context, jobID string) (domain.Job, error) {
	r := m.send(ctx, command{kind: cmdStatus, jobID: jobID})
	if r.err != nil {
		return domain.Job{}, r.err
	}
	return r.jobs[0], nil
}

// Jobs returns snapshots of every job in creation order.
func (m *Mayor) Jobs(ctx context.Context) ([]domain.Job, error) {
	r := m.send(ctx, command{kind: cmdJobs})
	return r.jobs, r.err
}

// Quit stops the mayor. Without drain, remote jobs keep running and their
// beads stay running for the next start to pick up. With drain, every
// non-terminal job is cancelled first.
func (m *Mayor) Quit(ctx context.Context, drain bool) error {
	return m.send(ctx, command{kind: cmdQuit, drain: drain}).err
}

// Drain cancels every non-terminal job and stops the mayor.
func (m *Mayor) Drain(ctx context.Context) error {
	return m.Quit(ctx, true)
}

func (m *Mayor) send(ctx context.Context, c command) reply {
	c.reply = make(chan reply, 1)
	select {
	case m.cmds <- c:
	case <-m.done:
		return reply{err: domain.ErrMayorStopped}
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
	select {
	case r := <-c.reply:
		return r
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

func (m *Mayor) handle(c command) reply {
	switch c.kind {
	case cmdSpawn:
		if m.stopping {
			return reply{err: domain.ErrMayorStopped}
		}
		id, err := m.enqueue(c.spawn)
		return reply{id: id, err: err}
	case cmdCancel:
		return reply{err: m.cancelJob(c.jobID)}
	case cmdDispatch:
		return reply{err: m.dispatch(c.convoyID, c.count)}
	case cmdStatus:
		e, ok := m.jobs[c.jobID]
		if !ok {
			return reply{err: fmt.Errorf("%w: %s", domain.ErrJobNotFound, c.jobID)}
		}
		return reply{jobs: []domain.Job{e.job.Snapshot()}}
	case cmdJobs:
		jobs := make([]domain.Job, 0, len(m.order))
		for _, id := range m.order {
			jobs = append(jobs, m.jobs[id].job.Snapshot())
		}
		return reply{jobs: jobs}
	case cmdQuit:
		m.stop(c.drain)
		return reply{}
	}
	return reply{err: domain.ErrInvalidCommand}
}

// stop stops admitting work. In-flight polls are aborted since they have no
// side effect; in-flight submissions are left to finish.
func (m *Mayor) stop(drain bool) {
	if !m.stopping {
		m.logger.Info("", catMayor, "stopping")
	}
	m.stopping = true
	for _, id := range m.order {
		e := m.jobs[id]
		if e.job.IsTerminal() {
			continue
		}
		if drain {
			if err := m.cancelJob(id); err != nil {
				m.logger.Warn(id, catJob, "drain: "+err.Error())
			}
			continue
		}
		if e.callCancel != nil && e.callKind == callPoll {
			e.callCancel()
		}
	}
}

// shutdown runs once no call is in flight. Jobs that were admitted but never
// accepted by the remote service give their hook back and are recorded as
// queued again, so the next start submits them from scratch.
func (m *Mayor) shutdown() {
	running := 0
	for _, id := range m.order {
		e := m.jobs[id]
		if e.job.IsTerminal() {
			continue
		}
		if e.job.State == domain.JobSubmitting {
			m.requeueForRestart(e)
		} else {
			running++
		}
		if e.cancel != nil {
			e.cancel()
		}
	}
	m.logger.Info("", catMayor, fmt.Sprintf("mayor stopped with %d job(s) left running", running))
}

// nextWake returns how long the loop may sleep before a job is due.
func (m *Mayor) nextWake() time.Duration {
	now := m.clock.Now()
	wait := m.cfg.PollInterval
	for _, id := range m.order {
		e := m.jobs[id]
		if !e.due() {
			continue
		}
		d := e.job.NextAttempt.Sub(now)
		if d < wait {
			wait = d
		}
	}
	return max(wait, 0)
}

type cmdKind int

const (
	cmdSpawn cmdKind = iota
	cmdCancel
	cmdDispatch
	cmdStatus
	cmdJobs
	cmdQuit
)

// command is a request to the loop. Fields are ordered to minimize memory padding.
type command struct {
	reply    chan reply
	spawn    domain.SpawnRequest
	jobID    string
	convoyID string
	kind     cmdKind
	count    int
	drain    bool
}

type reply struct {
	err  error
	id   string
	jobs []domain.Job
}

func (m *Mayor) requeueForRestart(e *entry) {
	job := e.job
	if job.Hook != nil {
		if err := m.hooks.Release(m.ctx, job.Hook, false); err != nil {
			m.logger.Warn(job.ID, catJob, "release hook: "+err.Error())
		}
	}
	b := domain.NewBead(job)
	b.Status = domain.BeadQueued
	b.HookPath = ""
	b.BaseCommit = ""
	if err := m.beads.Put(b); err != nil {
		m.logger.Warn(job.ID, catJob, "bead write failed: "+err.Error())
	}
}
