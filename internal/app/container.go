// Package app provides the dependency injection container for the application.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/infra/beadstore"
	"github.com/runoshun/gastown/internal/infra/config"
	"github.com/runoshun/gastown/internal/infra/convoystore"
	"github.com/runoshun/gastown/internal/infra/eventlog"
	"github.com/runoshun/gastown/internal/infra/hooks"
	"github.com/runoshun/gastown/internal/infra/inbox"
	"github.com/runoshun/gastown/internal/infra/logging"
	"github.com/runoshun/gastown/internal/infra/remote"
	"github.com/runoshun/gastown/internal/infra/rigstore"
	"github.com/runoshun/gastown/internal/mayor"
	"github.com/runoshun/gastown/internal/ratelimit"
	"github.com/runoshun/gastown/internal/usecase"
)

// Config holds the workspace paths.
type Config struct {
	Root     string // Workspace root (the directory holding .gastown)
	StateDir string // Path to the .gastown directory
}

// newConfig creates a new Config for the workspace root.
func newConfig(root string) Config {
	return Config{Root: root, StateDir: domain.StateDir(root)}
}

// FindRoot searches dir and its parents for a .gastown directory.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(domain.StateDir(dir))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", domain.ErrNotInitialized
		}
		dir = parent
	}
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
// Fields are ordered to minimize memory padding.
type Container struct {
	// Ports (interfaces bound to implementations)
	Rigs          domain.RigRegistry
	Convoys       domain.ConvoyRepository
	Remote        domain.RemoteService
	Coordinator   domain.Coordinator // Sends commands through the inbox
	Clock         domain.Clock
	ConfigLoader  domain.ConfigLoader
	ConfigManager domain.ConfigManager

	// Pointer fields
	Hooks     *hooks.Manager
	Beads     *beadstore.Store
	Inbox     *inbox.Inbox
	AppConfig *domain.Config
	Logger    *slog.Logger // Console messages for the operator

	fileLogger *logging.Logger
	journal    *eventlog.Journal

	// Configuration
	Config Config

	mu sync.Mutex

	// Initialized is false for a container built by NewForInit outside a workspace.
	Initialized bool
}

// New creates a Container for the workspace that contains dir.
// It returns domain.ErrNotInitialized when there is none.
func New(dir string) (*Container, error) {
	root, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}
	c, err := newContainer(root)
	if err != nil {
		return nil, err
	}
	c.Initialized = true
	return c, nil
}

// NewForInit creates a Container rooted at dir whether or not the
// workspace exists yet.
func NewForInit(dir string) (*Container, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	c, err := newContainer(root)
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(c.Config.StateDir)
	c.Initialized = statErr == nil
	return c, nil
}

func newContainer(root string) (*Container, error) {
	cfg := newConfig(root)

	configLoader := config.NewLoader(cfg.StateDir)
	appConfig, err := configLoader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(appConfig.Log.Level),
	}))
	for _, w := range appConfig.Warnings {
		logger.Debug("config warning", "detail", w)
	}

	clock := domain.RealClock{}
	box := inbox.New(domain.InboxDir(cfg.StateDir))
	rigs := rigstore.New(domain.RigsPath(cfg.StateDir), root, clock)

	return &Container{
		Rigs:          rigs,
		Convoys:       convoystore.New(domain.ConvoysPath(cfg.StateDir)),
		Remote:        remote.NewClient(appConfig.Remote, remote.NewExecRunner()),
		Coordinator:   inbox.NewClient(box),
		Clock:         clock,
		ConfigLoader:  configLoader,
		ConfigManager: config.NewManager(configLoader),
		Hooks:         hooks.NewManager(root, rigs),
		Beads:         beadstore.New(domain.BeadsPath(cfg.StateDir)),
		Inbox:         box,
		AppConfig:     appConfig,
		Logger:        logger,
		Config:        cfg,
	}, nil
}

// Events returns the event journal, opening it on first use.
func (c *Container) Events() (domain.EventLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.journal == nil {
		j, err := eventlog.Open(domain.EventsDBPath(c.Config.StateDir))
		if err != nil {
			return nil, err
		}
		c.journal = j
	}
	return c.journal, nil
}

// FileLogger returns the workspace file logger.
func (c *Container) FileLogger() *logging.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fileLogger == nil {
		c.fileLogger = logging.New(c.Config.StateDir, logging.ParseLevel(c.AppConfig.Log.Level))
	}
	return c.fileLogger
}

// Close releases open files and database handles.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.journal != nil {
		errs = append(errs, c.journal.Close())
		c.journal = nil
	}
	if c.fileLogger != nil {
		errs = append(errs, c.fileLogger.Close())
		c.fileLogger = nil
	}
	return errors.Join(errs...)
}

// Limiter returns a rate limit controller for the workspace configuration.
func (c *Container) Limiter() *ratelimit.Controller {
	return ratelimit.New(ratelimit.PolicyFromConfig(c.AppConfig))
}

// NewMayor builds the coordinator loop for this workspace.
func (c *Container) NewMayor() (*mayor.Mayor, error) {
	events, err := c.Events()
	if err != nil {
		return nil, err
	}
	return mayor.New(mayor.Deps{
		Rigs:    c.Rigs,
		Hooks:   c.Hooks,
		Beads:   c.Beads,
		Convoys: c.Convoys,
		Remote:  c.Remote,
		Events:  events,
		Logger:  c.FileLogger(),
		Clock:   c.Clock,
		Limiter: c.Limiter(),
	}, mayor.ConfigFrom(c.AppConfig)), nil
}

// UseCase factory methods

// InitWorkspaceUseCase returns a new InitWorkspace use case.
func (c *Container) InitWorkspaceUseCase() *usecase.InitWorkspace {
	return usecase.NewInitWorkspace(c.Beads, c.ConfigManager)
}

// ShowConfigUseCase returns a new ShowConfig use case.
func (c *Container) ShowConfigUseCase() *usecase.ShowConfig {
	return usecase.NewShowConfig(c.ConfigManager, c.ConfigLoader)
}

// RegisterRigUseCase returns a new RegisterRig use case.
func (c *Container) RegisterRigUseCase() *usecase.RegisterRig {
	return usecase.NewRegisterRig(c.Rigs)
}

// ListRigsUseCase returns a new ListRigs use case.
func (c *Container) ListRigsUseCase() *usecase.ListRigs {
	return usecase.NewListRigs(c.Rigs)
}

// ShowRigUseCase returns a new ShowRig use case.
func (c *Container) ShowRigUseCase() *usecase.ShowRig {
	return usecase.NewShowRig(c.Rigs, c.Beads)
}

// RemoveRigUseCase returns a new RemoveRig use case.
func (c *Container) RemoveRigUseCase() *usecase.RemoveRig {
	return usecase.NewRemoveRig(c.Rigs, c.Beads)
}

// ListBeadsUseCase returns a new ListBeads use case.
func (c *Container) ListBeadsUseCase() *usecase.ListBeads {
	return usecase.NewListBeads(c.Beads)
}

// ShowBeadUseCase returns a new ShowBead use case.
func (c *Container) ShowBeadUseCase() (*usecase.ShowBead, error) {
	events, err := c.Events()
	if err != nil {
		return nil, err
	}
	return usecase.NewShowBead(c.Beads, events), nil
}

// PruneBeadsUseCase returns a new PruneBeads use case.
func (c *Container) PruneBeadsUseCase() *usecase.PruneBeads {
	return usecase.NewPruneBeads(c.Beads, c.Clock)
}

// ShowEventsUseCase returns a new ShowEvents use case.
func (c *Container) ShowEventsUseCase() (*usecase.ShowEvents, error) {
	events, err := c.Events()
	if err != nil {
		return nil, err
	}
	return usecase.NewShowEvents(events), nil
}

// CreateConvoyUseCase returns a new CreateConvoy use case.
func (c *Container) CreateConvoyUseCase() *usecase.CreateConvoy {
	return usecase.NewCreateConvoy(c.Convoys, c.Rigs, c.Clock)
}

// ConvoyStatusUseCase returns a new ConvoyStatus use case.
func (c *Container) ConvoyStatusUseCase() *usecase.ConvoyStatus {
	return usecase.NewConvoyStatus(c.Convoys, c.Beads)
}

// ListConvoysUseCase returns a new ListConvoys use case.
func (c *Container) ListConvoysUseCase() *usecase.ListConvoys {
	return usecase.NewListConvoys(c.Convoys, c.Beads)
}

// DispatchConvoyUseCase returns a new DispatchConvoy use case.
func (c *Container) DispatchConvoyUseCase() *usecase.DispatchConvoy {
	return usecase.NewDispatchConvoy(c.Convoys, c.Coordinator)
}

// ListHooksUseCase returns a new ListHooks use case.
func (c *Container) ListHooksUseCase() *usecase.ListHooks {
	return usecase.NewListHooks(c.Hooks, c.Beads)
}

// PruneHooksUseCase returns a new PruneHooks use case.
func (c *Container) PruneHooksUseCase() *usecase.PruneHooks {
	return usecase.NewPruneHooks(c.Hooks, c.Hooks, c.Beads, c.Rigs)
}

// SpawnJobUseCase returns a new SpawnJob use case.
func (c *Container) SpawnJobUseCase() *usecase.SpawnJob {
	return usecase.NewSpawnJob(c.Rigs, c.Coordinator)
}

// CancelJobUseCase returns a new CancelJob use case.
func (c *Container) CancelJobUseCase() *usecase.CancelJob {
	return usecase.NewCancelJob(c.Beads, c.Coordinator)
}

// QuitMayorUseCase returns a new QuitMayor use case.
func (c *Container) QuitMayorUseCase() *usecase.QuitMayor {
	return usecase.NewQuitMayor(c.Coordinator)
}

// SubmitDirectUseCase returns a new SubmitDirect use case.
func (c *Container) SubmitDirectUseCase() (*usecase.SubmitDirect, error) {
	events, err := c.Events()
	if err != nil {
		return nil, err
	}
	return usecase.NewSubmitDirect(
		c.Rigs, c.Hooks, c.Beads, c.Remote, events, c.FileLogger(), c.Clock,
		c.Limiter(), c.AppConfig.Hooks.Keep, c.AppConfig.CallTimeout, c.AppConfig.MaxConcurrentAgents,
	), nil
}

// RunMayorUseCase returns a new RunMayor use case for the given mayor.
func (c *Container) RunMayorUseCase(m *mayor.Mayor) *usecase.RunMayor {
	return usecase.NewRunMayor(m, c.Inbox, c.FileLogger())
}
