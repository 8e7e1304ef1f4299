// Package usecase contains the application use cases.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runoshun/gastown/internal/domain"
)

// InitWorkspaceInput contains the input parameters for InitWorkspace.
type InitWorkspaceInput struct {
	StateDir string // Path to the .gastown directory
}

// InitWorkspaceOutput contains the output from InitWorkspace.
type InitWorkspaceOutput struct {
	StateDir           string // Path to the state directory
	ConfigPath         string // Path to the workspace config file
	AlreadyInitialized bool   // True if the state directory existed (repair only)
}

// InitWorkspace initializes a gastown workspace.
type InitWorkspace struct {
	beads         domain.StoreInitializer
	configManager domain.ConfigManager
}

// NewInitWorkspace creates a new InitWorkspace use case.
func NewInitWorkspace(beads domain.StoreInitializer, configManager domain.ConfigManager) *InitWorkspace {
	return &InitWorkspace{beads: beads, configManager: configManager}
}

// Execute creates the state directory layout, an empty bead store and the
// config template. Existing files are left untouched, so running it again
// only repairs what is missing.
func (uc *InitWorkspace) Execute(_ context.Context, in InitWorkspaceInput) (*InitWorkspaceOutput, error) {
	_, statErr := os.Stat(in.StateDir)
	already := statErr == nil

	for _, dir := range []string{in.StateDir, domain.InboxDir(in.StateDir), logsDir(in.StateDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := uc.beads.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize bead store: %w", err)
	}

	if err := uc.configManager.InitWorkspaceConfig(); err != nil && !errors.Is(err, domain.ErrConfigExists) {
		return nil, fmt.Errorf("write config: %w", err)
	}

	return &InitWorkspaceOutput{
		StateDir:           in.StateDir,
		ConfigPath:         uc.configManager.WorkspaceConfigInfo().Path,
		AlreadyInitialized: already,
	}, nil
}

func logsDir(stateDir string) string {
	return filepath.Dir(domain.GlobalLogPath(stateDir))
}
