// Package cli provides the command-line interface for gastown.
package cli

import (
	"fmt"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/spf13/cobra"
)

// Command group IDs.
const (
	groupSetup  = "setup"
	groupJob    = "job"
	groupConvoy = "convoy"
	groupInfo   = "info"
)

func isCompletion(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Name() == "completion" || cmd.Name() == cobra.ShellCompRequestCmd {
			return true
		}
	}
	return false
}

// NewRootCommand creates the root command for gt.
// It receives the container for dependency injection and version for display.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "gt",
		Short: "Coordinate remote coding agents across projects",
		Long: `Gas Town (gt) runs many remote coding-agent jobs in parallel.

Each job gets its own git worktree (a hook) on a fresh branch of a
registered project (a rig). The mayor keeps a bounded number of jobs in
flight, backs off when the remote service is throttling, and records
every outcome as a bead.

Start with 'gt init', register a project with 'gt rig add', run
'gt mayor' in one terminal and spawn jobs from another.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip if container is nil (e.g. in tests)
			if c == nil || cmd.Name() == "init" || cmd.Name() == "help" || isCompletion(cmd) {
				return nil
			}
			if !c.Initialized {
				return domain.ErrNotInitialized
			}
			for _, w := range c.AppConfig.Warnings {
				c.Logger.Warn("config", "warning", w)
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if c == nil {
				return nil
			}
			return c.Close()
		},
	}

	// Define command groups
	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
		&cobra.Group{ID: groupJob, Title: "Job Commands:"},
		&cobra.Group{ID: groupConvoy, Title: "Convoy Commands:"},
		&cobra.Group{ID: groupInfo, Title: "Inspection Commands:"},
	)

	// Setup commands
	initCmd := newInitCommand(c)
	initCmd.GroupID = groupSetup

	configCmd := newConfigCommand(c)
	configCmd.GroupID = groupSetup

	rigCmd := newRigCommand(c)
	rigCmd.GroupID = groupSetup

	// Job commands
	mayorCmd := newMayorCommand(c)
	mayorCmd.GroupID = groupJob

	spawnCmd := newSpawnCommand(c)
	spawnCmd.GroupID = groupJob

	statusCmd := newStatusCommand(c)
	statusCmd.GroupID = groupJob

	cancelCmd := newCancelCommand(c)
	cancelCmd.GroupID = groupJob

	quitCmd := newQuitCommand(c)
	quitCmd.GroupID = groupJob

	// Convoy commands
	convoyCmd := newConvoyCommand(c)
	convoyCmd.GroupID = groupConvoy

	// Inspection commands
	beadsCmd := newBeadsCommand(c)
	beadsCmd.GroupID = groupInfo

	hooksCmd := newHooksCommand(c)
	hooksCmd.GroupID = groupInfo

	eventsCmd := newEventsCommand(c)
	eventsCmd.GroupID = groupInfo

	root.AddCommand(
		initCmd,
		configCmd,
		rigCmd,
		mayorCmd,
		spawnCmd,
		statusCmd,
		cancelCmd,
		quitCmd,
		convoyCmd,
		beadsCmd,
		hooksCmd,
		eventsCmd,
	)

	return root
}

// printf writes to the command's stdout, ignoring write errors.
func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
