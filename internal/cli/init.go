package cli

import (
	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newInitCommand creates the init command.
func newInitCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a gastown workspace",
		Long: `Initialize a gastown workspace in the current directory.

This command creates the .gastown/ directory with:
- config.toml: configuration template
- beads/beads.json: empty bead store
- inbox/: operator command inbox
- logs/: directory for log files

Running it again in an existing workspace only recreates missing files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc := c.InitWorkspaceUseCase()
			out, err := uc.Execute(cmd.Context(), usecase.InitWorkspaceInput{
				StateDir: c.Config.StateDir,
			})
			if err != nil {
				return err
			}

			if out.AlreadyInitialized {
				printf(cmd, "Workspace already initialized in %s\n", out.StateDir)
				return nil
			}
			printf(cmd, "Initialized gastown workspace in %s\n", out.StateDir)
			printf(cmd, "Edit %s to configure the remote service.\n", out.ConfigPath)
			return nil
		},
	}
}
