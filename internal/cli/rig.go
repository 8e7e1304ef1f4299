package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newRigCommand creates the rig command.
func newRigCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rig",
		Short: "Manage registered projects",
		Long: `Manage rigs, the git repositories jobs can target.

A rig is registered from a local repository path, or from a clone URL
in which case the repository is cloned under rigs/ in the workspace.`,
	}

	cmd.AddCommand(
		newRigAddCommand(c),
		newRigListCommand(c),
		newRigShowCommand(c),
		newRigRemoveCommand(c),
	)
	return cmd
}

func newRigAddCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <path|url>",
		Short: "Register a rig",
		Example: `  gt rig add api ../api-server
  gt rig add web https://github.com/example/web.git`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.RegisterRigUseCase().Execute(cmd.Context(), usecase.RegisterRigInput{
				Name:   args[0],
				Source: args[1],
			})
			if err != nil {
				return err
			}
			printf(cmd, "Registered rig %s at %s (default branch %s)\n", out.Rig.Name, out.Rig.Path, out.Rig.DefaultBranch)
			return nil
		},
	}
}

func newRigListCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rigs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListRigsUseCase().Execute(cmd.Context())
			if err != nil {
				return err
			}
			if len(out.Rigs) == 0 {
				printf(cmd, "No rigs registered. Use 'gt rig add <name> <path|url>'.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tBRANCH\tPATH\tREMOTE")
			for _, r := range out.Rigs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.DefaultBranch, r.Path, orDash(r.RemoteURL))
			}
			return w.Flush()
		},
	}
}

func newRigShowCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a rig and its job counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.ShowRigUseCase().Execute(cmd.Context(), usecase.ShowRigInput{Name: args[0]})
			if err != nil {
				return err
			}
			r := out.Rig
			printf(cmd, "Name:    %s\n", r.Name)
			printf(cmd, "Path:    %s\n", r.Path)
			printf(cmd, "Branch:  %s\n", r.DefaultBranch)
			printf(cmd, "Remote:  %s\n", orDash(r.RemoteURL))
			printf(cmd, "Managed: %t\n", r.Managed)
			printf(cmd, "Added:   %s\n", formatTime(r.CreatedAt))
			printf(cmd, "Jobs:   ")
			for _, s := range domain.AllBeadStatuses() {
				printf(cmd, " %s=%d", s, out.Counts[s])
			}
			printf(cmd, "\n")
			return nil
		},
	}
}

func newRigRemoveCommand(c *app.Container) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a rig registration",
		Long: `Remove a rig registration. The repository itself is not deleted.

A rig with queued or running jobs is only removed with --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.RemoveRigUseCase().Execute(cmd.Context(), usecase.RemoveRigInput{Name: args[0], Force: force}); err != nil {
				return err
			}
			printf(cmd, "Removed rig %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove even if jobs are active")
	return cmd
}
