package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newHooksCommand creates the hooks command.
func newHooksCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect job worktrees",
		Long: `Inspect hooks, the per-job git worktrees under hooks/.

A hook is orphaned when no queued or running job owns it, for example
after a crash or when it was kept for inspection.`,
	}

	cmd.AddCommand(
		newHooksListCommand(c, "list", false),
		newHooksListCommand(c, "orphans", true),
		newHooksPruneCommand(c),
	)
	return cmd
}

func newHooksListCommand(c *app.Container, use string, orphansOnly bool) *cobra.Command {
	short := "List hooks"
	if orphansOnly {
		short = "List orphaned hooks"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListHooksUseCase().Execute(cmd.Context(), usecase.ListHooksInput{OrphansOnly: orphansOnly})
			if err != nil {
				return err
			}
			if len(out.Hooks) == 0 {
				printf(cmd, "No hooks.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "JOB\tRIG\tSTATUS\tBRANCH\tPATH")
			for _, h := range out.Hooks {
				status := "no bead"
				if h.Bead != nil {
					status = string(h.Bead.Status)
				}
				if h.Info.Missing {
					status += " (missing)"
				}
				if h.Orphan {
					status += " (orphan)"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", h.Info.JobID, h.Info.Rig, status, orDash(h.Info.Branch), h.Info.Path)
			}
			return w.Flush()
		},
	}
}

func newHooksPruneCommand(c *app.Container) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove orphaned hooks",
		Long: `Remove hooks no queued or running job owns.

Without --force the orphans are only listed. Branches with commits that
are not merged are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.PruneHooksUseCase().Execute(cmd.Context(), usecase.PruneHooksInput{Force: force})
			if err != nil {
				return err
			}
			if len(out.Orphans) == 0 {
				printf(cmd, "No orphaned hooks.\n")
				return nil
			}
			for _, info := range out.Orphans {
				if err := out.Failed[info.Path]; err != nil {
					printf(cmd, "%s  failed: %v\n", info.Path, err)
					continue
				}
				printf(cmd, "%s\n", info.Path)
			}
			if !force {
				printf(cmd, "%d orphaned hook(s). Use --force to remove them.\n", len(out.Orphans))
				return nil
			}
			printf(cmd, "Removed %d hook(s)\n", out.Removed)
			if len(out.Failed) > 0 {
				return fmt.Errorf("%d hook(s) could not be removed", len(out.Failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove the orphaned hooks")

	return cmd
}
