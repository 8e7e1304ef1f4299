package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newBeadsCommand creates the beads command.
func newBeadsCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beads",
		Short: "Inspect job records",
		Long:  `Inspect beads, the persistent records of job outcomes.`,
	}

	cmd.AddCommand(
		newBeadsListCommand(c),
		newBeadsShowCommand(c),
		newBeadsPruneCommand(c),
	)
	return cmd
}

func newBeadsListCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Rig      string
		Convoy   string
		Statuses []string
		Limit    int
		JSON     bool
	}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List beads",
		Example: `  gt beads list --status running
  gt beads list --rig api --status completed,failed --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := parseStatuses(opts.Statuses)
			if err != nil {
				return err
			}
			out, err := c.ListBeadsUseCase().Execute(cmd.Context(), usecase.ListBeadsInput{
				Rig:      opts.Rig,
				ConvoyID: opts.Convoy,
				Statuses: statuses,
				Limit:    opts.Limit,
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), out.Beads)
			}
			if len(out.Beads) == 0 {
				printf(cmd, "No beads.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tRIG\tUPDATED\tTASK")
			for _, b := range out.Beads {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Status, orDash(b.Rig), formatTime(b.UpdatedAt), truncate(b.Task, 50))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.Rig, "rig", "", "Filter by rig")
	cmd.Flags().StringVar(&opts.Convoy, "convoy", "", "Filter by convoy id")
	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "Filter by status ("+statusNames()+")")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Show only the newest N beads")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print as JSON")

	return cmd
}

func newBeadsShowCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a bead with its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := c.ShowBeadUseCase()
			if err != nil {
				return err
			}
			out, err := uc.Execute(cmd.Context(), usecase.ShowBeadInput{ID: args[0], WithEvents: true})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Bead)
			}
			printBead(cmd, out.Bead)
			printf(cmd, "\nEvents:\n")
			printEvents(cmd, out.Events)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the bead as JSON")

	return cmd
}

func newBeadsPruneCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Statuses  []string
		OlderThan time.Duration
		DryRun    bool
	}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished beads",
		Long: `Delete completed, failed and cancelled beads.

Queued and running beads are never pruned.`,
		Example: `  gt beads prune --older-than 168h
  gt beads prune --status cancelled --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := parseStatuses(opts.Statuses)
			if err != nil {
				return err
			}
			out, err := c.PruneBeadsUseCase().Execute(cmd.Context(), usecase.PruneBeadsInput{
				Statuses:  statuses,
				OlderThan: opts.OlderThan,
				DryRun:    opts.DryRun,
			})
			if err != nil {
				return err
			}

			for _, b := range out.Pruned {
				printf(cmd, "%s  %s  %s\n", b.ID, b.Status, truncate(b.Task, 60))
			}
			if out.DryRun {
				printf(cmd, "Would prune %d bead(s)\n", len(out.Pruned))
				return nil
			}
			printf(cmd, "Pruned %d bead(s)\n", len(out.Pruned))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "Only prune these terminal statuses")
	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 0, "Only prune beads finished at least this long ago")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be pruned")

	return cmd
}
