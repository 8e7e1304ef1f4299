package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/infra/convoystore"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newConvoyCommand creates the convoy command.
func newConvoyCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convoy",
		Short: "Manage batches of tasks",
		Long: `Manage convoys, ordered batches of tasks for one rig.

A convoy is dispatched with a count: the mayor keeps at most that many
of its jobs in flight and spawns the next task each time one finishes.`,
	}

	cmd.AddCommand(
		newConvoyCreateCommand(c),
		newConvoyListCommand(c),
		newConvoyStatusCommand(c),
		newConvoyDispatchCommand(c),
	)
	return cmd
}

func newConvoyCreateCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Rig   string
		From  string
		Tasks []string
	}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a convoy",
		Example: `  gt convoy create deps --rig api --task "bump go-git" --task "bump cobra"
  gt convoy create cleanup --from tasks.yaml

Task file format (either form):
  - fix lint warnings in pkg/a
  - fix lint warnings in pkg/b

  name: cleanup
  rig: api
  tasks:
    - fix lint warnings in pkg/a`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := usecase.CreateConvoyInput{Rig: opts.Rig, Tasks: opts.Tasks}
			if len(args) == 1 {
				in.Name = args[0]
			}

			if opts.From != "" {
				if len(opts.Tasks) > 0 {
					return errors.New("cannot use --task with --from")
				}
				tf, err := convoystore.ReadTaskFile(opts.From)
				if err != nil {
					return err
				}
				in.Tasks = tf.Tasks
				if in.Name == "" {
					in.Name = tf.Name
				}
				if in.Rig == "" {
					in.Rig = tf.Rig
				}
			}
			if in.Rig == "" {
				return fmt.Errorf("%w: --rig is required", domain.ErrUnknownRig)
			}

			out, err := c.CreateConvoyUseCase().Execute(cmd.Context(), in)
			if err != nil {
				return err
			}
			printf(cmd, "Created convoy %s (%s) with %d task(s)\n", out.Convoy.ID, out.Convoy.Name, len(out.Convoy.Tasks))
			printf(cmd, "Dispatch it with: gt convoy dispatch %s --count N\n", out.Convoy.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Rig, "rig", "", "Rig the tasks run against")
	cmd.Flags().StringArrayVar(&opts.Tasks, "task", nil, "Task description (can specify multiple)")
	cmd.Flags().StringVar(&opts.From, "from", "", "Read tasks from a YAML file")

	return cmd
}

func newConvoyListCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List convoys",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListConvoysUseCase().Execute(cmd.Context())
			if err != nil {
				return err
			}
			if len(out.Convoys) == 0 {
				printf(cmd, "No convoys.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tRIG\tSTATE\tDONE\tCREATED")
			for _, st := range out.Convoys {
				done := st.Counts[domain.BeadCompleted] + st.Counts[domain.BeadFailed] + st.Counts[domain.BeadCancelled]
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					st.Convoy.ID, st.Convoy.Name, st.Convoy.Rig, st.State, done, st.Total, formatTime(st.Convoy.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func newConvoyStatusCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "status <convoy-id>",
		Short: "Show the progress of a convoy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.ConvoyStatusUseCase().Execute(cmd.Context(), usecase.ConvoyStatusInput{ID: args[0]})
			if err != nil {
				return err
			}
			st := out.Status
			printf(cmd, "Convoy: %s (%s)\n", st.Convoy.ID, st.Convoy.Name)
			printf(cmd, "Rig:    %s\n", st.Convoy.Rig)
			printf(cmd, "State:  %s\n", st.State)
			printf(cmd, "Tasks: ")
			for _, s := range domain.AllBeadStatuses() {
				printf(cmd, " %s=%d", s, st.Counts[s])
			}
			printf(cmd, "\n\n")

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tJOB\tSTATUS\tTASK")
			for i, t := range st.Convoy.Tasks {
				status := "pending"
				if b := out.Beads[t.JobID]; b != nil {
					status = string(b.Status)
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, orDash(t.JobID), status, truncate(t.Description, 60))
			}
			return w.Flush()
		},
	}
}

func newConvoyDispatchCommand(c *app.Container) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "dispatch <convoy-id>",
		Short: "Start feeding a convoy to the mayor",
		Long: `Start feeding a convoy's pending tasks to the running mayor with at
most --count of its jobs in flight. Dispatching again changes the count
and resumes tasks that were not spawned yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.DispatchConvoyUseCase().Execute(cmd.Context(), usecase.DispatchConvoyInput{ID: args[0], Count: count})
			if err != nil {
				return err
			}
			printf(cmd, "Dispatched convoy %s: %d pending task(s), %d at a time\n", args[0], out.Pending, count)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Maximum number of the convoy's jobs in flight")

	return cmd
}
