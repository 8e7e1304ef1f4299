package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newSpawnCommand creates the spawn command.
func newSpawnCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Rig     string
		Base    string
		Context []string
		Direct  bool
	}

	cmd := &cobra.Command{
		Use:   "spawn --rig <rig> <task>",
		Short: "Spawn a job",
		Long: `Spawn a job for a rig.

The request is written to the workspace inbox and picked up by the
running mayor, which queues it until a concurrency slot is free.

With --direct the job is submitted immediately from this process,
without a mayor. It is recorded as running so the next mayor start
polls it to completion. It is refused while max_concurrent_agents jobs
are already running in the workspace.`,
		Example: `  gt spawn --rig api "add pagination to /users"
  gt spawn --rig api --context docs/api.md "document the error codes"
  gt spawn --rig web --direct "fix the flaky login test"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")

			if opts.Direct {
				uc, err := c.SubmitDirectUseCase()
				if err != nil {
					return err
				}
				out, err := uc.Execute(cmd.Context(), usecase.SubmitDirectInput{
					Rig:          opts.Rig,
					Task:         task,
					BaseRef:      opts.Base,
					ContextFiles: opts.Context,
				})
				if err != nil {
					if out != nil {
						printf(cmd, "Job %s failed\n", out.Bead.ID)
					}
					return err
				}
				printf(cmd, "Submitted job %s (remote %s) on branch %s\n", out.Bead.ID, out.Bead.Handle, out.Bead.BranchName)
				return nil
			}

			out, err := c.SpawnJobUseCase().Execute(cmd.Context(), usecase.SpawnJobInput{
				Rig:          opts.Rig,
				Task:         task,
				BaseRef:      opts.Base,
				ContextFiles: opts.Context,
			})
			if err != nil {
				return err
			}
			printf(cmd, "Spawned job %s\n", out.JobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Rig, "rig", "", "Rig to run the job against (required)")
	cmd.Flags().StringVar(&opts.Base, "base", "", "Base branch or commit (default: the rig's default branch)")
	cmd.Flags().StringArrayVar(&opts.Context, "context", nil, "Context file for the agent (can specify multiple)")
	cmd.Flags().BoolVar(&opts.Direct, "direct", false, "Submit now without a running mayor")
	_ = cmd.MarkFlagRequired("rig")

	return cmd
}

// newStatusCommand creates the status command.
func newStatusCommand(c *app.Container) *cobra.Command {
	var asJSON, withEvents bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := c.ShowBeadUseCase()
			if err != nil {
				return err
			}
			out, err := uc.Execute(cmd.Context(), usecase.ShowBeadInput{ID: args[0], WithEvents: withEvents})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Bead)
			}
			printBead(cmd, out.Bead)
			if withEvents {
				printf(cmd, "\nEvents:\n")
				printEvents(cmd, out.Events)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the bead as JSON")
	cmd.Flags().BoolVar(&withEvents, "events", false, "Include the job's events")

	return cmd
}

func printBead(cmd *cobra.Command, b *domain.Bead) {
	printf(cmd, "Job:      %s\n", b.ID)
	printf(cmd, "Status:   %s\n", b.Status)
	printf(cmd, "Rig:      %s\n", orDash(b.Rig))
	printf(cmd, "Task:     %s\n", orDash(b.Task))
	printf(cmd, "Branch:   %s\n", b.BranchName)
	printf(cmd, "Created:  %s\n", formatTime(b.CreatedAt))
	printf(cmd, "Updated:  %s\n", formatTime(b.UpdatedAt))
	if b.CompletedAt != nil {
		printf(cmd, "Finished: %s\n", formatTime(*b.CompletedAt))
	}
	if b.Handle != "" {
		printf(cmd, "Remote:   %s\n", b.Handle)
	}
	if b.ConvoyID != "" {
		printf(cmd, "Convoy:   %s\n", b.ConvoyID)
	}
	if b.HookPath != "" {
		printf(cmd, "Hook:     %s\n", b.HookPath)
	}
	if b.RetryCount > 0 {
		printf(cmd, "Retries:  %d\n", b.RetryCount)
	}
	if b.Summary != "" {
		printf(cmd, "Summary:  %s\n", b.Summary)
	}
	if b.DiffRef != "" {
		printf(cmd, "Diff:     %s\n", b.DiffRef)
	}
	if len(b.FilesChanged) > 0 {
		printf(cmd, "Files:    %s\n", strings.Join(b.FilesChanged, ", "))
	}
	if b.Error != "" {
		printf(cmd, "Error:    %s\n", b.Error)
	}
}

// newCancelCommand creates the cancel command.
func newCancelCommand(c *app.Container) *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Long: `Cancel a queued or running job.

The running mayor releases the job's hook and asks the remote service
to stop it. With --wait the command blocks until the job's bead
records the cancellation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.CancelJobUseCase().Execute(cmd.Context(), usecase.CancelJobInput{
				JobID:   args[0],
				Wait:    wait,
				Timeout: timeout,
			})
			if err != nil {
				return err
			}
			if wait {
				printf(cmd, "Job %s is %s\n", out.Bead.ID, out.Bead.Status)
				return nil
			}
			printf(cmd, "Cancellation of %s requested\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the job is terminal")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Maximum time to wait with --wait")

	return cmd
}

// newQuitCommand creates the quit command.
func newQuitCommand(c *app.Container) *cobra.Command {
	var drain bool

	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Stop the running mayor",
		Long: `Stop the running mayor.

Without --drain, jobs already accepted by the remote service keep
running and are picked up again by the next mayor start. With --drain,
every queued and running job is cancelled first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.QuitMayorUseCase().Execute(cmd.Context(), usecase.QuitMayorInput{Drain: drain}); err != nil {
				return err
			}
			verb := "Quit"
			if drain {
				verb = "Drain"
			}
			printf(cmd, "%s requested\n", verb)
			return nil
		},
	}

	cmd.Flags().BoolVar(&drain, "drain", false, "Cancel all jobs before stopping")

	return cmd
}

func printEvents(cmd *cobra.Command, events []domain.Event) {
	if len(events) == 0 {
		printf(cmd, "No events.\n")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-12s %s", formatTime(ev.CreatedAt), ev.Type, ev.JobID)
		if ev.Detail != "" {
			line += "  " + truncate(ev.Detail, 80)
		}
		printf(cmd, "%s\n", line)
	}
}
