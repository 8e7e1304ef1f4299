package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// jobLister answers /status at the mayor prompt.
type jobLister interface {
	Status(ctx context.Context, jobID string) (domain.Job, error)
	Jobs(ctx context.Context) ([]domain.Job, error)
}

// newMayorCommand creates the mayor command.
func newMayorCommand(c *app.Container) *cobra.Command {
	var readStdin bool

	cmd := &cobra.Command{
		Use:   "mayor",
		Short: "Run the coordinator loop",
		Long: `Run the mayor, the loop that admits, submits and polls jobs.

On start it picks up jobs left by a previous run: queued jobs are
queued again and running jobs are polled (or marked failed, per the
[recovery] policy). Orphaned hooks are reported.

The mayor reads commands written by 'gt spawn', 'gt cancel', 'gt quit'
and 'gt convoy dispatch'. When stdin is a terminal (or with --stdin) it
also accepts slash commands typed at its prompt; type /help for a list.

Interrupting the mayor stops it like 'gt quit': remote jobs keep running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m, err := c.NewMayor()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			interactive := isTerminal(in)
			var commands <-chan domain.OperatorCommand
			if readStdin || interactive {
				commands = readOperatorCommands(ctx, cmd, in, m, interactive)
			}

			c.Logger.Info("mayor started", "workspace", c.Config.Root, "max_concurrent", c.AppConfig.MaxConcurrentAgents)
			err = c.RunMayorUseCase(m).Execute(ctx, usecase.RunMayorInput{
				Commands:      commands,
				WatchInterval: c.AppConfig.PollInterval,
				OnError: func(oc domain.OperatorCommand, err error) {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", oc.Kind, err)
				},
			})
			if err != nil {
				return err
			}
			c.Logger.Info("mayor stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&readStdin, "stdin", false, "Read slash commands from stdin even when it is not a terminal")

	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// readOperatorCommands parses lines from r until EOF or ctx is done.
// Status queries and help are answered here; the returned channel
// carries everything else.
func readOperatorCommands(ctx context.Context, cmd *cobra.Command, r io.Reader, jobs jobLister, prompt bool) <-chan domain.OperatorCommand {
	out := make(chan domain.OperatorCommand)
	w := cmd.OutOrStdout()
	errW := cmd.ErrOrStderr()

	go func() {
		defer close(out)
		if prompt {
			_, _ = fmt.Fprint(w, "Type /help for commands.\n> ")
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line, err := parseOperatorLine(scanner.Text())
			switch {
			case err != nil:
				if scanner.Text() != "" {
					_, _ = fmt.Fprintln(errW, err)
				}
			case line.Help:
				_, _ = fmt.Fprint(w, operatorHelp)
			case line.Status:
				if err := printJobs(ctx, w, jobs, line.StatusID); err != nil {
					_, _ = fmt.Fprintln(errW, err)
				}
			default:
				select {
				case out <- line.Cmd:
				case <-ctx.Done():
					return
				}
			}
			if prompt {
				_, _ = fmt.Fprint(w, "> ")
			}
		}
	}()
	return out
}

func printJobs(ctx context.Context, w io.Writer, jobs jobLister, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var list []domain.Job
	if id != "" {
		j, err := jobs.Status(ctx, id)
		if err != nil {
			return err
		}
		list = []domain.Job{j}
	} else {
		all, err := jobs.Jobs(ctx)
		if err != nil {
			return err
		}
		list = all
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(w, "No jobs.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATE\tRIG\tSTEP\tTASK")
	for _, j := range list {
		step := j.Step
		if j.IsTerminal() && j.LastError != nil {
			step = j.ErrorText()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Display(), j.Rig, truncate(orDash(step), 40), truncate(j.Task, 40))
	}
	return tw.Flush()
}
