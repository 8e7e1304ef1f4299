package cli

import (
	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newEventsCommand creates the events command.
func newEventsCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Type  string
		Limit int
		JSON  bool
	}

	cmd := &cobra.Command{
		Use:   "events [job-id]",
		Short: "Show the event journal",
		Long: `Show the journal of job transitions, newest first.

Without a job id, events of every job are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := usecase.ShowEventsInput{Type: opts.Type, Limit: opts.Limit}
			if len(args) == 1 {
				in.JobID = args[0]
			}
			uc, err := c.ShowEventsUseCase()
			if err != nil {
				return err
			}
			out, err := uc.Execute(cmd.Context(), in)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), out.Events)
			}
			printEvents(cmd, out.Events)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Only events of this type")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", usecase.DefaultEventLimit, "Maximum number of events")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print as JSON")

	return cmd
}
