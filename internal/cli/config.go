package cli

import (
	"github.com/runoshun/gastown/internal/app"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/infra/config"
	"github.com/runoshun/gastown/internal/usecase"
	"github.com/spf13/cobra"
)

// newConfigCommand creates the config command.
func newConfigCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Manage gastown configuration files and settings.`,
		// No RunE: shows subcommand list when called without arguments
	}

	cmd.AddCommand(newConfigShowCommand(c))

	return cmd
}

// newConfigShowCommand creates the config show subcommand.
func newConfigShowCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration",
		Long: `Display effective configuration after merging all sources.

Shows which config files were loaded, any keys that were ignored,
and the final merged configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc := c.ShowConfigUseCase()
			out, err := uc.Execute(cmd.Context(), usecase.ShowConfigInput{})
			if err != nil {
				return err
			}

			printf(cmd, "[Loaded from]\n")
			for _, info := range []domain.ConfigInfo{out.GlobalConfig, out.WorkspaceConfig} {
				if info.Path == "" {
					continue
				}
				if info.Exists {
					printf(cmd, "- %s\n", info.Path)
				} else {
					printf(cmd, "- %s (not found)\n", info.Path)
				}
			}

			if len(out.Effective.Warnings) > 0 {
				printf(cmd, "\n[Warnings]\n")
				for _, w := range out.Effective.Warnings {
					printf(cmd, "- %s\n", w)
				}
			}

			printf(cmd, "\n[Effective Config]\n%s", config.RenderTemplate(out.Effective))
			return nil
		},
	}
}
