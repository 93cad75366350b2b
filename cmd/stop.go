package cmd

import (
	"github.com/spf13/cobra"

	"stackctl/internal/app"
)

func newStopCmd() *cobra.Command {
	var removeImages bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a stack left running and take compose services down",
		Long: `Terminates the processes recorded by the last run (logDir/run.json), after
checking each one still leads its own process group, then runs
"docker compose down" when a compose file is configured.

With --remove-images, locally built images are removed as well after a
confirmation prompt; --yes skips the prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(func(c *app.Config) {
				c.RemoveImages = removeImages
				c.Yes = yes
			})
			if err != nil {
				return err
			}
			return application.Stop(commandContext(cmd))
		},
	}

	cmd.Flags().BoolVar(&removeImages, "remove-images", false, "Also remove images built by docker compose")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
