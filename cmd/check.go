package cmd

import (
	"github.com/spf13/cobra"

	"stackctl/internal/app"
)

func newCheckCmd() *cobra.Command {
	var noTunnel bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the preflight checks without starting anything",
		Long: `Verifies the credential file, required environment variables, the AWS
session tooling and the identity of the tunnel's AWS profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(func(c *app.Config) { c.NoTunnel = noTunnel })
			if err != nil {
				return err
			}
			return application.Check(commandContext(cmd))
		},
	}

	cmd.Flags().BoolVar(&noTunnel, "no-tunnel", false, "Skip the tunnel checks")
	return cmd
}
