package cmd

import (
	"github.com/spf13/cobra"

	"stackctl/internal/app"
)

func newStatusCmd() *cobra.Command {
	var noTunnel bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe every configured endpoint once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(func(c *app.Config) { c.NoTunnel = noTunnel })
			if err != nil {
				return err
			}
			return application.Status(commandContext(cmd))
		},
	}

	cmd.Flags().BoolVar(&noTunnel, "no-tunnel", false, "Do not probe the tunnel port")
	return cmd
}
