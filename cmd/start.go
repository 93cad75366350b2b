package cmd

import (
	"github.com/spf13/cobra"

	"stackctl/internal/app"
)

func newStartCmd() *cobra.Command {
	var noTunnel bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tunnel and every service, then supervise them",
		Long: `Starts the stack and blocks until interrupted.

Sequence:
  1. Load the credential file and check required variables
  2. Start the SSM tunnel and wait for its local port (skipped with --no-tunnel
     or USE_TUNNEL=false)
  3. Start each service in dependency order, waiting for its health endpoint
  4. Supervise: any process exit or failed re-probe tears the stack down

Ctrl+C stops every process and the tunnel. Logs are written per service under
the configured log directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(func(c *app.Config) {
				c.NoTunnel = noTunnel
				c.MetricsAddr = metricsAddr
			})
			if err != nil {
				return err
			}
			return application.Start(commandContext(cmd))
		},
	}

	cmd.Flags().BoolVar(&noTunnel, "no-tunnel", false, "Do not start the SSM tunnel; the data store must be reachable directly")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. localhost:9090")
	return cmd
}
