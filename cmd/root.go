package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stackctl/internal/app"
	"stackctl/internal/failure"
)

// Global flags shared by every subcommand.
var (
	configPath string
	envFile    string
	debug      bool
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Run the agent stack locally with its data-store tunnel",
	Long: `stackctl starts the local agent stack in dependency order: the SSM tunnel to
the remote search domain, the tool server, the search and expert agents and
finally the main agent. Each process is health-checked before anything that
depends on it starts, and the whole group is torn down on exit.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. missing credentials, failed health checks)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// The process exit code reflects the kind of failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "stackctl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(failure.ExitCode(err))
	}
}

// newApplication builds the application from the global flags.
func newApplication(mutate func(*app.Config)) (*app.Application, error) {
	cfg := app.NewConfig(configPath, debug)
	cfg.EnvFile = envFile
	cfg.LogFormat = logFormat
	if mutate != nil {
		mutate(cfg)
	}
	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: layered ~/.config/stackctl and ./.stackctl, or $STACKCTL_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Credential file to load (default from config, \".env\")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (or $STACKCTL_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}
