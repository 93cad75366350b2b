package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"

	"stackctl/internal/color"
	"stackctl/internal/config"
	"stackctl/internal/tunnel"
	"stackctl/pkg/logging"
)

// Application is the main application structure that bootstraps and runs stackctl
type Application struct {
	config *Config
	stack  config.StackConfig

	creds   tunnel.CredentialChecker
	confirm func(title, description string) (bool, error)
}

// NewApplication creates and initializes a new application instance
func NewApplication(cfg *Config) (*Application, error) {
	// Configure logging based on debug flag
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	logging.Init(appLogLevel, logging.Format(cfg.LogFormat), os.Stderr)

	color.InitializeFromEnv()
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var stack config.StackConfig
	var err error

	if cfg.ConfigPath != "" {
		stack, err = config.LoadConfigFromPath(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load stackctl configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load stackctl configuration from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Debug("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
	} else {
		stack, err = config.LoadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load stackctl configuration")
			return nil, fmt.Errorf("failed to load stackctl configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	if cfg.EnvFile != "" {
		stack.EnvFile = cfg.EnvFile
	}

	return &Application{
		config:  cfg,
		stack:   stack,
		creds:   tunnel.STSChecker{},
		confirm: confirmPrompt,
	}, nil
}

// resolveEnvironment reads the credential file, applies overrides and the
// --no-tunnel flag, and validates the result. Nothing has been spawned when
// it fails.
func (a *Application) resolveEnvironment() (config.StackConfig, config.Environment, error) {
	stack := a.stack

	fileVars, err := config.LoadEnvFile(stack.EnvFile)
	if err != nil {
		return stack, nil, err
	}
	env := config.ResolveEnvironment(&stack, fileVars)

	if a.config.NoTunnel {
		disabled := false
		stack.Tunnel.Enabled = &disabled
	}
	if err := config.Validate(stack); err != nil {
		return stack, nil, err
	}
	return stack, env, nil
}

func (a *Application) recordPath() string {
	return filepath.Join(a.stack.LogDir, "run.json")
}

func confirmPrompt(title, description string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes, remove").
				Negative("No, keep them").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
