package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/stackctl"
	projectConfigDir = ".stackctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the stackctl configuration by layering default, user, and project settings.
func LoadConfig() (StackConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// user config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
		userConfig, err := loadConfigFromFile(userConfigPath)
		if err != nil {
			return StackConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
		config = mergeConfigs(config, userConfig)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
		projectConfig, err := loadConfigFromFile(projectConfigPath)
		if err != nil {
			return StackConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
		config = mergeConfigs(config, projectConfig)
	}

	return config, nil
}

// LoadConfigFromPath loads a single explicit config file on top of the defaults.
// Unlike the layered loader a missing file is an error.
func LoadConfigFromPath(path string) (StackConfig, error) {
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return StackConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return mergeConfigs(GetDefaultConfig(), overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a StackConfig from a YAML file.
func loadConfigFromFile(filePath string) (StackConfig, error) {
	var config StackConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return StackConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return StackConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Scalars override
// when set; services are replaced by name and keep base order, with new
// services appended in overlay order.
func mergeConfigs(base, overlay StackConfig) StackConfig {
	merged := base

	if overlay.EnvFile != "" {
		merged.EnvFile = overlay.EnvFile
	}
	if overlay.LogDir != "" {
		merged.LogDir = overlay.LogDir
	}
	if overlay.RequiredEnv != nil {
		merged.RequiredEnv = overlay.RequiredEnv
	}

	merged.Tunnel = mergeTunnel(base.Tunnel, overlay.Tunnel)

	if len(overlay.Services) > 0 {
		index := make(map[string]int, len(base.Services))
		services := make([]ServiceDefinition, len(base.Services))
		copy(services, base.Services)
		for i, svc := range services {
			index[svc.Name] = i
		}
		for _, svc := range overlay.Services {
			if i, ok := index[svc.Name]; ok {
				services[i] = svc
				continue
			}
			index[svc.Name] = len(services)
			services = append(services, svc)
		}
		merged.Services = services
	}

	if overlay.Supervisor.PollInterval != 0 {
		merged.Supervisor.PollInterval = overlay.Supervisor.PollInterval
	}
	if overlay.Supervisor.Reprobe {
		merged.Supervisor.Reprobe = true
	}
	if overlay.Supervisor.FailureThreshold != 0 {
		merged.Supervisor.FailureThreshold = overlay.Supervisor.FailureThreshold
	}
	if overlay.Supervisor.LogTailLines != 0 {
		merged.Supervisor.LogTailLines = overlay.Supervisor.LogTailLines
	}

	if overlay.Cleanup.GracePeriod != 0 {
		merged.Cleanup.GracePeriod = overlay.Cleanup.GracePeriod
	}
	if overlay.Cleanup.ForceReleasePorts {
		merged.Cleanup.ForceReleasePorts = true
	}
	if overlay.Cleanup.StopCompose {
		merged.Cleanup.StopCompose = true
	}

	if overlay.Compose.File != "" {
		merged.Compose.File = overlay.Compose.File
	}
	if overlay.Compose.ProjectName != "" {
		merged.Compose.ProjectName = overlay.Compose.ProjectName
	}

	return merged
}

func mergeTunnel(base, overlay TunnelDefinition) TunnelDefinition {
	merged := base
	if overlay.Enabled != nil {
		merged.Enabled = overlay.Enabled
	}
	if overlay.Target != "" {
		merged.Target = overlay.Target
	}
	if overlay.RemoteHost != "" {
		merged.RemoteHost = overlay.RemoteHost
	}
	if overlay.RemotePort != 0 {
		merged.RemotePort = overlay.RemotePort
	}
	if overlay.LocalPort != 0 {
		merged.LocalPort = overlay.LocalPort
	}
	if overlay.Profile != "" {
		merged.Profile = overlay.Profile
	}
	if overlay.Region != "" {
		merged.Region = overlay.Region
	}
	if overlay.DocumentName != "" {
		merged.DocumentName = overlay.DocumentName
	}
	if overlay.LogFile != "" {
		merged.LogFile = overlay.LogFile
	}
	if overlay.Readiness != (HealthCheckDefinition{}) {
		merged.Readiness = overlay.Readiness
	}
	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
