package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"stackctl/internal/failure"
)

// For mocking in tests
var osEnviron = os.Environ

// Environment is the resolved variable set: computed defaults, then the
// credential file, then the process environment.
type Environment map[string]string

// LoadEnvFile reads the credential file. A missing file is a ConfigError that
// names the file.
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &failure.ConfigError{
				Msg:         fmt.Sprintf("credential file %s not found", path),
				Remediation: fmt.Sprintf("create %s with a line %s=<your key>", path, OpenAIKeyVar),
			}
		}
		return nil, &failure.ConfigError{Msg: fmt.Sprintf("cannot read credential file %s", path), Err: err}
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, &failure.ConfigError{
			Msg:         fmt.Sprintf("cannot parse credential file %s", path),
			Remediation: "use KEY=value lines",
			Err:         err,
		}
	}
	return vars, nil
}

// ResolveEnvironment applies environment overrides to cfg and returns the
// environment handed to every child process.
func ResolveEnvironment(cfg *StackConfig, fileVars map[string]string) Environment {
	overlay := make(map[string]string, len(fileVars))
	for k, v := range fileVars {
		overlay[k] = v
	}
	for _, kv := range osEnviron() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			overlay[k] = v
		}
	}

	ApplyOverrides(cfg, overlay)

	env := Environment(defaultEnvironment(*cfg))
	for k, v := range overlay {
		env[k] = v
	}
	return env
}

// ApplyOverrides maps the documented environment variables onto cfg.
func ApplyOverrides(cfg *StackConfig, vars map[string]string) {
	if v, ok := vars["USE_TUNNEL"]; ok {
		if enabled, ok := parseFlag(v); ok {
			cfg.Tunnel.Enabled = &enabled
		}
	}
	if v := vars["TUNNEL_TARGET"]; v != "" {
		cfg.Tunnel.Target = v
	}
	if v := vars["TUNNEL_REMOTE_HOST"]; v != "" {
		cfg.Tunnel.RemoteHost = v
	}
	if v := vars["AWS_PROFILE"]; v != "" {
		cfg.Tunnel.Profile = v
	}
	if v := vars["AWS_REGION"]; v != "" && cfg.Tunnel.Region == "" {
		cfg.Tunnel.Region = v
	}
}

func parseFlag(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "on":
		return true, true
	case "no", "n", "off":
		return false, true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// Expand substitutes ${VAR} references using the environment.
func (e Environment) Expand(s string) string {
	return os.Expand(s, func(key string) string { return e[key] })
}

// Missing returns the names that are absent or blank.
func (e Environment) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(e[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// ServiceVars returns the full variable set for def: the environment plus the
// service's own expanded entries.
func (e Environment) ServiceVars(def ServiceDefinition) map[string]string {
	vars := make(map[string]string, len(e)+len(def.Env))
	for k, v := range e {
		vars[k] = v
	}
	for k, v := range def.Env {
		vars[k] = e.Expand(v)
	}
	return vars
}

// List renders vars as a sorted KEY=VALUE slice for exec.Cmd.Env.
func List(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
