// Package process spawns stack processes in their own process groups, wires
// their output to per-run log files and terminates them by group.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stackctl/internal/config"
	"stackctl/internal/failure"
	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// For mocking in tests
var execCommand = exec.Command

// Command is a fully resolved process to spawn.
type Command struct {
	Name       string
	Kind       runstate.Kind
	Argv       []string
	WorkingDir string
	Env        []string // KEY=VALUE, the complete child environment
	LogFile    string
	Port       int
	Service    config.ServiceDefinition
}

// Launcher spawns commands and registers them with the run.
type Launcher struct {
	logDir string
	now    func() time.Time
}

// NewLauncher creates a launcher writing logs below logDir.
func NewLauncher(logDir string) *Launcher {
	return &Launcher{logDir: logDir, now: time.Now}
}

// LogPath resolves a log file name against the launcher's log directory.
func (l *Launcher) LogPath(name, logFile string) string {
	if logFile == "" {
		logFile = name + ".log"
	}
	if filepath.IsAbs(logFile) {
		return logFile
	}
	return filepath.Join(l.logDir, logFile)
}

// Launch validates def against env and spawns it. Validation failures are
// ConfigErrors and leave nothing spawned and nothing registered. On success the
// handle is registered in state and is STARTING.
func (l *Launcher) Launch(ctx context.Context, def config.ServiceDefinition, env config.Environment, state *runstate.State) (*runstate.Handle, error) {
	subsystem := "Launcher-" + def.Name

	if len(def.Command) == 0 {
		return nil, failure.Configf("add a command to the service definition", "%s has no command", def.Name)
	}
	if def.WorkingDir != "" {
		info, err := os.Stat(def.WorkingDir)
		if err != nil || !info.IsDir() {
			return nil, &failure.ConfigError{
				Msg:         fmt.Sprintf("working directory %s for %s does not exist", def.WorkingDir, def.Name),
				Remediation: "run stackctl from the repository root or fix workingDir",
				Err:         err,
			}
		}
	}
	if missing := env.Missing(def.RequiredEnv); len(missing) > 0 {
		return nil, failure.Configf(
			fmt.Sprintf("set %s in the environment or the credential file", strings.Join(missing, ", ")),
			"%s requires %s", def.Name, strings.Join(missing, ", "))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logging.Debug(subsystem, "launching %s", strings.Join(def.Command, " "))
	return l.Spawn(Command{
		Name:       def.Name,
		Kind:       runstate.KindService,
		Argv:       def.Command,
		WorkingDir: def.WorkingDir,
		Env:        config.List(env.ServiceVars(def)),
		LogFile:    def.LogFile,
		Port:       def.Port,
		Service:    def,
	}, state)
}

// Spawn starts cmd in its own process group with stdout and stderr redirected
// to a freshly truncated log file, registers the handle and starts the reaper.
func (l *Launcher) Spawn(c Command, state *runstate.State) (*runstate.Handle, error) {
	subsystem := "Launcher-" + c.Name
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("%s: empty command", c.Name)
	}

	logPath := l.LogPath(c.Name, c.LogFile)
	logFile, err := openLog(logPath)
	if err != nil {
		return nil, &failure.ConfigError{Msg: fmt.Sprintf("cannot open log file for %s", c.Name), Err: err}
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "=== stackctl run %s: %s started %s ===\n", state.ID, c.Name, l.now().Format(time.RFC3339))

	cmd := execCommand(c.Argv[0], c.Argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Dir = c.WorkingDir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s (%s): %w", c.Name, c.Argv[0], err)
	}

	h := runstate.NewHandle(c.Name, c.Kind, c.Port, logPath)
	h.Service = c.Service
	h.SetPID(cmd.Process.Pid)
	if created, err := CreateTime(cmd.Process.Pid); err == nil {
		h.SetStartTime(created)
	} else {
		logging.Debug("Launcher-"+c.Name, "create time of pid %d unavailable: %v", cmd.Process.Pid, err)
	}
	if err := state.Register(h); err != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		_ = cmd.Wait()
		return nil, err
	}

	go func() {
		err := cmd.Wait()
		if err != nil {
			logging.Debug(subsystem, "process %d exited: %v", h.PID(), err)
		} else {
			logging.Debug(subsystem, "process %d exited", h.PID())
		}
		h.MarkExited(err)
	}()

	if err := h.Transition(runstate.StateStarting); err != nil {
		return h, err
	}
	logging.Info(subsystem, "started %s (pid %d), logging to %s", c.Name, h.PID(), logPath)
	return h, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
}
