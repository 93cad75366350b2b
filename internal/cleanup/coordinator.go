// Package cleanup tears a run down exactly once: services in reverse start
// order, the tunnel, leftover port listeners, compose counterparts, then
// RunState.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"

	"stackctl/internal/compose"
	"stackctl/internal/config"
	"stackctl/internal/process"
	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// ListenerFinder returns the PIDs listening on a local TCP port.
type ListenerFinder func(ctx context.Context, port int) ([]int32, error)

// Options wires optional collaborators into a Coordinator.
type Options struct {
	Compose       *compose.Runner
	RecordPath    string // run file removed once everything is down
	FindListeners ListenerFinder
}

// Coordinator owns teardown for one RunState.
type Coordinator struct {
	state    *runstate.State
	settings config.CleanupSettings
	compose  *compose.Runner
	record   string
	find     ListenerFinder
}

// New creates a coordinator for state.
func New(state *runstate.State, settings config.CleanupSettings, opts Options) *Coordinator {
	if settings.GracePeriod <= 0 {
		settings.GracePeriod = 5 * time.Second
	}
	find := opts.FindListeners
	if find == nil {
		find = FindListeners
	}
	return &Coordinator{
		state:    state,
		settings: settings,
		compose:  opts.Compose,
		record:   opts.RecordPath,
		find:     find,
	}
}

// Cleanup runs the teardown. Only the first call does any work; later calls
// return nil. Every step is attempted and all step errors are joined.
func (c *Coordinator) Cleanup(ctx context.Context) error {
	if !c.state.BeginCleanup() {
		logging.Debug("Cleanup", "already performed for run %s", c.state.ID)
		return nil
	}
	if c.state.Empty() {
		logging.Debug("Cleanup", "run %s has no processes to stop", c.state.ID)
	} else {
		logging.Info("Cleanup", "stopping run %s", c.state.ID)
	}

	var errs []error
	services := c.state.Services()
	for i := len(services) - 1; i >= 0; i-- {
		if err := process.Stop(services[i], c.settings.GracePeriod); err != nil {
			errs = append(errs, err)
		}
	}

	if tunnel := c.state.Tunnel(); tunnel != nil {
		if err := process.Stop(tunnel, c.settings.GracePeriod); err != nil {
			errs = append(errs, fmt.Errorf("tunnel: %w", err))
		}
	}

	// Ports are reclaimed only once every handle has had its graceful stop;
	// an owned listener still present here is killed with its whole group.
	for _, h := range c.state.All() {
		if h.Port <= 0 {
			continue
		}
		if err := c.Release(ctx, h.Port); err != nil {
			errs = append(errs, err)
		}
	}

	if c.settings.StopCompose && c.compose.Configured() {
		if err := c.compose.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if c.record != "" {
		if err := os.Remove(c.record); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove run record: %w", err))
		}
	}

	c.state.Clear()

	err := errors.Join(errs...)
	if err != nil {
		logging.Error("Cleanup", err, "cleanup finished with errors")
	} else {
		logging.Info("Cleanup", "all processes stopped")
	}
	return err
}

// Release frees a reserved port. Listeners in a process group owned by this
// run are killed; a foreign listener is only killed when ForceReleasePorts is
// set and is otherwise reported and left running.
func (c *Coordinator) Release(ctx context.Context, port int) error {
	pids, err := c.find(ctx, port)
	if err != nil {
		return fmt.Errorf("release port %d: %w", port, err)
	}

	var errs []error
	for _, pid32 := range pids {
		pid := int(pid32)
		if pid <= 0 || pid == os.Getpid() {
			continue
		}
		if leader, ok := c.owner(pid); ok {
			logging.Info("Cleanup", "killing leftover listener pid %d on port %d (group %d)", pid, port, leader)
			if err := killGroup(leader); err != nil {
				errs = append(errs, fmt.Errorf("release port %d: %w", port, err))
			}
			continue
		}
		if !c.settings.ForceReleasePorts {
			logging.Warn("Cleanup", "port %d is held by pid %d which this run does not own, leaving it running", port, pid)
			continue
		}
		logging.Warn("Cleanup", "force-killing pid %d on port %d", pid, port)
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			errs = append(errs, fmt.Errorf("release port %d: %w", port, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) owner(pid int) (int, bool) {
	for _, h := range c.state.All() {
		if leader := h.PID(); process.OwnedGroup(pid, leader) {
			return leader, true
		}
	}
	return 0, false
}

func killGroup(pgid int) error {
	err := syscall.Kill(-pgid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// FindListeners lists the PIDs in LISTEN state on a local TCP port.
func FindListeners(ctx context.Context, port int) ([]int32, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	var pids []int32
	seen := make(map[int32]bool)
	for _, conn := range conns {
		if conn.Status != "LISTEN" || int(conn.Laddr.Port) != port || conn.Pid == 0 || seen[conn.Pid] {
			continue
		}
		seen[conn.Pid] = true
		pids = append(pids, conn.Pid)
	}
	return pids, nil
}
