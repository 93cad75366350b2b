package process

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	psprocess "github.com/shirou/gopsutil/v4/process"

	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// killWait bounds how long Stop waits for the reaper after SIGKILL.
var killWait = 5 * time.Second

// Stop terminates the handle's process group: SIGTERM, then SIGKILL once grace
// has elapsed. Stopping an already stopped or never spawned handle is a no-op.
func Stop(h *runstate.Handle, grace time.Duration) error {
	if h == nil || h.State() == runstate.StateStopped {
		return nil
	}
	subsystem := "Launcher-" + h.Name
	_ = h.Transition(runstate.StateStopping)

	pid := h.PID()
	if pid == 0 {
		return h.Transition(runstate.StateStopped)
	}

	if h.Alive() {
		logging.Debug(subsystem, "sending SIGTERM to process group %d", pid)
		if err := signalGroup(pid, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to signal %s (pid %d): %w", h.Name, pid, err)
		}

		timer := time.NewTimer(grace)
		select {
		case <-h.Exited():
			timer.Stop()
		case <-timer.C:
			logging.Warn(subsystem, "pid %d still running after %s, sending SIGKILL", pid, grace)
			if err := signalGroup(pid, syscall.SIGKILL); err != nil {
				return fmt.Errorf("failed to kill %s (pid %d): %w", h.Name, pid, err)
			}
			select {
			case <-h.Exited():
			case <-time.After(killWait):
				return fmt.Errorf("%s (pid %d) did not exit after SIGKILL", h.Name, pid)
			}
		}
	}

	// children left behind by the group leader
	_ = signalGroup(pid, syscall.SIGKILL)

	logging.Info(subsystem, "stopped %s (pid %d)", h.Name, pid)
	return h.Transition(runstate.StateStopped)
}

// signalGroup signals every process in the group led by pid. A group that no
// longer exists is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// OwnedGroup reports whether pid belongs to the process group led by leader.
func OwnedGroup(pid, leader int) bool {
	if pid <= 0 || leader <= 0 {
		return false
	}
	pgid, err := syscall.Getpgid(pid)
	return err == nil && pgid == leader
}

// CreateTime returns the kernel create time of pid in milliseconds since the epoch.
func CreateTime(pid int) (int64, error) {
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	return p.CreateTime()
}

// TerminatePID sends SIGTERM to a process group recorded by a previous run and
// SIGKILL after grace. It refuses to touch a pid that no longer leads its own
// group or whose create time differs from startTime, since the pid may have
// been reused.
func TerminatePID(pid int, startTime int64, grace time.Duration) error {
	if !OwnedGroup(pid, pid) {
		return fmt.Errorf("pid %d is not a process group leader started by stackctl", pid)
	}
	if startTime <= 0 {
		return fmt.Errorf("pid %d has no recorded start time, leaving it running", pid)
	}
	created, err := CreateTime(pid)
	if err != nil {
		return fmt.Errorf("pid %d: read create time: %w", pid, err)
	}
	if created != startTime {
		return fmt.Errorf("pid %d start time does not match the run record (started %s, recorded %s), leaving it running",
			pid, time.UnixMilli(created).Format(time.RFC3339), time.UnixMilli(startTime).Format(time.RFC3339))
	}
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return err
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if syscall.Kill(-pid, 0) != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return signalGroup(pid, syscall.SIGKILL)
}
