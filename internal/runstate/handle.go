package runstate

import (
	"fmt"
	"sync"

	"stackctl/internal/config"
)

// Lifecycle is the state of one managed process.
type Lifecycle string

const (
	StateNotStarted Lifecycle = "NOT_STARTED"
	StateStarting   Lifecycle = "STARTING"
	StateReady      Lifecycle = "READY"
	StateRunning    Lifecycle = "RUNNING"
	StateFailed     Lifecycle = "FAILED"
	StateStopping   Lifecycle = "STOPPING"
	StateStopped    Lifecycle = "STOPPED"
)

var transitions = map[Lifecycle][]Lifecycle{
	StateNotStarted: {StateStarting, StateStopping},
	StateStarting:   {StateReady, StateFailed, StateStopping},
	StateReady:      {StateRunning, StateFailed, StateStopping},
	StateRunning:    {StateFailed, StateStopping},
	StateFailed:     {StateStopping},
	StateStopping:   {StateStopped},
	StateStopped:    {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Lifecycle) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Kind distinguishes stack services from the tunnel.
type Kind string

const (
	KindService Kind = "service"
	KindTunnel  Kind = "tunnel"
)

// Handle is a spawned process owned by the current run.
type Handle struct {
	Name    string
	Kind    Kind
	Port    int
	LogPath string
	Service config.ServiceDefinition // zero for the tunnel

	mu       sync.Mutex
	state    Lifecycle
	pid      int
	started  int64 // process create time, ms since epoch
	exited   chan struct{}
	exitOnce sync.Once
	exitErr  error
	attempts int
	observer Observer
}

// NewHandle creates a handle in NOT_STARTED.
func NewHandle(name string, kind Kind, port int, logPath string) *Handle {
	return &Handle{
		Name:    name,
		Kind:    kind,
		Port:    port,
		LogPath: logPath,
		state:   StateNotStarted,
		exited:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() Lifecycle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Transition moves the handle to a new state and notifies the observer.
// Moving to the current state is a no-op.
func (h *Handle) Transition(to Lifecycle) error {
	h.mu.Lock()
	from := h.state
	if from == to {
		h.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		h.mu.Unlock()
		return fmt.Errorf("%s: illegal transition %s -> %s", h.Name, from, to)
	}
	h.state = to
	observer := h.observer
	h.mu.Unlock()

	if observer != nil {
		observer(h, from, to)
	}
	return nil
}

// SetPID records the spawned process id. The process leads its own group.
func (h *Handle) SetPID(pid int) {
	h.mu.Lock()
	h.pid = pid
	h.mu.Unlock()
}

// SetStartTime records the kernel create time of the process in milliseconds.
// Together with the PID it identifies the process across runs.
func (h *Handle) SetStartTime(ms int64) {
	h.mu.Lock()
	h.started = ms
	h.mu.Unlock()
}

// StartTime returns the recorded create time, 0 when unknown.
func (h *Handle) StartTime() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// PID returns the process id, 0 when nothing was spawned.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// MarkExited records that the process has been reaped. Only the first call counts.
func (h *Handle) MarkExited(err error) {
	h.exitOnce.Do(func() {
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.exited)
	})
}

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	if h.PID() == 0 {
		return false
	}
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// SetAttempts records how many readiness probes the handle needed.
func (h *Handle) SetAttempts(n int) {
	h.mu.Lock()
	h.attempts = n
	h.mu.Unlock()
}

// Attempts returns the recorded readiness attempt count.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// ExitErr returns the wait error once the process has exited.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}
