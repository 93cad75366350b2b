// Package runstate holds the explicit run context shared by the launcher,
// prober, supervisor and cleanup coordinator: the ordered set of spawned
// processes, the optional tunnel and the run-once cleanup flag.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Observer is notified after every lifecycle transition.
type Observer func(h *Handle, from, to Lifecycle)

// State is owned by the coordinating entry point and passed to every component.
type State struct {
	ID string

	mu       sync.Mutex
	services []*Handle
	tunnel   *Handle
	observer Observer
	cleaned  atomic.Bool
}

// New creates an empty run with a fresh ID.
func New(observer Observer) *State {
	return &State{
		ID:       uuid.NewString(),
		observer: observer,
	}
}

// Register tracks a handle. Services keep registration order.
func (s *State) Register(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.Kind == KindTunnel {
		if s.tunnel != nil {
			return fmt.Errorf("tunnel already registered")
		}
		s.tunnel = h
	} else {
		for _, existing := range s.services {
			if existing.Name == h.Name {
				return fmt.Errorf("service %s already registered", h.Name)
			}
		}
		s.services = append(s.services, h)
	}

	h.mu.Lock()
	h.observer = s.observer
	h.mu.Unlock()
	return nil
}

// Services returns the tracked services in start order.
func (s *State) Services() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.services))
	copy(out, s.services)
	return out
}

// Tunnel returns the tunnel handle, or nil.
func (s *State) Tunnel() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunnel
}

// All returns the tunnel (if any) followed by the services.
func (s *State) All() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.services)+1)
	if s.tunnel != nil {
		out = append(out, s.tunnel)
	}
	return append(out, s.services...)
}

// Empty reports whether nothing is tracked.
func (s *State) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunnel == nil && len(s.services) == 0
}

// BeginCleanup returns true exactly once per run.
func (s *State) BeginCleanup() bool {
	return s.cleaned.CompareAndSwap(false, true)
}

// CleanupStarted reports whether teardown has begun.
func (s *State) CleanupStarted() bool {
	return s.cleaned.Load()
}

// Clear drops every handle.
func (s *State) Clear() {
	s.mu.Lock()
	s.services = nil
	s.tunnel = nil
	s.mu.Unlock()
}

// ProcessRecord is one owned process as persisted in the run file.
type ProcessRecord struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	PID  int    `json:"pid"`
	Port int    `json:"port"`
	// StartTime is the process create time in ms since the epoch. A PID
	// whose create time differs has been reused by another process.
	StartTime int64 `json:"startTime,omitempty"`
}

// Record is the on-disk form of a run, used by `stackctl stop` to find
// processes left behind by a supervisor that did not exit cleanly.
type Record struct {
	RunID     string          `json:"runId"`
	Processes []ProcessRecord `json:"processes"`
}

// Snapshot captures the live PIDs of the run.
func (s *State) Snapshot() Record {
	rec := Record{RunID: s.ID}
	for _, h := range s.All() {
		if pid := h.PID(); pid > 0 {
			rec.Processes = append(rec.Processes, ProcessRecord{
				Name:      h.Name,
				Kind:      h.Kind,
				PID:       pid,
				Port:      h.Port,
				StartTime: h.StartTime(),
			})
		}
	}
	return rec
}

// WriteRecord persists the current snapshot to path.
func (s *State) WriteRecord(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadRecord loads a persisted run. A missing file yields an empty record.
func ReadRecord(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse run record %s: %w", path, err)
	}
	return rec, nil
}
