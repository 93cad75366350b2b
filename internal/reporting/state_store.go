package reporting

import (
	"sync"
	"time"

	"stackctl/internal/runstate"
)

// ServiceStateSnapshot is the last known state of one component.
type ServiceStateSnapshot struct {
	Label       string
	SourceType  SourceType
	State       runstate.Lifecycle
	PID         int
	Port        int
	Attempts    int
	ErrorDetail error
	LastUpdated time.Time
}

// StateStore keeps the latest snapshot per component in first-seen order.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]ServiceStateSnapshot
	order  []string
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]ServiceStateSnapshot)}
}

// SetServiceState applies an update and reports whether the lifecycle state changed.
func (s *StateStore) SetServiceState(update Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.states[update.SourceLabel]
	if !exists {
		s.order = append(s.order, update.SourceLabel)
	}

	next := prev
	next.Label = update.SourceLabel
	next.SourceType = update.SourceType
	if update.State != "" {
		next.State = update.State
	}
	if update.PID > 0 {
		next.PID = update.PID
	}
	if update.Port > 0 {
		next.Port = update.Port
	}
	if update.Attempts > 0 {
		next.Attempts = update.Attempts
	}
	if update.ErrorDetail != nil {
		next.ErrorDetail = update.ErrorDetail
	}
	next.LastUpdated = update.Timestamp
	s.states[update.SourceLabel] = next

	return !exists || prev.State != next.State
}

// GetServiceState returns the snapshot for label.
func (s *StateStore) GetServiceState(label string) (ServiceStateSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.states[label]
	return snap, ok
}

// GetAllServiceStates returns every snapshot in first-seen order.
func (s *StateStore) GetAllServiceStates() []ServiceStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServiceStateSnapshot, 0, len(s.order))
	for _, label := range s.order {
		out = append(out, s.states[label])
	}
	return out
}

// ClearAll removes every snapshot.
func (s *StateStore) ClearAll() {
	s.mu.Lock()
	s.states = make(map[string]ServiceStateSnapshot)
	s.order = nil
	s.mu.Unlock()
}
