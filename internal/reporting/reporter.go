package reporting

import (
	"fmt"
	"time"

	"stackctl/internal/runstate"
)

// SourceType indicates the kind of component sending the update.
type SourceType string

const (
	SourceTunnel  SourceType = "Tunnel"
	SourceService SourceType = "Service"
	SourceSystem  SourceType = "System"
)

// String makes SourceType satisfy the fmt.Stringer interface.
func (st SourceType) String() string {
	return string(st)
}

// Update carries a lifecycle change or probe result from the orchestration
// components to every reporter.
type Update struct {
	Timestamp time.Time

	SourceType  SourceType
	SourceLabel string

	From  runstate.Lifecycle
	State runstate.Lifecycle

	PID      int
	Port     int
	Attempts int // readiness attempts, set on READY

	Message     string
	ErrorDetail error
}

// String provides a simple string representation for debugging the update itself.
func (u Update) String() string {
	return fmt.Sprintf("Update(TS: %s, Source: %s-%s, %s -> %s, PID: %d, Port: %d, Msg: '%s', Err: %v)",
		u.Timestamp.Format(time.RFC3339), u.SourceType, u.SourceLabel, u.From, u.State, u.PID, u.Port, u.Message, u.ErrorDetail)
}

// Reporter consumes updates. Implementations must be goroutine-safe: the
// reaper goroutines and the coordinator both report.
type Reporter interface {
	Report(update Update)
}

// MultiReporter fans an update out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) Report(update Update) {
	for _, r := range m {
		if r != nil {
			r.Report(update)
		}
	}
}

// FromTransition builds the update for a handle's lifecycle transition.
func FromTransition(h *runstate.Handle, from, to runstate.Lifecycle) Update {
	source := SourceService
	if h.Kind == runstate.KindTunnel {
		source = SourceTunnel
	}
	update := Update{
		Timestamp:   time.Now(),
		SourceType:  source,
		SourceLabel: h.Name,
		From:        from,
		State:       to,
		PID:         h.PID(),
		Port:        h.Port,
	}
	if to == runstate.StateReady {
		update.Attempts = h.Attempts()
	}
	if to == runstate.StateFailed {
		update.ErrorDetail = h.ExitErr()
	}
	return update
}

// Observer adapts a Reporter to the RunState transition hook.
func Observer(r Reporter) runstate.Observer {
	return func(h *runstate.Handle, from, to runstate.Lifecycle) {
		r.Report(FromTransition(h, from, to))
	}
}
