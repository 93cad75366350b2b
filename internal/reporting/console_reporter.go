package reporting

import (
	"fmt"
	"time"

	"stackctl/internal/runstate"
	"stackctl/pkg/logging"
)

// ConsoleReporter logs updates via pkg/logging and keeps the latest state of
// every component in a StateStore.
type ConsoleReporter struct {
	stateStore *StateStore
}

// NewConsoleReporter creates a new ConsoleReporter
func NewConsoleReporter() *ConsoleReporter {
	return NewConsoleReporterWithStateStore(nil)
}

// NewConsoleReporterWithStateStore creates a new ConsoleReporter with a specific state store
func NewConsoleReporterWithStateStore(stateStore *StateStore) *ConsoleReporter {
	if stateStore == nil {
		stateStore = NewStateStore()
	}
	return &ConsoleReporter{stateStore: stateStore}
}

// Report logs an update when it changes state or carries an error.
func (c *ConsoleReporter) Report(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	stateChanged := c.stateStore.SetServiceState(update)
	if !stateChanged && update.ErrorDetail == nil && update.Message == "" {
		return
	}

	subsystem := string(update.SourceType)
	if update.SourceLabel != "" {
		subsystem = string(update.SourceType) + "-" + update.SourceLabel
	}

	logMessage := "State: " + string(update.State)
	if update.Port > 0 {
		logMessage += fmt.Sprintf(", Port: %d", update.Port)
	}
	if update.PID > 0 {
		logMessage += fmt.Sprintf(", PID: %d", update.PID)
	}
	if update.Attempts > 0 {
		logMessage += fmt.Sprintf(", Attempts: %d", update.Attempts)
	}
	if update.Message != "" {
		logMessage += ", " + update.Message
	}

	switch {
	case update.ErrorDetail != nil:
		logging.Error(subsystem, update.ErrorDetail, "%s", logMessage)
	case update.State == runstate.StateFailed:
		logging.Error(subsystem, nil, "%s", logMessage)
	case update.State == runstate.StateStarting || update.State == runstate.StateStopping:
		logging.Debug(subsystem, "%s", logMessage)
	default:
		logging.Info(subsystem, "%s", logMessage)
	}
}

// GetStateStore returns the underlying state store
func (c *ConsoleReporter) GetStateStore() *StateStore {
	return c.stateStore
}
