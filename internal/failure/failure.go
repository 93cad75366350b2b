// Package failure defines the error taxonomy surfaced to the operator and the
// exit code each kind maps to.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes returned by the stackctl binary.
const (
	ExitOK               = 0
	ExitGeneric          = 1
	ExitConfig           = 2
	ExitTunnel           = 3
	ExitReadinessTimeout = 4
	ExitProcessFailure   = 5
)

// ConfigError reports missing or invalid environment, files or settings.
// It is always fatal and never retried.
type ConfigError struct {
	Msg         string
	Remediation string
	Err         error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error: ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Remediation != "" {
		fmt.Fprintf(&b, " (%s)", e.Remediation)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError with a formatted message.
func Configf(remediation string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...), Remediation: remediation}
}

// TunnelError reports that the secure session to the data store could not be
// established.
type TunnelError struct {
	Msg         string
	Remediation string
	Err         error
}

func (e *TunnelError) Error() string {
	var b strings.Builder
	b.WriteString("tunnel error: ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Remediation != "" {
		fmt.Fprintf(&b, " (%s)", e.Remediation)
	}
	return b.String()
}

func (e *TunnelError) Unwrap() error { return e.Err }

// ReadinessTimeout reports that a dependency never became reachable within
// its attempt budget.
type ReadinessTimeout struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ReadinessTimeout) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not ready after %d attempts: %v", e.Service, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s not ready after %d attempts", e.Service, e.Attempts)
}

func (e *ReadinessTimeout) Unwrap() error { return e.Err }

// ProcessFailure reports that a previously ready service stopped running.
type ProcessFailure struct {
	Service string
	PID     int
	Err     error
	LogTail []string
}

func (e *ProcessFailure) Error() string {
	msg := fmt.Sprintf("%s (pid %d) failed", e.Service, e.PID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.LogTail) > 0 {
		msg += "\nlast log lines:\n  " + strings.Join(e.LogTail, "\n  ")
	}
	return msg
}

func (e *ProcessFailure) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		cfgErr     *ConfigError
		tunnelErr  *TunnelError
		timeoutErr *ReadinessTimeout
		procErr    *ProcessFailure
	)
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.As(err, &tunnelErr):
		return ExitTunnel
	case errors.As(err, &timeoutErr):
		return ExitReadinessTimeout
	case errors.As(err, &procErr):
		return ExitProcessFailure
	default:
		return ExitGeneric
	}
}
