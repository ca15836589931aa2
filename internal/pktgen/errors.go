package pktgen

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is wrapped by errors for arguments rejected before any
// process is started.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNoOutput is wrapped by InvocationError when a receive pass exits
// cleanly without printing anything.
var ErrNoOutput = errors.New("no output")

// ErrTransmitterExited reports a transmitter that exited on its own, either
// during the startup grace period (wrapped by LaunchError) or mid-run.
var ErrTransmitterExited = errors.New("transmitter exited")

// LaunchError reports a transmitter that could not be started.
type LaunchError struct {
	Interface string
	Err       error
	Stderr    string
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launch transmitter on %s: %v", e.Interface, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

// InvocationError reports a receive pass that exited abnormally or produced
// no output.
type InvocationError struct {
	Interface string
	ExitCode  int // -1 when the process did not exit normally
	Err       error
	Stderr    string
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("measure on %s: %v", e.Interface, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *InvocationError) Unwrap() error { return e.Err }

// ParseError reports the fields that could not be located in a report and
// the ones that were found but are not positive.
type ParseError struct {
	Missing     []string
	NonPositive []string
}

func (e *ParseError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.NonPositive) > 0 {
		parts = append(parts, "non-positive "+strings.Join(e.NonPositive, ", "))
	}
	return "parse report: " + strings.Join(parts, "; ")
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
