package pktgen

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// killDelay bounds how long a timed-out pass may take to exit after SIGTERM.
const killDelay = 2 * time.Second

// Receiver runs bounded receive passes.
type Receiver struct {
	Command Command

	// Timeout bounds a single pass. Zero means no bound.
	Timeout time.Duration
}

// NewReceiver returns a Receiver for cmd without a pass timeout.
func NewReceiver(cmd Command) *Receiver {
	return &Receiver{Command: cmd}
}

// Measure receives packets packets on iface and returns the generator's
// report: stdout followed by stderr, where pkt-gen prints its summary.
//
// A pass in flight is not interrupted when ctx is cancelled; only Timeout
// bounds it.
func (r *Receiver) Measure(ctx context.Context, iface string, packets int) (string, error) {
	if strings.TrimSpace(iface) == "" {
		return "", invalidArgument("receive interface is empty")
	}
	if packets <= 0 {
		return "", invalidArgument("packet count must be > 0, got %d", packets)
	}

	ctx = context.WithoutCancel(ctx)
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := r.Command.commandContext(ctx, rxArgs(iface, packets)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := exitCode(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", &InvocationError{
			Interface: iface,
			ExitCode:  code,
			Err:       err,
			Stderr:    tail(stderr.String(), stderrTailBytes),
		}
	}

	report := stdout.String() + stderr.String()
	if strings.TrimSpace(report) == "" {
		return "", &InvocationError{Interface: iface, Err: ErrNoOutput}
	}
	return report, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
