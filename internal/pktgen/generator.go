package pktgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Generator launches background transmitters.
type Generator struct {
	Command Command

	// StartupGrace is how long Start watches the new process for an early
	// exit (missing interface, permission denied). Zero disables the check.
	StartupGrace time.Duration

	// StopTimeout is how long Stop waits after SIGTERM before sending
	// SIGKILL. Zero kills immediately.
	StopTimeout time.Duration

	// ReapTimeout bounds how long stderr is drained once the process has
	// exited. Descendants that outlive it (pkt-gen under sudo after SIGKILL)
	// cannot hold Stop open past it. Zero means DefaultReapTimeout.
	ReapTimeout time.Duration
}

// DefaultReapTimeout is used when Generator.ReapTimeout is zero.
const DefaultReapTimeout = 2 * time.Second

// NewGenerator returns a Generator for cmd with default timings.
func NewGenerator(cmd Command) *Generator {
	return &Generator{
		Command:      cmd,
		StartupGrace: 500 * time.Millisecond,
		StopTimeout:  2 * time.Second,
		ReapTimeout:  DefaultReapTimeout,
	}
}

// Transmitter is a running `pkt-gen -f tx` process.
type Transmitter struct {
	cmd         *exec.Cmd
	iface       string
	stderr      *tailBuffer
	stopTimeout time.Duration
	reapTimeout time.Duration
	group       bool

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
}

// Start launches a transmitter on iface sending packets of packetSize bytes.
// It returns once the process is running; it does not wait for it to exit.
func (g *Generator) Start(ctx context.Context, iface string, packetSize int) (*Transmitter, error) {
	if strings.TrimSpace(iface) == "" {
		return nil, invalidArgument("transmit interface is empty")
	}
	if packetSize <= 0 {
		return nil, invalidArgument("packet size must be > 0, got %d", packetSize)
	}

	// Not bound to ctx: the transmitter lives until Stop.
	cmd := g.Command.command(txArgs(iface, packetSize)...)
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	reap := g.ReapTimeout
	if reap <= 0 {
		reap = DefaultReapTimeout
	}
	cmd.WaitDelay = reap

	// sudo prompts on the terminal, so it has to stay in the foreground group.
	group := !g.Command.Sudo
	if group {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Interface: iface, Err: err}
	}

	t := &Transmitter{
		cmd:         cmd,
		iface:       iface,
		stderr:      stderr,
		stopTimeout: g.StopTimeout,
		reapTimeout: reap,
		group:       group,
		done:        make(chan struct{}),
	}
	go t.wait()

	if g.StartupGrace <= 0 {
		return t, nil
	}

	timer := time.NewTimer(g.StartupGrace)
	defer timer.Stop()

	select {
	case <-t.done:
		cause := t.waitErr
		if cause == nil {
			cause = ErrTransmitterExited
		} else {
			cause = fmt.Errorf("%w: %v", ErrTransmitterExited, cause)
		}
		return nil, &LaunchError{Interface: iface, Err: cause, Stderr: stderr.String()}
	case <-ctx.Done():
		_ = t.Stop()
		return nil, &LaunchError{Interface: iface, Err: ctx.Err(), Stderr: stderr.String()}
	case <-timer.C:
		return t, nil
	}
}

func (t *Transmitter) wait() {
	t.waitErr = t.cmd.Wait()
	close(t.done)
}

// PID returns the process id of the transmitter (or of sudo wrapping it).
func (t *Transmitter) PID() int {
	return t.cmd.Process.Pid
}

// Interface returns the interface the transmitter sends on.
func (t *Transmitter) Interface() string {
	return t.iface
}

// Alive reports whether the process has not exited yet.
func (t *Transmitter) Alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Stderr returns the last few kilobytes the transmitter wrote to stderr.
func (t *Transmitter) Stderr() string {
	return t.stderr.String()
}

// Stop terminates the transmitter and waits for it to be reaped. Only the
// first call does anything; later calls return nil. An error means the
// process could not be signalled or was not reaped in time.
func (t *Transmitter) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		err = t.terminate()
	})
	return err
}

func (t *Transmitter) terminate() error {
	if !t.Alive() {
		return nil
	}

	// sudo relays SIGTERM to its child but cannot relay SIGKILL.
	if t.stopTimeout > 0 {
		if err := t.signal(syscall.SIGTERM); err == nil {
			timer := time.NewTimer(t.stopTimeout)
			defer timer.Stop()
			select {
			case <-t.done:
				return nil
			case <-timer.C:
			}
		}
	}

	if err := t.signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill transmitter pid %d: %w", t.PID(), err)
	}

	// Wait stops draining stderr reapTimeout after the exit.
	timer := time.NewTimer(2 * t.reapTimeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("transmitter pid %d not reaped %s after SIGKILL", t.PID(), 2*t.reapTimeout)
	}
}

// signal delivers sig to the transmitter's process group when it has one,
// so wrappers and their children are reached too.
func (t *Transmitter) signal(sig syscall.Signal) error {
	if t.group {
		if err := syscall.Kill(-t.cmd.Process.Pid, sig); err == nil {
			return nil
		}
	}
	return t.cmd.Process.Signal(sig)
}
