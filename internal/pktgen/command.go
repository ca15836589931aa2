package pktgen

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

const (
	// DefaultBinary is the generator looked up on PATH when Command.Path is empty.
	DefaultBinary = "pkt-gen"

	// MinPacketSize is the minimum Ethernet frame size without the trailing CRC.
	MinPacketSize = 60

	stderrTailBytes = 4096
)

// Command describes how the generator binary is invoked.
//
// The final argument vector is
//
//	[sudo] [Wrapper...] Path <generator arguments>
//
// Wrapper lets the generator run inside another launcher, e.g.
// "ip netns exec ns0" or "taskset -c 3".
type Command struct {
	Path    string
	Sudo    bool
	Wrapper []string
	Env     []string // appended to the inherited environment
}

func (c Command) argv(args ...string) (string, []string) {
	path := c.Path
	if path == "" {
		path = DefaultBinary
	}

	full := make([]string, 0, len(c.Wrapper)+len(args)+2)
	full = append(full, c.Wrapper...)
	full = append(full, path)
	full = append(full, args...)

	if c.Sudo {
		return "sudo", full
	}
	return full[0], full[1:]
}

func (c Command) command(args ...string) *exec.Cmd {
	name, argv := c.argv(args...)
	cmd := exec.Command(name, argv...)
	c.applyEnv(cmd)
	return cmd
}

func (c Command) commandContext(ctx context.Context, args ...string) *exec.Cmd {
	name, argv := c.argv(args...)
	cmd := exec.CommandContext(ctx, name, argv...)
	c.applyEnv(cmd)
	return cmd
}

func (c Command) applyEnv(cmd *exec.Cmd) {
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
}

func txArgs(iface string, packetSize int) []string {
	return []string{"-i", iface, "-f", "tx", "-l", strconv.Itoa(packetSize)}
}

func rxArgs(iface string, packets int) []string {
	return []string{"-i", iface, "-f", "rx", "-n", strconv.Itoa(packets)}
}

// tailBuffer keeps the last limit bytes written to it. It is safe for
// concurrent use since the process writes while callers may read.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
