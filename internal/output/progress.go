package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/pktbench/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	requested int
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. requested is the number of iterations the run will attempt.
func NewProgressReporter(collector *metrics.Collector, requested int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		requested: requested,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and writes a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, p.line())
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(time.Since(p.start))
	line := fmt.Sprintf("\rIterations: %d/%d | Failures: %d | Elapsed: %s",
		stats.Iterations, p.requested, stats.Failures, stats.Duration.Round(time.Second))
	if last, ok := p.collector.Latest(); ok {
		line += fmt.Sprintf(" | Last: %s, %s", formatPPS(last.PacketRate), formatBPS(last.BitRate))
	}
	return line
}
