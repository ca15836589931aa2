package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/pktbench/internal/pktgen"
)

// FailurePolicy decides what happens to the remaining iterations after one fails.
type FailurePolicy string

const (
	// FailAbort stops the loop at the first failed iteration.
	FailAbort FailurePolicy = "abort"
	// FailSkip records the failure and moves on to the next iteration.
	FailSkip FailurePolicy = "skip"
)

// ParseFailurePolicy converts a configuration value to a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", FailAbort:
		return FailAbort, nil
	case FailSkip:
		return FailSkip, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want abort or skip)", s)
	}
}

// Process is a running background transmitter.
type Process interface {
	Stop() error
	Alive() bool
}

// Launcher starts the background transmitter for a run.
type Launcher interface {
	Launch(ctx context.Context, iface string, packetSize int) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, iface string, packetSize int) (Process, error)

func (f LauncherFunc) Launch(ctx context.Context, iface string, packetSize int) (Process, error) {
	return f(ctx, iface, packetSize)
}

// GeneratorLauncher launches transmitters with g.
func GeneratorLauncher(g *pktgen.Generator) Launcher {
	return LauncherFunc(func(ctx context.Context, iface string, packetSize int) (Process, error) {
		tx, err := g.Start(ctx, iface, packetSize)
		if err != nil {
			// Avoid handing back a typed nil.
			return nil, err
		}
		return tx, nil
	})
}

// Measurer performs one bounded measurement pass and returns the raw report.
type Measurer interface {
	Measure(ctx context.Context, iface string, packets int) (string, error)
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func(ctx context.Context, iface string, packets int) (string, error)

func (f MeasurerFunc) Measure(ctx context.Context, iface string, packets int) (string, error) {
	return f(ctx, iface, packets)
}

// ParseFunc extracts a record from a raw report.
type ParseFunc func(report string) (pktgen.Record, error)

// Observer is notified as iterations complete. Calls happen on the driver's
// goroutine, in iteration order.
type Observer interface {
	IterationCompleted(index int, rec pktgen.Record, took time.Duration)
	IterationFailed(index int, err error)
}

// Options configure the Runner.
type Options struct {
	Iterations          int    // measurement passes to run; 0 still starts and stops the transmitter
	TxInterface         string // interface the background transmitter sends on
	RxInterface         string // interface each measurement pass receives on
	PacketsPerIteration int    // packets received per pass
	PacketSize          int    // transmitted frame size in bytes; required, no default
	ParallelID          *int   // distinguishes sibling runs; nil for a single run

	OnFailure FailurePolicy // abort (default) or skip
	Interval  time.Duration // minimum spacing between pass starts (0 means back to back)

	Launcher Launcher  // required
	Measurer Measurer  // required
	Parse    ParseFunc // defaults to pktgen.ParseReport
	Observer Observer  // optional

	Logger log.Interface // defaults to a discarding logger
	Tracer trace.Tracer  // defaults to a no-op tracer

	LimiterFactory func(interval time.Duration) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.OnFailure == "" {
		o.OnFailure = FailAbort
	}
	if o.Interval < 0 {
		o.Interval = 0
	}
	if o.Parse == nil {
		o.Parse = pktgen.ParseReport
	}
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("pktbench/runner")
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(interval time.Duration) *rate.Limiter {
			if interval <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

func (o *Options) validate() error {
	var issues []string
	if o.Iterations < 0 {
		issues = append(issues, fmt.Sprintf("iterations must be >= 0, got %d", o.Iterations))
	}
	if o.PacketsPerIteration <= 0 {
		issues = append(issues, fmt.Sprintf("packets per iteration must be > 0, got %d", o.PacketsPerIteration))
	}
	if o.PacketSize <= 0 {
		issues = append(issues, fmt.Sprintf("packet size must be > 0, got %d", o.PacketSize))
	}
	if strings.TrimSpace(o.TxInterface) == "" {
		issues = append(issues, "transmit interface is required")
	}
	if strings.TrimSpace(o.RxInterface) == "" {
		issues = append(issues, "receive interface is required")
	}
	if o.OnFailure != FailAbort && o.OnFailure != FailSkip {
		issues = append(issues, fmt.Sprintf("unknown failure policy %q", o.OnFailure))
	}
	if o.Launcher == nil {
		issues = append(issues, "launcher is required")
	}
	if o.Measurer == nil {
		issues = append(issues, "measurer is required")
	}
	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", pktgen.ErrInvalidArgument, strings.Join(issues, "; "))
}

func discardLogger() log.Interface {
	return &log.Logger{Handler: discard.Default, Level: log.FatalLevel}
}
