package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/torosent/pktbench/internal/pktgen"
	"github.com/torosent/pktbench/internal/runner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProcess counts Stop calls and can be made to die.
type fakeProcess struct {
	mu      sync.Mutex
	stops   int
	dead    bool
	stopErr error
}

func (p *fakeProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.dead = true
	return p.stopErr
}

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead
}

func (p *fakeProcess) kill() {
	p.mu.Lock()
	p.dead = true
	p.mu.Unlock()
}

func (p *fakeProcess) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type fakeLauncher struct {
	proc     *fakeProcess
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context, iface string, packetSize int) (runner.Process, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.proc, nil
}

// scriptedMeasurer returns reports[i] (or errs[i]) on its i-th call.
type scriptedMeasurer struct {
	reports []string
	errs    map[int]error
	calls   int
	onCall  func(call int)
}

func (m *scriptedMeasurer) Measure(ctx context.Context, iface string, packets int) (string, error) {
	call := m.calls
	m.calls++
	if m.onCall != nil {
		m.onCall(call)
	}
	if err, ok := m.errs[call]; ok {
		return "", err
	}
	if call < len(m.reports) {
		return m.reports[call], nil
	}
	return report(1.0), nil
}

func report(mpps float64) string {
	return fmt.Sprintf("Speed: %.3f Mpps Bandwidth: %.3f Gbps Average batch: 64.00 pkts", mpps, mpps*0.48)
}

func baseOptions(l runner.Launcher, m runner.Measurer, n int) runner.Options {
	return runner.Options{
		Iterations:          n,
		TxInterface:         "eth0",
		RxInterface:         "eth1",
		PacketsPerIteration: 100,
		PacketSize:          60,
		Launcher:            l,
		Measurer:            m,
	}
}

func TestRunnerCollectsAllIterationsInOrder(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			proc := &fakeProcess{}
			reports := make([]string, n)
			for i := range reports {
				reports[i] = report(float64(i + 1))
			}
			m := &scriptedMeasurer{reports: reports}

			res, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, n)).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(res.Iterations) != n {
				t.Fatalf("got %d iterations, want %d", len(res.Iterations), n)
			}
			for i, rec := range res.Iterations {
				if rec.PacketsPerSecond != float64(i+1) {
					t.Errorf("iteration %d: pps = %v, want %v", i, rec.PacketsPerSecond, i+1)
				}
			}
			if got := proc.stopCount(); got != 1 {
				t.Errorf("Stop called %d times, want 1", got)
			}
			if res.Attempted != n || res.Requested != n {
				t.Errorf("Attempted=%d Requested=%d, want %d", res.Attempted, res.Requested, n)
			}
		})
	}
}

func TestRunnerPreservesAscendingScenario(t *testing.T) {
	proc := &fakeProcess{}
	m := &scriptedMeasurer{reports: []string{
		"Speed: 1.0 Mpps Bandwidth: 0.5 Gbps Average batch: 10 pkts",
		"Speed: 1.5 Mpps Bandwidth: 0.7 Gbps Average batch: 10 pkts",
		"Speed: 2.0 Mpps Bandwidth: 1.0 Gbps Average batch: 10 pkts",
	}}

	res, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, 3)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []float64{1.0, 1.5, 2.0}
	for i, rec := range res.Iterations {
		if rec.PacketsPerSecond != want[i] {
			t.Errorf("iteration %d: pps = %v, want %v", i, rec.PacketsPerSecond, want[i])
		}
		if rec.SpeedUnit != "M" {
			t.Errorf("iteration %d: unit = %q, want M", i, rec.SpeedUnit)
		}
	}
}

func TestRunnerStopsOnceWhenIterationFails(t *testing.T) {
	const n = 5
	for k := 1; k <= n; k++ {
		for _, kind := range []string{"invocation", "parse"} {
			t.Run(fmt.Sprintf("k=%d/%s", k, kind), func(t *testing.T) {
				proc := &fakeProcess{}
				m := &scriptedMeasurer{errs: map[int]error{}}
				if kind == "invocation" {
					m.errs[k-1] = &pktgen.InvocationError{Interface: "eth1", ExitCode: 1, Err: errors.New("exit status 1")}
				} else {
					m.reports = make([]string, n)
					for i := range m.reports {
						m.reports[i] = report(1)
					}
					m.reports[k-1] = "Speed: 1.0 Mpps"
				}

				res, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, n)).Run(context.Background())
				if err == nil {
					t.Fatal("expected error")
				}
				var iterErr *runner.IterationError
				if !errors.As(err, &iterErr) {
					t.Fatalf("error = %v, want *IterationError", err)
				}
				if iterErr.Index != k-1 {
					t.Errorf("Index = %d, want %d", iterErr.Index, k-1)
				}
				if len(res.Iterations) != k-1 {
					t.Errorf("got %d iterations, want %d", len(res.Iterations), k-1)
				}
				if m.calls != k {
					t.Errorf("measurer called %d times, want %d", m.calls, k)
				}
				if got := proc.stopCount(); got != 1 {
					t.Errorf("Stop called %d times, want 1", got)
				}
			})
		}
	}
}

func TestRunnerParseFailureNamesField(t *testing.T) {
	proc := &fakeProcess{}
	m := &scriptedMeasurer{reports: []string{"Speed: 1.0 Mpps Average batch: 3 pkts"}}

	_, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, 1)).Run(context.Background())
	var parseErr *pktgen.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *pktgen.ParseError", err)
	}
	if len(parseErr.Missing) != 1 || parseErr.Missing[0] != pktgen.FieldBandwidth {
		t.Errorf("Missing = %v, want [bandwidth]", parseErr.Missing)
	}
}

func TestRunnerZeroIterations(t *testing.T) {
	proc := &fakeProcess{}
	l := &fakeLauncher{proc: proc}
	m := &scriptedMeasurer{}

	res, err := runner.New(baseOptions(l, m, 0)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Iterations) != 0 {
		t.Errorf("got %d iterations, want 0", len(res.Iterations))
	}
	if m.calls != 0 {
		t.Errorf("measurer called %d times, want 0", m.calls)
	}
	if l.launches != 1 {
		t.Errorf("launched %d times, want 1", l.launches)
	}
	if got := proc.stopCount(); got != 1 {
		t.Errorf("Stop called %d times, want 1", got)
	}
}

func TestRunnerLaunchFailure(t *testing.T) {
	launchErr := &pktgen.LaunchError{Interface: "eth0", Err: errors.New("exec: \"pkt-gen\": executable file not found in $PATH")}
	m := &scriptedMeasurer{}

	res, err := runner.New(baseOptions(&fakeLauncher{err: launchErr}, m, 3)).Run(context.Background())
	var got *pktgen.LaunchError
	if !errors.As(err, &got) {
		t.Fatalf("error = %v, want *pktgen.LaunchError", err)
	}
	if m.calls != 0 {
		t.Errorf("measurer called %d times, want 0", m.calls)
	}
	if len(res.Iterations) != 0 {
		t.Errorf("got %d iterations, want 0", len(res.Iterations))
	}
}

func TestRunnerRejectsInvalidArguments(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*runner.Options)
	}{
		{"negative iterations", func(o *runner.Options) { o.Iterations = -1 }},
		{"zero packets", func(o *runner.Options) { o.PacketsPerIteration = 0 }},
		{"negative size", func(o *runner.Options) { o.PacketSize = -60 }},
		{"zero size", func(o *runner.Options) { o.PacketSize = 0 }},
		{"missing tx", func(o *runner.Options) { o.TxInterface = "" }},
		{"missing rx", func(o *runner.Options) { o.RxInterface = "  " }},
		{"unknown policy", func(o *runner.Options) { o.OnFailure = "retry" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLauncher{proc: &fakeProcess{}}
			opts := baseOptions(l, &scriptedMeasurer{}, 3)
			tt.mutate(&opts)

			_, err := runner.New(opts).Run(context.Background())
			if !errors.Is(err, pktgen.ErrInvalidArgument) {
				t.Fatalf("error = %v, want ErrInvalidArgument", err)
			}
			if l.launches != 0 {
				t.Errorf("launcher called %d times, want 0", l.launches)
			}
		})
	}
}

func TestRunnerSkipPolicy(t *testing.T) {
	proc := &fakeProcess{}
	m := &scriptedMeasurer{
		reports: []string{report(1), report(2), report(3), report(4)},
		errs:    map[int]error{1: errors.New("boom")},
	}
	opts := baseOptions(&fakeLauncher{proc: proc}, m, 4)
	opts.OnFailure = runner.FailSkip

	res, err := runner.New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Iterations) != 3 {
		t.Fatalf("got %d iterations, want 3", len(res.Iterations))
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 1 {
		t.Errorf("Failures = %v, want one failure at index 1", res.Failures)
	}
	want := []float64{1, 3, 4}
	for i, rec := range res.Iterations {
		if rec.PacketsPerSecond != want[i] {
			t.Errorf("iteration %d: pps = %v, want %v", i, rec.PacketsPerSecond, want[i])
		}
	}
	if res.Attempted != 4 {
		t.Errorf("Attempted = %d, want 4", res.Attempted)
	}
	if got := proc.stopCount(); got != 1 {
		t.Errorf("Stop called %d times, want 1", got)
	}
}

func TestRunnerSkipPolicyAllFailed(t *testing.T) {
	proc := &fakeProcess{}
	m := &scriptedMeasurer{errs: map[int]error{0: errors.New("a"), 1: errors.New("b")}}
	opts := baseOptions(&fakeLauncher{proc: proc}, m, 2)
	opts.OnFailure = runner.FailSkip

	res, err := runner.New(opts).Run(context.Background())
	if !errors.Is(err, runner.ErrNoIterations) {
		t.Fatalf("error = %v, want ErrNoIterations", err)
	}
	if len(res.Failures) != 2 {
		t.Errorf("got %d failures, want 2", len(res.Failures))
	}
	if got := proc.stopCount(); got != 1 {
		t.Errorf("Stop called %d times, want 1", got)
	}
}

func TestRunnerStopsOnPanic(t *testing.T) {
	proc := &fakeProcess{}
	m := &scriptedMeasurer{onCall: func(call int) {
		if call == 1 {
			panic("measurer exploded")
		}
	}}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = runner.New(baseOptions(&fakeLauncher{proc: proc}, m, 3)).Run(context.Background())
	}()

	if got := proc.stopCount(); got != 1 {
		t.Errorf("Stop called %d times, want 1", got)
	}
}

func TestRunnerCancelBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &fakeProcess{}
	m := &scriptedMeasurer{onCall: func(call int) {
		if call == 1 {
			cancel()
		}
	}}

	res, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, 5)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	// The pass in flight when cancel fired still counts.
	if len(res.Iterations) != 2 {
		t.Errorf("got %d iterations, want 2", len(res.Iterations))
	}
	if got := proc.stopCount(); got != 1 {
		t.Errorf("Stop called %d times, want 1", got)
	}
}

func TestRunnerTransmitterExited(t *testing.T) {
	proc := &fakeProcess{}
	m := &scriptedMeasurer{onCall: func(call int) {
		if call == 0 {
			proc.kill()
		}
	}}

	res, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, 3)).Run(context.Background())
	if !errors.Is(err, runner.ErrTransmitterExited) {
		t.Fatalf("error = %v, want ErrTransmitterExited", err)
	}
	if len(res.Iterations) != 1 {
		t.Errorf("got %d iterations, want 1", len(res.Iterations))
	}
	if got := proc.stopCount(); got != 1 {
		t.Errorf("Stop called %d times, want 1", got)
	}
}

func TestRunnerStopErrorDoesNotMaskRunError(t *testing.T) {
	stopErr := errors.New("kill: operation not permitted")
	runErr := errors.New("receiver crashed")
	proc := &fakeProcess{stopErr: stopErr}
	m := &scriptedMeasurer{errs: map[int]error{0: runErr}}

	_, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, m, 2)).Run(context.Background())
	if !errors.Is(err, runErr) {
		t.Errorf("error = %v, want run error preserved", err)
	}
	if !errors.Is(err, stopErr) {
		t.Errorf("error = %v, want stop error reported", err)
	}
}

func TestRunnerStopErrorOnSuccess(t *testing.T) {
	stopErr := errors.New("kill: operation not permitted")
	proc := &fakeProcess{stopErr: stopErr}

	res, err := runner.New(baseOptions(&fakeLauncher{proc: proc}, &scriptedMeasurer{}, 2)).Run(context.Background())
	if !errors.Is(err, stopErr) {
		t.Fatalf("error = %v, want stop error", err)
	}
	if len(res.Iterations) != 2 {
		t.Errorf("got %d iterations, want 2", len(res.Iterations))
	}
}

type recordingObserver struct {
	completed []int
	failed    []int
}

func (o *recordingObserver) IterationCompleted(index int, rec pktgen.Record, took time.Duration) {
	o.completed = append(o.completed, index)
}

func (o *recordingObserver) IterationFailed(index int, err error) {
	o.failed = append(o.failed, index)
}

func TestRunnerNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	m := &scriptedMeasurer{errs: map[int]error{2: errors.New("boom")}}
	opts := baseOptions(&fakeLauncher{proc: &fakeProcess{}}, m, 4)
	opts.OnFailure = runner.FailSkip
	opts.Observer = obs

	if _, err := runner.New(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fmt.Sprint(obs.completed) != "[0 1 3]" {
		t.Errorf("completed = %v, want [0 1 3]", obs.completed)
	}
	if fmt.Sprint(obs.failed) != "[2]" {
		t.Errorf("failed = %v, want [2]", obs.failed)
	}
}

func TestRunnerResultMetadata(t *testing.T) {
	parallel := 2
	opts := baseOptions(&fakeLauncher{proc: &fakeProcess{}}, &scriptedMeasurer{}, 1)
	opts.ParallelID = &parallel
	opts.PacketSize = 1514

	res, err := runner.New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ID.String() == "" || res.ID.Time() == 0 {
		t.Errorf("expected a run ID, got %v", res.ID)
	}
	if res.ParallelID == nil || *res.ParallelID != 2 {
		t.Errorf("ParallelID = %v, want 2", res.ParallelID)
	}
	if res.PacketSize != 1514 {
		t.Errorf("PacketSize = %d, want 1514", res.PacketSize)
	}
	if res.StartedAt.IsZero() || res.Duration <= 0 {
		t.Errorf("StartedAt=%v Duration=%v, want both set", res.StartedAt, res.Duration)
	}
}

func TestRunnerEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	opts := baseOptions(&fakeLauncher{proc: &fakeProcess{}}, &scriptedMeasurer{}, 3)
	opts.Tracer = tp.Tracer("test")

	if _, err := runner.New(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spans := exporter.GetSpans()
	var runs, iterations int
	for _, s := range spans {
		switch s.Name {
		case "experiment":
			runs++
		case "measurement":
			iterations++
		}
	}
	if runs != 1 || iterations != 3 {
		t.Errorf("got %d run spans and %d iteration spans, want 1 and 3", runs, iterations)
	}
}

func TestRunnerPacesIterations(t *testing.T) {
	opts := baseOptions(&fakeLauncher{proc: &fakeProcess{}}, &scriptedMeasurer{}, 3)
	opts.Interval = 30 * time.Millisecond

	start := time.Now()
	if _, err := runner.New(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// First pass starts immediately, the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("run took %s, want at least two intervals", elapsed)
	}
}
