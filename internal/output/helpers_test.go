package output_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/pktbench/internal/pktgen"
	"github.com/torosent/pktbench/internal/runner"
)

func mpps(v float64) pktgen.Record {
	return pktgen.Record{
		PacketsPerSecond: v,
		SpeedUnit:        "M",
		Throughput:       v * 0.48,
		ThroughputUnit:   "G",
		AverageBatch:     512,
	}
}

func sampleResult(t *testing.T) runner.Result {
	t.Helper()
	parallel := 2
	return runner.Result{
		ID:                  ulid.Make(),
		Iterations:          []pktgen.Record{mpps(1.0), mpps(1.5), mpps(2.0)},
		PacketSize:          60,
		ParallelID:          &parallel,
		TxInterface:         "eth0",
		RxInterface:         "eth1",
		PacketsPerIteration: 100,
		Requested:           4,
		Attempted:           4,
		Failures: []*runner.IterationError{
			{Index: 1, Err: pktgen.ErrNoOutput},
		},
		StartedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Duration:  3 * time.Second,
	}
}
