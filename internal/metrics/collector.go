package metrics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/pktbench/internal/pktgen"
)

// series tracks one metric across iterations. Exact min/max/mean come from
// running sums; percentiles come from the histogram, which stores values
// multiplied by scale so fractional inputs keep their precision.
type series struct {
	hist  *hdrhistogram.Histogram
	scale float64

	count int64
	sum   float64
	sumSq float64
	min   float64
	max   float64
}

func newSeries(highest int64, scale float64) *series {
	return &series{
		hist:  hdrhistogram.New(1, highest, 3),
		scale: scale,
	}
}

func (s *series) record(v float64) {
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.count++
	s.sum += v
	s.sumSq += v * v

	scaled := int64(math.Round(v * s.scale))
	if scaled < s.hist.LowestTrackableValue() {
		scaled = s.hist.LowestTrackableValue()
	}
	if scaled > s.hist.HighestTrackableValue() {
		scaled = s.hist.HighestTrackableValue()
	}
	_ = s.hist.RecordValue(scaled)
}

func (s *series) stats() SeriesStats {
	if s.count == 0 {
		return SeriesStats{}
	}
	mean := s.sum / float64(s.count)
	variance := s.sumSq/float64(s.count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return SeriesStats{
		Min:    s.min,
		Max:    s.max,
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		P50:    float64(s.hist.ValueAtQuantile(50)) / s.scale,
		P90:    float64(s.hist.ValueAtQuantile(90)) / s.scale,
		P99:    float64(s.hist.ValueAtQuantile(99)) / s.scale,
	}
}

// Collector aggregates iteration records in a thread-safe manner. It
// satisfies runner.Observer.
type Collector struct {
	mu sync.Mutex

	packetRate   *series // packets/sec
	bitRate      *series // bits/sec
	averageBatch *series // packets per batch
	passTime     *series // milliseconds per measurement pass

	iterations   int64
	failures     int64
	errorsByType map[string]int64
	history      []DataPoint
	start        time.Time
}

// SeriesStats summarizes one metric.
type SeriesStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Stats represents aggregated metrics for a run.
type Stats struct {
	Iterations int64         `json:"iterations"`
	Failures   int64         `json:"failures"`
	Duration   time.Duration `json:"-"`

	PacketRate   SeriesStats `json:"packets_per_sec"`
	BitRate      SeriesStats `json:"bits_per_sec"`
	AverageBatch SeriesStats `json:"average_batch"`
	PassMs       SeriesStats `json:"pass_duration_ms"`

	// JSON-friendly millisecond field.
	DurationMs float64        `json:"duration_ms"`
	Errors     map[string]int `json:"errors,omitempty"`
}

// DataPoint is one completed iteration, in measurement order.
type DataPoint struct {
	Iteration    int       `json:"iteration"`
	Timestamp    time.Time `json:"timestamp"`
	PacketRate   float64   `json:"packets_per_sec"`
	BitRate      float64   `json:"bits_per_sec"`
	AverageBatch float64   `json:"average_batch"`
	PassMs       float64   `json:"pass_duration_ms"`
}

func NewCollector() *Collector {
	return &Collector{
		// Up to 10 Gpps, 10 Tbps, 1M packets per batch (2 decimals), 1h passes (µs).
		packetRate:   newSeries(10_000_000_000, 1),
		bitRate:      newSeries(10_000_000_000_000, 1),
		averageBatch: newSeries(100_000_000, 100),
		passTime:     newSeries(3_600_000_000, 1000),
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

// FromRecords builds a collector from stored records, e.g. a CSV written by
// an earlier run. Pass durations are unknown and left empty.
func FromRecords(records []pktgen.Record) *Collector {
	c := NewCollector()
	for i, rec := range records {
		c.IterationCompleted(i, rec, 0)
	}
	return c
}

// IterationCompleted records a successful iteration.
func (c *Collector) IterationCompleted(index int, rec pktgen.Record, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pps := rec.PacketRate()
	bps := rec.BitRate()
	passMs := float64(took) / float64(time.Millisecond)

	c.packetRate.record(pps)
	c.bitRate.record(bps)
	c.averageBatch.record(rec.AverageBatch)
	if took > 0 {
		c.passTime.record(passMs)
	}
	c.iterations++

	c.history = append(c.history, DataPoint{
		Iteration:    index,
		Timestamp:    time.Now(),
		PacketRate:   pps,
		BitRate:      bps,
		AverageBatch: rec.AverageBatch,
		PassMs:       passMs,
	})
}

// IterationFailed records a failed iteration by error type.
func (c *Collector) IterationFailed(index int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.errorsByType[errorType(err)]++
}

func errorType(err error) string {
	if err == nil {
		return "<nil>"
	}
	name := fmt.Sprintf("%T", err)
	if len(name) > 40 {
		name = name[len(name)-40:]
	}
	return name
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Iterations:   c.iterations,
		Failures:     c.failures,
		Duration:     elapsed,
		DurationMs:   float64(elapsed) / float64(time.Millisecond),
		PacketRate:   c.packetRate.stats(),
		BitRate:      c.bitRate.stats(),
		AverageBatch: c.averageBatch.stats(),
		PassMs:       c.passTime.stats(),
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[FriendlyErrorName(k)] += int(v)
		}
	}
	return stats
}

// History returns a copy of the per-iteration data points.
func (c *Collector) History() []DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]DataPoint, len(c.history))
	copy(out, c.history)
	return out
}

// Latest returns the most recent data point, if any.
func (c *Collector) Latest() (DataPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return DataPoint{}, false
	}
	return c.history[len(c.history)-1], true
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.start)
}

// GetErrorBreakdown returns a map of error types to their counts.
func (c *Collector) GetErrorBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int)
	for k, v := range c.errorsByType {
		result[k] = int(v)
	}
	return result
}
