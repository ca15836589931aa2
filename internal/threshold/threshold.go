package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/pktbench/internal/metrics"
	"github.com/torosent/pktbench/internal/pktgen"
)

// Supported metrics.
const (
	MetricPacketRate = "pps"           // packets/sec
	MetricThroughput = "throughput"    // bits/sec
	MetricBatch      = "batch"         // average packets per batch
	MetricPass       = "pass_duration" // milliseconds per measurement pass
	MetricIterations = "iterations"
	MetricFailures   = "failures"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "pps", "throughput", "failures"
	Aggregate string  // e.g., "p50", "avg", "min", "count", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against, SI prefix applied
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %s %s %s", status, t.Raw, formatValue(t.Metric, actual), t.Operator, formatValue(t.Metric, t.Value)),
	}
}

func formatValue(metric string, v float64) string {
	switch metric {
	case MetricPacketRate:
		return metrics.FormatRate(v, "pps")
	case MetricThroughput:
		return metrics.FormatRate(v, "bps")
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?)$`)

var validAggregates = map[string][]string{
	MetricPacketRate: {"p50", "p90", "p99", "avg", "mean", "min", "max", "stddev"},
	MetricThroughput: {"p50", "p90", "p99", "avg", "mean", "min", "max", "stddev"},
	MetricBatch:      {"p50", "p90", "p99", "avg", "mean", "min", "max", "stddev"},
	MetricPass:       {"p50", "p90", "p99", "avg", "mean", "min", "max"},
	MetricIterations: {"count"},
	MetricFailures:   {"count", "rate"},
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "pps:avg > 14M"             (mean packet rate; K, M, G, T prefixes allowed)
// - "throughput:min >= 7.1G"    (slowest pass in bits/sec)
// - "batch:p50 > 256"           (median average batch)
// - "pass_duration:max < 500"   (slowest pass in ms)
// - "iterations:count >= 30"    (completed iterations)
// - "failures:rate < 0.1"       (failed / attempted iterations)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'pps:avg > 14M')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[4], err)
	}
	value *= pktgen.Scale(matches[5])

	aggregates, ok := validAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: pps, throughput, batch, pass_duration, iterations, failures)", metric)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	return contains([]string{"<", "<=", ">", ">=", "=="}, operator)
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case MetricPacketRate:
		return seriesValue(t, stats.PacketRate)
	case MetricThroughput:
		return seriesValue(t, stats.BitRate)
	case MetricBatch:
		return seriesValue(t, stats.AverageBatch)
	case MetricPass:
		return seriesValue(t, stats.PassMs)
	case MetricIterations:
		if t.Aggregate != "count" {
			return 0, fmt.Errorf("unsupported aggregate %q for iterations (use 'count')", t.Aggregate)
		}
		return float64(stats.Iterations), nil
	case MetricFailures:
		switch t.Aggregate {
		case "count":
			return float64(stats.Failures), nil
		case "rate":
			attempted := stats.Iterations + stats.Failures
			if attempted == 0 {
				return 0, nil
			}
			return float64(stats.Failures) / float64(attempted), nil
		default:
			return 0, fmt.Errorf("unsupported aggregate %q for failures (use 'count' or 'rate')", t.Aggregate)
		}
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func seriesValue(t Threshold, s metrics.SeriesStats) (float64, error) {
	switch t.Aggregate {
	case "p50":
		return s.P50, nil
	case "p90":
		return s.P90, nil
	case "p99":
		return s.P99, nil
	case "avg", "mean":
		return s.Mean, nil
	case "min":
		return s.Min, nil
	case "max":
		return s.Max, nil
	case "stddev":
		return s.StdDev, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Relative epsilon: rates reach 1e12.
	epsilon := 1e-9 * math.Max(1, math.Abs(expected))

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
