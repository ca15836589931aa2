package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/torosent/pktbench/internal/metrics"
	"github.com/torosent/pktbench/internal/pktgen"
	"github.com/torosent/pktbench/internal/runner"
	"github.com/torosent/pktbench/internal/threshold"
)

// RunInfo describes the experiment a report covers.
type RunInfo struct {
	RunID               string    `json:"run_id"`
	TxInterface         string    `json:"tx_interface"`
	RxInterface         string    `json:"rx_interface"`
	PacketSize          int       `json:"pkt_size"`
	ParallelID          *int      `json:"parallel_id,omitempty"`
	PacketsPerIteration int       `json:"pkts_per_iteration"`
	Requested           int       `json:"requested"`
	Attempted           int       `json:"attempted"`
	StartedAt           time.Time `json:"started_at"`
	CSV                 string    `json:"csv,omitempty"`
	Failures            []string  `json:"failures,omitempty"`
}

// NewRunInfo extracts report metadata from a run result.
func NewRunInfo(res runner.Result) RunInfo {
	info := RunInfo{
		RunID:               res.ID.String(),
		TxInterface:         res.TxInterface,
		RxInterface:         res.RxInterface,
		PacketSize:          res.PacketSize,
		ParallelID:          res.ParallelID,
		PacketsPerIteration: res.PacketsPerIteration,
		Requested:           res.Requested,
		Attempted:           res.Attempted,
		StartedAt:           res.StartedAt,
	}
	for _, f := range res.Failures {
		info.Failures = append(info.Failures, f.Error())
	}
	return info
}

// ThresholdSummary aggregates threshold outcomes for the JSON and HTML reports.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

// ThresholdResultJSON is one evaluated threshold.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

func summarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, info RunInfo, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- pkt-gen Benchmark Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", info.RunID)
	fmt.Fprintf(w, "Interfaces:        tx=%s rx=%s\n", info.TxInterface, info.RxInterface)
	fmt.Fprintf(w, "Packet Size:       %d bytes\n", info.PacketSize)
	if info.ParallelID != nil {
		fmt.Fprintf(w, "Parallel ID:       %d\n", *info.ParallelID)
	}
	fmt.Fprintf(w, "Packets/Pass:      %d\n", info.PacketsPerIteration)
	fmt.Fprintf(w, "Iterations:        %d of %d (attempted %d)\n", stats.Iterations, info.Requested, info.Attempted)
	fmt.Fprintf(w, "Failures:          %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	if info.CSV != "" {
		fmt.Fprintf(w, "CSV:               %s\n", info.CSV)
	}

	if stats.Iterations == 0 {
		fmt.Fprintln(w, "\nNo data: no iteration completed.")
	} else {
		fmt.Fprintln(w, "\nPacket Rate:")
		writeSeries(w, stats.PacketRate, formatPPS)
		fmt.Fprintln(w, "\nThroughput:")
		writeSeries(w, stats.BitRate, formatBPS)
		fmt.Fprintln(w, "\nAverage Batch (pkts):")
		writeSeries(w, stats.AverageBatch, formatPlain)
		if stats.PassMs.Max > 0 {
			fmt.Fprintln(w, "\nPass Duration (ms):")
			writeSeries(w, stats.PassMs, formatPlain)
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		names := make([]string, 0, len(stats.Errors))
		for name := range stats.Errors {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if stats.Errors[names[i]] != stats.Errors[names[j]] {
				return stats.Errors[names[i]] > stats.Errors[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", name, stats.Errors[name])
		}
	}
	if len(info.Failures) > 0 {
		fmt.Fprintln(w, "\nFailed Iterations:")
		for _, f := range info.Failures {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}

func writeSeries(w io.Writer, s metrics.SeriesStats, format func(float64) string) {
	fmt.Fprintf(w, "  Min:             %s\n", format(s.Min))
	fmt.Fprintf(w, "  Max:             %s\n", format(s.Max))
	fmt.Fprintf(w, "  Mean:            %s\n", format(s.Mean))
	fmt.Fprintf(w, "  StdDev:          %s\n", format(s.StdDev))
	fmt.Fprintf(w, "  P50:             %s\n", format(s.P50))
	fmt.Fprintf(w, "  P90:             %s\n", format(s.P90))
	fmt.Fprintf(w, "  P99:             %s\n", format(s.P99))
}

func formatPPS(v float64) string   { return metrics.FormatRate(v, "pps") }
func formatBPS(v float64) string   { return metrics.FormatRate(v, "bps") }
func formatPlain(v float64) string { return fmt.Sprintf("%.2f", v) }

// PrintThresholds writes one line per threshold result.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// JSONReport is the document written by PrintJSONReport.
type JSONReport struct {
	Run        RunInfo           `json:"run"`
	Stats      metrics.Stats     `json:"stats"`
	Iterations []pktgen.Record   `json:"iterations"`
	Thresholds *ThresholdSummary `json:"thresholds,omitempty"`
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, info RunInfo, stats metrics.Stats, records []pktgen.Record, results []threshold.Result) error {
	if records == nil {
		records = []pktgen.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(JSONReport{
		Run:        info,
		Stats:      stats,
		Iterations: records,
		Thresholds: summarizeThresholds(results),
	})
}
