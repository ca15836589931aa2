package output_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pktbench/internal/metrics"
	"github.com/torosent/pktbench/internal/output"
	"github.com/torosent/pktbench/internal/threshold"
)

func TestGenerateHTMLReport(t *testing.T) {
	res := sampleResult(t)
	collector := metrics.FromRecords(res.Iterations)
	stats := collector.Stats(2 * time.Second)

	thresholdResults := []threshold.Result{
		{
			Threshold: threshold.Threshold{
				Raw:       "pps:avg > 1M",
				Metric:    "pps",
				Aggregate: "avg",
				Operator:  ">",
				Value:     1e6,
			},
			Actual: 1.5e6,
			Pass:   true,
		},
		{
			Threshold: threshold.Threshold{
				Raw:       "failures:count < 1",
				Metric:    "failures",
				Aggregate: "count",
				Operator:  "<",
				Value:     1,
			},
			Actual: 1,
			Pass:   false,
		},
	}

	var buf bytes.Buffer
	err := output.GenerateHTMLReport(&buf, output.NewRunInfo(res), stats, collector.History(), thresholdResults)
	if err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	requiredElements := []string{
		"<!DOCTYPE html>",
		"pkt-gen Benchmark Report",
		res.ID.String(),
		"Parallel ID 2",
		"tx eth0",
		"rx eth1",
		"1.50 Mpps",
		"uPlot",
		"pps-chart",
		"bps-chart",
		"batch-chart",
		"Thresholds (1/2 Passed)",
		"pps:avg &gt; 1M",
		"1.00 Mpps",
		"Failed Iterations",
		"iteration 1:",
	}
	for _, elem := range requiredElements {
		if !strings.Contains(html, elem) {
			t.Errorf("HTML missing required element: %s", elem)
		}
	}
}

func TestGenerateHTMLReportNoHistory(t *testing.T) {
	var buf bytes.Buffer
	err := output.GenerateHTMLReport(&buf, output.RunInfo{RunID: "empty"}, metrics.Stats{}, nil, nil)
	if err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	if !strings.Contains(html, "No data") {
		t.Errorf("HTML missing no-data notice")
	}
	if strings.Contains(html, `id="pps-chart"`) {
		t.Errorf("HTML should not have charts without history")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Errorf("HTML should not have thresholds section without results")
	}
}

func TestWriteHTMLReport(t *testing.T) {
	res := sampleResult(t)
	collector := metrics.FromRecords(res.Iterations)

	path := filepath.Join(t.TempDir(), "plots", output.DefaultHTMLName)
	if err := output.WriteHTMLReport(path, output.NewRunInfo(res), collector.Stats(time.Second), collector.History(), nil); err != nil {
		t.Fatalf("WriteHTMLReport() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Contains(data, []byte("packets_per_sec")) {
		t.Errorf("report does not embed history")
	}
}
