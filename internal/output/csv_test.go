package output_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/torosent/pktbench/internal/output"
	"github.com/torosent/pktbench/internal/runner"
)

func TestCSVName(t *testing.T) {
	parallel := 3
	tests := []struct {
		name     string
		parallel *int
		size     int
		want     string
	}{
		{"single run", nil, 60, "01J_pkt_gen_metrics_60.csv"},
		{"sibling run", &parallel, 1500, "01J_pkt_gen_metrics_3_1500.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := output.CSVName("01J", tt.parallel, tt.size); got != tt.want {
				t.Errorf("CSVName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	res := sampleResult(t)
	dir := filepath.Join(t.TempDir(), "nested")

	path, err := output.WriteCSV(dir, res)
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if want := filepath.Join(dir, res.ID.String()+"_pkt_gen_metrics_2_60.csv"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read CSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "packets_per_sec,speed_units,throughput,throughput_units,average_batch" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows", len(lines))
	}

	records, err := output.ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != len(res.Iterations) {
		t.Fatalf("ReadCSV() returned %d records, want %d", len(records), len(res.Iterations))
	}
	for i := range records {
		if records[i] != res.Iterations[i] {
			t.Errorf("record %d = %+v, want %+v", i, records[i], res.Iterations[i])
		}
	}
}

func TestWriteCSVEmptyRun(t *testing.T) {
	dir := t.TempDir()
	_, err := output.WriteCSV(dir, runner.Result{PacketSize: 60})
	if !errors.Is(err, output.ErrNoRecords) {
		t.Fatalf("WriteCSV() error = %v, want ErrNoRecords", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("empty run wrote %d files", len(entries))
	}
}

func TestReadCSVErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := output.ReadCSV(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}

	headerOnly := filepath.Join(dir, "header.csv")
	if err := os.WriteFile(headerOnly, []byte("packets_per_sec,speed_units,throughput,throughput_units,average_batch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := output.ReadCSV(headerOnly); err == nil {
		t.Error("expected error for CSV without records")
	}
}
