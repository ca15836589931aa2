package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/torosent/pktbench/internal/pktgen"
	"github.com/torosent/pktbench/internal/runner"
)

// ErrNoRecords is returned when there is nothing to persist.
var ErrNoRecords = errors.New("run has no records")

// CSVName returns the metrics file name for a run:
// <id>_pkt_gen_metrics_<size>.csv, or
// <id>_pkt_gen_metrics_<parallel>_<size>.csv for sibling runs.
func CSVName(runID string, parallelID *int, packetSize int) string {
	if parallelID == nil {
		return fmt.Sprintf("%s_pkt_gen_metrics_%d.csv", runID, packetSize)
	}
	return fmt.Sprintf("%s_pkt_gen_metrics_%s_%d.csv", runID, strconv.Itoa(*parallelID), packetSize)
}

// WriteCSV writes the run's records to dir and returns the file path.
// A run without records is not written and yields ErrNoRecords.
func WriteCSV(dir string, res runner.Result) (string, error) {
	if len(res.Iterations) == 0 {
		return "", ErrNoRecords
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, CSVName(res.ID.String(), res.ParallelID, res.PacketSize))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create CSV file: %w", err)
	}

	records := res.Iterations
	if err := gocsv.MarshalFile(&records, file); err != nil {
		file.Close()
		return "", fmt.Errorf("write CSV: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close CSV file: %w", err)
	}
	return path, nil
}

// ReadCSV loads records written by WriteCSV.
func ReadCSV(path string) ([]pktgen.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	var records []pktgen.Record
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read CSV %s: %w", path, ErrNoRecords)
	}
	return records, nil
}
