package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/pktbench/internal/metrics"
	"github.com/torosent/pktbench/internal/output"
)

const csvMarker = "_pkt_gen_metrics_"

func listRuns(dir string, stdout io.Writer) error {
	entries, err := output.ListIndex(dir)
	if err != nil {
		return err
	}
	return output.PrintIndex(stdout, entries)
}

func plotCSV(csvPath, outPath string, stdout io.Writer) error {
	records, err := output.ReadCSV(csvPath)
	if err != nil {
		return err
	}

	collector := metrics.FromRecords(records)
	stats := collector.Stats(0)
	info := runInfoFromCSV(csvPath, len(records))

	if outPath == "" {
		outPath = filepath.Join(filepath.Dir(csvPath), output.DefaultHTMLName)
	}
	if err := output.WriteHTMLReport(outPath, info, stats, collector.History(), nil); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (%d iterations)\n", outPath, len(records))
	return nil
}

// runInfoFromCSV recovers what the file name carries about a run:
// <id>_pkt_gen_metrics_[<parallel>_]<size>.csv. Unknown names keep only the
// base name as run ID.
func runInfoFromCSV(csvPath string, records int) output.RunInfo {
	base := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	info := output.RunInfo{
		RunID:     base,
		Requested: records,
		Attempted: records,
		CSV:       csvPath,
	}

	id, rest, ok := strings.Cut(base, csvMarker)
	if !ok {
		return info
	}
	parts := strings.Split(rest, "_")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return info
		}
		nums = append(nums, n)
	}
	switch len(nums) {
	case 1:
		info.PacketSize = nums[0]
	case 2:
		parallel := nums[0]
		info.ParallelID = &parallel
		info.PacketSize = nums[1]
	default:
		return info
	}
	info.RunID = id
	if u, err := ulid.Parse(id); err == nil {
		info.StartedAt = ulid.Time(u.Time())
	}
	return info
}
