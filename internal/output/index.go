package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/gofrs/flock"
	"github.com/tidwall/gjson"
)

const (
	// IndexFile lists every run written to an output directory, one JSON
	// object per line.
	IndexFile = "runs.jsonl"

	indexLockSuffix = ".lock"
)

// IndexEntry is one line of the run index.
type IndexEntry struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  float64   `json:"duration_ms"`
	TxInterface string    `json:"tx_interface"`
	RxInterface string    `json:"rx_interface"`
	PacketSize  int       `json:"pkt_size"`
	ParallelID  *int      `json:"parallel_id,omitempty"`
	Requested   int       `json:"requested"`
	Iterations  int       `json:"iterations"`
	Failures    int       `json:"failures"`
	MeanPPS     float64   `json:"mean_pps"`
	MeanBPS     float64   `json:"mean_bps"`
	CSV         string    `json:"csv,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// AppendIndex appends entry to dir/runs.jsonl. Sibling runs sharing dir are
// serialized with an exclusive lock on runs.jsonl.lock.
func AppendIndex(dir string, entry IndexEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode index entry: %w", err)
	}
	line = append(line, '\n')

	path := filepath.Join(dir, IndexFile)
	lock := flock.New(path + indexLockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock run index: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run index: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("append run index: %w", err)
	}
	return file.Close()
}

// ListIndex reads dir/runs.jsonl. Lines that are not valid JSON objects are
// skipped. A missing index yields no entries.
func ListIndex(dir string) ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run index: %w", err)
	}

	var entries []IndexEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}
		doc := gjson.ParseBytes(line)
		if !doc.IsObject() || !doc.Get("run_id").Exists() {
			continue
		}
		entries = append(entries, entryFromJSON(doc))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan run index: %w", err)
	}
	return entries, nil
}

func entryFromJSON(doc gjson.Result) IndexEntry {
	e := IndexEntry{
		RunID:       doc.Get("run_id").String(),
		DurationMs:  doc.Get("duration_ms").Float(),
		TxInterface: doc.Get("tx_interface").String(),
		RxInterface: doc.Get("rx_interface").String(),
		PacketSize:  int(doc.Get("pkt_size").Int()),
		Requested:   int(doc.Get("requested").Int()),
		Iterations:  int(doc.Get("iterations").Int()),
		Failures:    int(doc.Get("failures").Int()),
		MeanPPS:     doc.Get("mean_pps").Float(),
		MeanBPS:     doc.Get("mean_bps").Float(),
		CSV:         doc.Get("csv").String(),
		Error:       doc.Get("error").String(),
	}
	if started := doc.Get("started_at"); started.Exists() {
		e.StartedAt = started.Time()
	}
	if pid := doc.Get("parallel_id"); pid.Exists() {
		id := int(pid.Int())
		e.ParallelID = &id
	}
	return e
}

// PrintIndex writes entries as an aligned table.
func PrintIndex(w io.Writer, entries []IndexEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tTX\tRX\tSIZE\tPARALLEL\tITERATIONS\tMEAN PPS\tMEAN BANDWIDTH\tSTATUS")
	for _, e := range entries {
		parallel := "-"
		if e.ParallelID != nil {
			parallel = fmt.Sprint(*e.ParallelID)
		}
		status := "ok"
		if e.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d/%d\t%s\t%s\t%s\n",
			e.RunID,
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.TxInterface,
			e.RxInterface,
			e.PacketSize,
			parallel,
			e.Iterations,
			e.Requested,
			formatPPS(e.MeanPPS),
			formatBPS(e.MeanBPS),
			status,
		)
	}
	return tw.Flush()
}
