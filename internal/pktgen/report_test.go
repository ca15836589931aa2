package pktgen

import (
	"errors"
	"reflect"
	"testing"
)

const sampleReport = `675.422133 main [2767] interface is netmap:eth1
675.422214 main [2887] running on 1 cpus (have 8)
676.423297 main_thread [2639] 14.880 Mpps (14.885 Mpkts 7.142 Gbps in 1000331 usec) 511.98 avg_batch 0 min_space
Received 100 packets 6000 bytes 1 events 60 bytes each in 0.00 seconds.
Speed: 14.880 Mpps Bandwidth: 7.142 Gbps (raw 9.999 Gbps). Average batch: 511.98 pkts
`

func TestParseReport(t *testing.T) {
	tests := []struct {
		name   string
		report string
		want   Record
	}{
		{
			name:   "labelled fields",
			report: "Speed: 1.23 Mpps\nBandwidth: 4.56 Gbps\nAverage batch: 7.89 pkts\n",
			want: Record{
				PacketsPerSecond: 1.23,
				SpeedUnit:        "M",
				Throughput:       4.56,
				ThroughputUnit:   "G",
				AverageBatch:     7.89,
			},
		},
		{
			name:   "pkt-gen summary",
			report: sampleReport,
			want: Record{
				PacketsPerSecond: 14.880,
				SpeedUnit:        "M",
				Throughput:       7.142,
				ThroughputUnit:   "G",
				AverageBatch:     511.98,
			},
		},
		{
			name:   "kilo and mega prefixes",
			report: "Speed: 999.00 Kpps Bandwidth: 479.52 Mbps Average batch: 1.00 pkts",
			want: Record{
				PacketsPerSecond: 999,
				SpeedUnit:        "K",
				Throughput:       479.52,
				ThroughputUnit:   "M",
				AverageBatch:     1,
			},
		},
		{
			name:   "no prefix",
			report: "Speed: 12.50 pps Bandwidth: 6.00 Kbps Average batch: 2 pkts",
			want: Record{
				PacketsPerSecond: 12.5,
				SpeedUnit:        "",
				Throughput:       6,
				ThroughputUnit:   "K",
				AverageBatch:     2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReport(tt.report)
			if err != nil {
				t.Fatalf("ParseReport() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseReport() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseReportMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		report  string
		missing []string
	}{
		{
			name:    "no speed",
			report:  "Bandwidth: 4.56 Gbps\nAverage batch: 7.89 pkts",
			missing: []string{FieldSpeed},
		},
		{
			name:    "no bandwidth",
			report:  "Speed: 1.23 Mpps\nAverage batch: 7.89 pkts",
			missing: []string{FieldBandwidth},
		},
		{
			name:    "no average batch",
			report:  "Speed: 1.23 Mpps\nBandwidth: 4.56 Gbps",
			missing: []string{FieldAverageBatch},
		},
		{
			name:    "empty",
			report:  "",
			missing: []string{FieldSpeed, FieldBandwidth, FieldAverageBatch},
		},
		{
			name:    "unlabelled numbers",
			report:  "14.880 Mpps 7.142 Gbps 511.98 avg_batch",
			missing: []string{FieldSpeed, FieldBandwidth, FieldAverageBatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReport(tt.report)
			if err == nil {
				t.Fatal("expected error")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error = %T, want *ParseError", err)
			}
			if !reflect.DeepEqual(parseErr.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", parseErr.Missing, tt.missing)
			}
			if got != (Record{}) {
				t.Errorf("expected zero record on failure, got %+v", got)
			}
		})
	}
}

func TestParseReportRejectsNonPositive(t *testing.T) {
	tests := []struct {
		name        string
		report      string
		missing     []string
		nonPositive []string
	}{
		{
			name:        "idle link",
			report:      "Speed: 0.000 pps Bandwidth: 0.000 bps Average batch: 0.00 pkts",
			nonPositive: []string{FieldSpeed, FieldBandwidth, FieldAverageBatch},
		},
		{
			name:        "zero speed only",
			report:      "Speed: 0 Mpps Bandwidth: 4.56 Gbps Average batch: 7.89 pkts",
			nonPositive: []string{FieldSpeed},
		},
		{
			name:        "zero batch with missing bandwidth",
			report:      "Speed: 1.23 Mpps Average batch: 0.00 pkts",
			missing:     []string{FieldBandwidth},
			nonPositive: []string{FieldAverageBatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReport(tt.report)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
			if !reflect.DeepEqual(parseErr.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", parseErr.Missing, tt.missing)
			}
			if !reflect.DeepEqual(parseErr.NonPositive, tt.nonPositive) {
				t.Errorf("NonPositive = %v, want %v", parseErr.NonPositive, tt.nonPositive)
			}
			if got != (Record{}) {
				t.Errorf("expected zero record on failure, got %+v", got)
			}
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{Missing: []string{FieldSpeed, FieldAverageBatch}}
	want := "parse report: missing speed, average batch"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = &ParseError{Missing: []string{FieldBandwidth}, NonPositive: []string{FieldSpeed}}
	want = "parse report: missing bandwidth; non-positive speed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRecordRates(t *testing.T) {
	rec := Record{PacketsPerSecond: 14.5, SpeedUnit: "M", Throughput: 7.5, ThroughputUnit: "G"}
	if got := rec.PacketRate(); got != 14.5e6 {
		t.Errorf("PacketRate() = %v, want 14.5e6", got)
	}
	if got := rec.BitRate(); got != 7.5e9 {
		t.Errorf("BitRate() = %v, want 7.5e9", got)
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		prefix string
		want   float64
	}{
		{"", 1},
		{"K", 1e3},
		{"M", 1e6},
		{"G", 1e9},
		{"T", 1e12},
		{"x", 1},
	}
	for _, tt := range tests {
		if got := Scale(tt.prefix); got != tt.want {
			t.Errorf("Scale(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}
