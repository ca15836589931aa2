package pktgen

import (
	"regexp"
	"strconv"
)

// Field names used in ParseError.
const (
	FieldSpeed        = "speed"
	FieldBandwidth    = "bandwidth"
	FieldAverageBatch = "average batch"
)

var (
	speedPattern     = regexp.MustCompile(`Speed:\s*(\d+(?:\.\d+)?)\s*([KMGT]?)pps`)
	bandwidthPattern = regexp.MustCompile(`Bandwidth:\s*(\d+(?:\.\d+)?)\s*([KMGT]?)bps`)
	batchPattern     = regexp.MustCompile(`Average batch:\s*(\d+(?:\.\d+)?)\s*pkts`)
)

var prefixScale = map[string]float64{
	"":  1,
	"K": 1e3,
	"M": 1e6,
	"G": 1e9,
	"T": 1e12,
}

// Record holds the metrics extracted from one receive pass.
type Record struct {
	PacketsPerSecond float64 `json:"packets_per_sec" csv:"packets_per_sec"`
	SpeedUnit        string  `json:"speed_units" csv:"speed_units"`
	Throughput       float64 `json:"throughput" csv:"throughput"`
	ThroughputUnit   string  `json:"throughput_units" csv:"throughput_units"`
	AverageBatch     float64 `json:"average_batch" csv:"average_batch"`
}

// PacketRate returns the packet rate in packets per second.
func (r Record) PacketRate() float64 {
	return r.PacketsPerSecond * Scale(r.SpeedUnit)
}

// BitRate returns the throughput in bits per second.
func (r Record) BitRate() float64 {
	return r.Throughput * Scale(r.ThroughputUnit)
}

// Scale returns the multiplier for an SI prefix. Unknown prefixes scale by 1.
func Scale(prefix string) float64 {
	if s, ok := prefixScale[prefix]; ok {
		return s
	}
	return 1
}

// ParseReport extracts a Record from the text printed by a receive pass.
// Each field is located independently and must be positive. On failure the
// returned *ParseError lists every absent or non-positive field and the
// Record is zero.
func ParseReport(report string) (Record, error) {
	var rec Record
	var missing, nonPositive []string

	check := func(field string, v float64) {
		if v <= 0 {
			nonPositive = append(nonPositive, field)
		}
	}

	if m := speedPattern.FindStringSubmatch(report); m != nil {
		rec.PacketsPerSecond, _ = strconv.ParseFloat(m[1], 64)
		rec.SpeedUnit = m[2]
		check(FieldSpeed, rec.PacketsPerSecond)
	} else {
		missing = append(missing, FieldSpeed)
	}

	if m := bandwidthPattern.FindStringSubmatch(report); m != nil {
		rec.Throughput, _ = strconv.ParseFloat(m[1], 64)
		rec.ThroughputUnit = m[2]
		check(FieldBandwidth, rec.Throughput)
	} else {
		missing = append(missing, FieldBandwidth)
	}

	if m := batchPattern.FindStringSubmatch(report); m != nil {
		rec.AverageBatch, _ = strconv.ParseFloat(m[1], 64)
		check(FieldAverageBatch, rec.AverageBatch)
	} else {
		missing = append(missing, FieldAverageBatch)
	}

	if len(missing) > 0 || len(nonPositive) > 0 {
		return Record{}, &ParseError{Missing: missing, NonPositive: nonPositive}
	}
	return rec, nil
}
