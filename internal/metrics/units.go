package metrics

import (
	"fmt"
	"math"
)

var siPrefixes = []struct {
	prefix string
	scale  float64
}{
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"K", 1e3},
}

// FormatRate renders v with the largest SI prefix that keeps it >= 1,
// e.g. FormatRate(14880000, "pps") == "14.88 Mpps".
func FormatRate(v float64, unit string) string {
	abs := math.Abs(v)
	for _, p := range siPrefixes {
		if abs >= p.scale {
			return fmt.Sprintf("%.2f %s%s", v/p.scale, p.prefix, unit)
		}
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}
