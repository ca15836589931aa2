package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RunLabels identify a run in exported metrics.
type RunLabels struct {
	RunID       string
	TxInterface string
	RxInterface string
	PacketSize  int
	ParallelID  *int
}

func (l RunLabels) constLabels() prometheus.Labels {
	labels := prometheus.Labels{
		"run_id":   l.RunID,
		"tx":       l.TxInterface,
		"rx":       l.RxInterface,
		"pkt_size": strconv.Itoa(l.PacketSize),
	}
	if l.ParallelID != nil {
		labels["parallel_id"] = strconv.Itoa(*l.ParallelID)
	}
	return labels
}

// NewRegistry returns a registry holding gauges for stats.
func NewRegistry(stats Stats, labels RunLabels) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	constLabels := labels.constLabels()

	seriesGauges := []struct {
		name, help string
		stats      SeriesStats
	}{
		{"pktbench_packets_per_second", "Received packet rate per measurement pass.", stats.PacketRate},
		{"pktbench_bits_per_second", "Received bandwidth per measurement pass.", stats.BitRate},
		{"pktbench_average_batch_packets", "Average packets per batch reported by the generator.", stats.AverageBatch},
	}
	for _, sg := range seriesGauges {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        sg.name,
			Help:        sg.help,
			ConstLabels: constLabels,
		}, []string{"stat"})
		if err := reg.Register(vec); err != nil {
			return nil, fmt.Errorf("register %s: %w", sg.name, err)
		}
		vec.WithLabelValues("min").Set(sg.stats.Min)
		vec.WithLabelValues("max").Set(sg.stats.Max)
		vec.WithLabelValues("mean").Set(sg.stats.Mean)
		vec.WithLabelValues("stddev").Set(sg.stats.StdDev)
		vec.WithLabelValues("p50").Set(sg.stats.P50)
		vec.WithLabelValues("p90").Set(sg.stats.P90)
		vec.WithLabelValues("p99").Set(sg.stats.P99)
	}

	scalars := []struct {
		name, help string
		value      float64
	}{
		{"pktbench_iterations", "Completed iterations.", float64(stats.Iterations)},
		{"pktbench_iteration_failures", "Failed iterations.", float64(stats.Failures)},
		{"pktbench_run_duration_seconds", "Wall time of the run.", stats.Duration.Seconds()},
	}
	for _, sc := range scalars {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        sc.name,
			Help:        sc.help,
			ConstLabels: constLabels,
		})
		if err := reg.Register(g); err != nil {
			return nil, fmt.Errorf("register %s: %w", sc.name, err)
		}
		g.Set(sc.value)
	}
	return reg, nil
}

// WriteTextfile writes stats in the node_exporter textfile collector format.
func WriteTextfile(path string, stats Stats, labels RunLabels) error {
	reg, err := NewRegistry(stats, labels)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
