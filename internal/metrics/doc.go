// Package metrics aggregates pktbench iteration records.
//
// # Collector
//
// A [Collector] is attached to the runner as its observer and keeps one
// series per metric (packet rate, bit rate, average batch, pass duration):
//
//	collector := metrics.NewCollector()
//	r := runner.New(runner.Options{..., Observer: collector})
//	res, err := r.Run(ctx)
//	stats := collector.Stats(res.Duration)
//
// Rates are stored in base units (packets/sec, bits/sec) with the reported
// SI prefix applied. Percentiles come from an HDR histogram; min, max, mean
// and standard deviation are exact.
//
// [FromRecords] rebuilds a collector from stored records.
//
// # History
//
// [Collector.History] returns one [DataPoint] per completed iteration in
// measurement order, used for charts and the live dashboard.
//
// # Export
//
// [WriteTextfile] writes the summary in the Prometheus textfile collector
// format.
package metrics
