// Package pktgen wraps the netmap pkt-gen packet generator.
//
// Two kinds of invocation are supported:
//
//   - A long-lived transmitter started with [Generator.Start]. It runs
//     `pkt-gen -f tx` in the background until [Transmitter.Stop] is called.
//   - A bounded receive pass run with [Receiver.Measure]. It blocks until
//     `pkt-gen -f rx -n <count>` exits and returns the textual report.
//
// Reports are turned into typed values with [ParseReport]:
//
//	raw, err := receiver.Measure(ctx, "eth1", 100)
//	if err != nil {
//		return err
//	}
//	rec, err := pktgen.ParseReport(raw)
//
// # Errors
//
// Failures are reported as [*LaunchError], [*InvocationError] and
// [*ParseError]. Arguments rejected before any process is touched wrap
// [ErrInvalidArgument].
//
// # Units
//
// pkt-gen scales rates with an SI prefix ("14.880 Mpps", "7.142 Gbps").
// The prefix is kept verbatim in [Record.SpeedUnit] and
// [Record.ThroughputUnit]; use [Record.PacketRate] and [Record.BitRate]
// for values in base units.
package pktgen
