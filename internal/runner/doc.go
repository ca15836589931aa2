// Package runner drives a pktbench experiment run.
//
// A run owns one background transmitter and performs a fixed number of
// measurement passes against it, strictly one after another:
//
//	r := runner.New(runner.Options{
//		Iterations:          30,
//		TxInterface:         "eth0",
//		RxInterface:         "eth1",
//		PacketsPerIteration: 100,
//		PacketSize:          60,
//		Launcher:            runner.GeneratorLauncher(pktgen.NewGenerator(cmd)),
//		Measurer:            pktgen.NewReceiver(cmd),
//	})
//	res, err := r.Run(ctx)
//
// The transmitter is stopped exactly once on every exit path, including
// failed iterations, caller cancellation and panics unwinding the loop.
//
// # Failure Policy
//
// With [FailAbort] (the default) the first failed iteration ends the loop and
// is returned as an [*IterationError] next to the partial [Result]. With
// [FailSkip] failed iterations are logged, kept in Result.Failures and the
// loop continues; a run where nothing succeeded returns [ErrNoIterations].
// A failed pass never produces a placeholder record.
//
// # Cancellation
//
// Cancelling ctx stops the run between iterations. A pass already in flight
// is left to finish.
//
// # Middleware
//
// Measurers can be wrapped:
//   - [WithLogging]: log failed passes
//   - [WithRetry]: re-run a failed pass before the iteration counts as failed
package runner
