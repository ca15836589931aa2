package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/pktbench/internal/pktgen"
	"github.com/torosent/pktbench/internal/tracing"
)

// Result captures one experiment run.
type Result struct {
	ID                  ulid.ULID
	Iterations          []pktgen.Record // successful iterations in measurement order
	PacketSize          int
	ParallelID          *int
	TxInterface         string
	RxInterface         string
	PacketsPerIteration int
	Requested           int // iterations asked for
	Attempted           int // measurement passes started
	Failures            []*IterationError
	StartedAt           time.Time
	Duration            time.Duration
}

// Runner drives one background transmitter and a sequence of measurement
// passes against it.
type Runner struct {
	opt Options
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Run launches the transmitter, performs the iterations one after another and
// stops the transmitter on every exit path, panics included.
//
// The returned Result is never nil-like: on failure it holds the records
// collected so far. A stop failure is joined with the run's own error.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	res = Result{
		ID:                  ulid.Make(),
		PacketSize:          r.opt.PacketSize,
		ParallelID:          r.opt.ParallelID,
		TxInterface:         r.opt.TxInterface,
		RxInterface:         r.opt.RxInterface,
		PacketsPerIteration: r.opt.PacketsPerIteration,
		Requested:           r.opt.Iterations,
		StartedAt:           time.Now(),
	}
	if err := r.opt.validate(); err != nil {
		return res, err
	}

	logger := r.opt.Logger.WithFields(log.Fields{
		"run_id": res.ID.String(),
		"tx":     r.opt.TxInterface,
		"rx":     r.opt.RxInterface,
	})

	ctx, span := tracing.StartRunSpan(ctx, r.opt.Tracer, res.ID.String(),
		tracing.AttrTxInterface.String(r.opt.TxInterface),
		tracing.AttrRxInterface.String(r.opt.RxInterface),
		tracing.AttrPacketSize.Int(r.opt.PacketSize),
		tracing.AttrIterations.Int(r.opt.Iterations),
	)
	if r.opt.ParallelID != nil {
		span.SetAttributes(tracing.AttrParallelID.Int(*r.opt.ParallelID))
	}
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		tracing.EndSpan(span, err)
	}()

	logger.WithField("size", r.opt.PacketSize).Info("starting transmitter")
	proc, err := r.opt.Launcher.Launch(ctx, r.opt.TxInterface, r.opt.PacketSize)
	if err != nil {
		logger.WithError(err).Error("transmitter failed to start")
		return res, err
	}
	defer func() {
		if stopErr := proc.Stop(); stopErr != nil {
			logger.WithError(stopErr).Warn("stopping transmitter failed")
			err = errors.Join(err, fmt.Errorf("stop transmitter: %w", stopErr))
			return
		}
		logger.Debug("transmitter stopped")
	}()

	err = r.loop(ctx, proc, &res, logger)
	if err == nil {
		logger.WithFields(log.Fields{
			"iterations": len(res.Iterations),
			"failures":   len(res.Failures),
		}).Info("run complete")
	}
	return res, err
}

func (r *Runner) loop(ctx context.Context, proc Process, res *Result, logger log.Interface) error {
	limiter := r.opt.LimiterFactory(r.opt.Interval)

	for i := 0; i < r.opt.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			logger.WithField("completed", len(res.Iterations)).Warn("run interrupted")
			return fmt.Errorf("run interrupted before iteration %d: %w", i, err)
		}
		if !proc.Alive() {
			return &IterationError{Index: i, Err: ErrTransmitterExited}
		}
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("run interrupted before iteration %d: %w", i, err)
		}

		res.Attempted++
		rec, took, err := r.iterate(ctx, i)
		if err != nil {
			iterErr := &IterationError{Index: i, Err: err}
			if r.opt.Observer != nil {
				r.opt.Observer.IterationFailed(i, err)
			}
			if r.opt.OnFailure == FailAbort {
				logger.WithError(err).WithField("iteration", i).Error("iteration failed, aborting run")
				return iterErr
			}
			logger.WithError(err).WithField("iteration", i).Warn("iteration failed, skipping")
			res.Failures = append(res.Failures, iterErr)
			continue
		}

		res.Iterations = append(res.Iterations, rec)
		if r.opt.Observer != nil {
			r.opt.Observer.IterationCompleted(i, rec, took)
		}
		logger.WithFields(log.Fields{
			"iteration": i,
			"pps":       fmt.Sprintf("%g %spps", rec.PacketsPerSecond, rec.SpeedUnit),
			"bandwidth": fmt.Sprintf("%g %sbps", rec.Throughput, rec.ThroughputUnit),
			"batch":     rec.AverageBatch,
		}).Debug("iteration complete")
	}

	if len(res.Iterations) == 0 && len(res.Failures) > 0 {
		errs := make([]error, 0, len(res.Failures)+1)
		errs = append(errs, ErrNoIterations)
		for _, f := range res.Failures {
			errs = append(errs, f)
		}
		return errors.Join(errs...)
	}
	return nil
}

func (r *Runner) iterate(ctx context.Context, index int) (pktgen.Record, time.Duration, error) {
	ctx, span := tracing.StartIterationSpan(ctx, r.opt.Tracer, index, r.opt.RxInterface, r.opt.PacketsPerIteration)

	start := time.Now()
	report, err := r.opt.Measurer.Measure(ctx, r.opt.RxInterface, r.opt.PacketsPerIteration)
	took := time.Since(start)
	if err != nil {
		tracing.EndSpan(span, err)
		return pktgen.Record{}, took, err
	}

	rec, err := r.opt.Parse(report)
	if err != nil {
		tracing.EndSpan(span, err)
		return pktgen.Record{}, took, err
	}

	tracing.EndSpan(span, nil,
		tracing.AttrPacketRate.Float64(rec.PacketRate()),
		tracing.AttrBitRate.Float64(rec.BitRate()),
		tracing.AttrAverageBatch.Float64(rec.AverageBatch),
	)
	return rec, took, nil
}
