package runner

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"

	"github.com/torosent/pktbench/internal/pktgen"
)

// RetryPolicy configures retry behavior for measurement passes.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors but invalid arguments are retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

// retryMeasurer wraps a Measurer with retry logic.
type retryMeasurer struct {
	inner  Measurer
	policy RetryPolicy
}

// WithRetry wraps a Measurer so that a failed pass is re-run up to
// policy.MaxAttempts times before the iteration counts as failed.
func WithRetry(m Measurer, policy RetryPolicy) Measurer {
	if policy.MaxAttempts <= 1 {
		return m
	}
	return &retryMeasurer{
		inner:  m,
		policy: policy,
	}
}

func (r *retryMeasurer) shouldRetry(err error) bool {
	if errors.Is(err, pktgen.ErrInvalidArgument) {
		return false
	}
	if r.policy.ShouldRetry != nil {
		return r.policy.ShouldRetry(err)
	}
	return true
}

func (r *retryMeasurer) Measure(ctx context.Context, iface string, packets int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", cancelled(lastErr, ctx.Err())
		}

		report, err := r.inner.Measure(ctx, iface, packets)
		if err == nil {
			return report, nil
		}
		lastErr = err

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			if !r.shouldRetry(lastErr) {
				return "", lastErr
			}
			var delay time.Duration
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt, lastErr)
			} else {
				delay = r.policy.Delay
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return "", cancelled(lastErr, ctx.Err())
				}
			}
		}
	}
	return "", lastErr
}

// cancelled keeps the failure that led to a retry alongside the
// cancellation that cut the retry short.
func cancelled(lastErr, ctxErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return errors.Join(lastErr, ctxErr)
}

// loggingMeasurer wraps a Measurer with failure logging.
type loggingMeasurer struct {
	inner  Measurer
	logger log.Interface
}

// WithLogging wraps a Measurer to log failed passes.
func WithLogging(m Measurer, logger log.Interface) Measurer {
	if logger == nil {
		return m
	}
	return &loggingMeasurer{
		inner:  m,
		logger: logger,
	}
}

func (l *loggingMeasurer) Measure(ctx context.Context, iface string, packets int) (string, error) {
	report, err := l.inner.Measure(ctx, iface, packets)
	if err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"rx":      iface,
			"packets": packets,
		}).Warn("measurement pass failed")
	}
	return report, err
}
