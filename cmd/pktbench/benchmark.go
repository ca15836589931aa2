package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/apex/log"

	"github.com/torosent/pktbench/internal/config"
	"github.com/torosent/pktbench/internal/dashboard"
	"github.com/torosent/pktbench/internal/logging"
	"github.com/torosent/pktbench/internal/metrics"
	"github.com/torosent/pktbench/internal/output"
	"github.com/torosent/pktbench/internal/pktgen"
	"github.com/torosent/pktbench/internal/runner"
	"github.com/torosent/pktbench/internal/threshold"
	"github.com/torosent/pktbench/internal/tracing"
)

const (
	progressInterval = time.Second
	baseRetryDelay   = 100 * time.Millisecond
	maxRetryDelay    = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func runBenchmark(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if cfg.PrintConfig {
		return cfg.WriteYAML(stdout)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := runner.ParseFailurePolicy(cfg.OnFailure)
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	cmd := pktgen.Command{
		Path:    cfg.PktGen.Binary,
		Sudo:    cfg.PktGen.Sudo,
		Wrapper: cfg.PktGen.Wrapper,
		Env:     cfg.PktGen.Env,
	}
	generator := pktgen.NewGenerator(cmd)
	generator.StartupGrace = cfg.StartupGrace
	generator.StopTimeout = cfg.StopTimeout

	receiver := pktgen.NewReceiver(cmd)
	receiver.Timeout = cfg.MeasureTimeout

	var measurer runner.Measurer = runner.WithLogging(receiver, logger)
	if cfg.Retries > 0 {
		measurer = runner.WithRetry(measurer, newRetryPolicy(cfg.Retries))
	}

	collector := metrics.NewCollector()
	r := runner.New(runner.Options{
		Iterations:          cfg.Iterations,
		TxInterface:         cfg.TxInterface,
		RxInterface:         cfg.RxInterface,
		PacketsPerIteration: cfg.PacketsPerIteration,
		PacketSize:          cfg.PacketSize,
		ParallelID:          cfg.ParallelID,
		OnFailure:           policy,
		Interval:            cfg.Interval,
		Launcher:            runner.GeneratorLauncher(generator),
		Measurer:            measurer,
		Observer:            collector,
		Logger:              logger,
		Tracer:              provider.Tracer(),
	})

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunConfig{
			TxInterface:         cfg.TxInterface,
			RxInterface:         cfg.RxInterface,
			PacketSize:          cfg.PacketSize,
			PacketsPerIteration: cfg.PacketsPerIteration,
			Iterations:          cfg.Iterations,
			ParallelID:          cfg.ParallelID,
			OnFailure:           string(policy),
			Retries:             cfg.Retries,
			Interval:            cfg.Interval,
			ConfigFile:          cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, cfg.Iterations, progressInterval, stdout)
		progress.Start()
	}

	res, runErr := r.Run(ctx)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}

	return finishRun(cfg, res, runErr, collector, thresholds, logger, stdout)
}

// finishRun persists and reports a run. Output is produced even when the run
// failed part way, so the records collected before the failure are kept.
func finishRun(cfg *config.Config, res runner.Result, runErr error, collector *metrics.Collector, thresholds []threshold.Threshold, logger log.Interface, stdout io.Writer) error {
	stats := collector.Stats(res.Duration)
	info := output.NewRunInfo(res)
	errs := []error{runErr}

	csvPath, err := output.WriteCSV(cfg.OutputDir, res)
	switch {
	case errors.Is(err, output.ErrNoRecords):
		logger.Warn("no iteration completed; CSV not written")
	case err != nil:
		errs = append(errs, err)
	default:
		info.CSV = csvPath
		logger.WithField("path", csvPath).Info("wrote CSV")
	}

	if err := output.AppendIndex(cfg.OutputDir, indexEntry(res, stats, csvPath, runErr)); err != nil {
		errs = append(errs, err)
	}

	var results []threshold.Result
	if len(thresholds) > 0 {
		results = threshold.NewEvaluator(thresholds).Evaluate(stats)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, info, stats, res.Iterations, results); err != nil {
			errs = append(errs, err)
		}
	} else {
		output.PrintReport(stdout, info, stats)
		if len(results) > 0 {
			output.PrintThresholds(stdout, results)
		}
	}

	if cfg.DrawPlots {
		path := cfg.HTMLOutput
		if path == "" {
			path = filepath.Join(cfg.OutputDir, output.DefaultHTMLName)
		}
		if err := output.WriteHTMLReport(path, info, stats, collector.History(), results); err != nil {
			errs = append(errs, err)
		} else {
			logger.WithField("path", path).Info("wrote HTML plot")
		}
	}

	if cfg.MetricsFile != "" {
		labels := metrics.RunLabels{
			RunID:       info.RunID,
			TxInterface: res.TxInterface,
			RxInterface: res.RxInterface,
			PacketSize:  res.PacketSize,
			ParallelID:  res.ParallelID,
		}
		if err := metrics.WriteTextfile(cfg.MetricsFile, stats, labels); err != nil {
			errs = append(errs, err)
		}
	}

	if len(results) > 0 && !threshold.AllPassed(results) {
		failed := 0
		for _, result := range results {
			if !result.Pass {
				failed++
			}
		}
		errs = append(errs, fmt.Errorf("%d of %d thresholds failed", failed, len(results)))
	}

	return errors.Join(errs...)
}

func indexEntry(res runner.Result, stats metrics.Stats, csvPath string, runErr error) output.IndexEntry {
	entry := output.IndexEntry{
		RunID:       res.ID.String(),
		StartedAt:   res.StartedAt,
		DurationMs:  stats.DurationMs,
		TxInterface: res.TxInterface,
		RxInterface: res.RxInterface,
		PacketSize:  res.PacketSize,
		ParallelID:  res.ParallelID,
		Requested:   res.Requested,
		Iterations:  len(res.Iterations),
		Failures:    int(stats.Failures),
		MeanPPS:     stats.PacketRate.Mean,
		MeanBPS:     stats.BitRate.Mean,
		CSV:         csvPath,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	return entry
}

func newRetryPolicy(retries int) runner.RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			return !errors.Is(err, pktgen.ErrInvalidArgument)
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
