package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pktbench run --tx-interface IFACE --rx-interface IFACE [flags]",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Experiment flags
	flags.Int("iterations", DefaultIterations, "Number of measurement passes")
	flags.IntP("pkts-per-iteration", "n", DefaultPacketsPerIteration, "Packets received per measurement pass")
	flags.IntP("pkt-size", "s", DefaultPacketSize, "Transmitted packet size in bytes")
	flags.String("tx-interface", "", "Interface the transmitter sends on")
	flags.String("rx-interface", "", "Interface the measurement passes receive on")
	flags.IntP("parallel-id", "p", 0, "Identifier of this run among sibling runs (appears in file names)")
	flags.String("on-failure", DefaultOnFailure, "What a failed iteration does to the run: abort or skip")
	flags.Int("retries", 0, "Retries per failed measurement pass")
	flags.Duration("interval", 0, "Minimum spacing between measurement passes")
	flags.Duration("measure-timeout", 0, "Upper bound on one measurement pass (0 means none)")
	flags.Duration("startup-grace", DefaultStartupGrace, "How long the transmitter must survive to count as started")
	flags.Duration("stop-timeout", DefaultStopTimeout, "How long to wait after SIGTERM before killing the transmitter")

	// pkt-gen invocation flags
	flags.String("pkt-gen", DefaultBinary, "Path to the pkt-gen binary")
	flags.Bool("sudo", true, "Run pkt-gen through sudo")
	flags.StringSlice("wrapper", nil, "Command prefix for pkt-gen (repeatable, e.g. --wrapper ip,netns,exec,ns0)")
	flags.StringSlice("pkt-gen-env", nil, "Extra KEY=VALUE environment for pkt-gen (repeatable)")

	// Output flags
	flags.StringP("output-dir", "o", DefaultOutputDir, "Directory for CSV files, plots and the run index")
	flags.BoolP("draw-plots", "d", false, "Write an HTML plot of the run")
	flags.String("html-output", "", "Write the HTML plot to this path (implies --draw-plots)")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'pps:avg > 14M')")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
	flags.Bool("print-config", false, "Print the effective configuration as YAML and exit")

	// Logging flags
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", DefaultLogFormat, "Log format: cli, text or json")
	flags.String("log-file", "", "Also append JSON log entries to this file")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", DefaultSampleRate, "Fraction of runs to trace (0.0-1.0)")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	intFlags := map[string]*int{
		"iterations":         &cfg.Iterations,
		"pkts-per-iteration": &cfg.PacketsPerIteration,
		"pkt-size":           &cfg.PacketSize,
		"retries":            &cfg.Retries,
	}
	for name, dst := range intFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("parallel-id") {
		val, err := fs.GetInt("parallel-id")
		if err != nil {
			return err
		}
		cfg.ParallelID = &val
	}

	durationFlags := map[string]*time.Duration{
		"interval":        &cfg.Interval,
		"measure-timeout": &cfg.MeasureTimeout,
		"startup-grace":   &cfg.StartupGrace,
		"stop-timeout":    &cfg.StopTimeout,
	}
	for name, dst := range durationFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	stringFlags := map[string]*string{
		"tx-interface":         &cfg.TxInterface,
		"rx-interface":         &cfg.RxInterface,
		"on-failure":           &cfg.OnFailure,
		"pkt-gen":              &cfg.PktGen.Binary,
		"output-dir":           &cfg.OutputDir,
		"html-output":          &cfg.HTMLOutput,
		"metrics-file":         &cfg.MetricsFile,
		"log-level":            &cfg.Logging.Level,
		"log-format":           &cfg.Logging.Format,
		"log-file":             &cfg.Logging.File,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	boolFlags := map[string]*bool{
		"sudo":             &cfg.PktGen.Sudo,
		"draw-plots":       &cfg.DrawPlots,
		"json-output":      &cfg.JSONOutput,
		"dashboard":        &cfg.Dashboard,
		"print-config":     &cfg.PrintConfig,
		"tracing-insecure": &cfg.Tracing.Insecure,
	}
	for name, dst := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	sliceFlags := map[string]*[]string{
		"wrapper":     &cfg.PktGen.Wrapper,
		"pkt-gen-env": &cfg.PktGen.Env,
		"threshold":   &cfg.Thresholds,
	}
	for name, dst := range sliceFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
