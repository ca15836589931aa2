// Package config provides configuration loading, validation and dumping for
// pktbench runs.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file and flags.
const (
	DefaultIterations          = 30
	DefaultPacketsPerIteration = 100
	DefaultPacketSize          = 60
	DefaultOnFailure           = "abort"
	DefaultStartupGrace        = 500 * time.Millisecond
	DefaultStopTimeout         = 2 * time.Second
	DefaultBinary              = "pkt-gen"
	DefaultOutputDir           = "."
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "cli"
	DefaultSampleRate          = 1.0

	// minFramePayload is the smallest Ethernet frame pkt-gen emits without
	// padding, excluding the FCS.
	minFramePayload = 60
)

type Config struct {
	Iterations          int           `mapstructure:"iterations" yaml:"iterations"`
	PacketsPerIteration int           `mapstructure:"pkts_per_iteration" yaml:"pkts_per_iteration"`
	PacketSize          int           `mapstructure:"pkt_size" yaml:"pkt_size"`
	TxInterface         string        `mapstructure:"tx_interface" yaml:"tx_interface"`
	RxInterface         string        `mapstructure:"rx_interface" yaml:"rx_interface"`
	ParallelID          *int          `mapstructure:"parallel_id" yaml:"parallel_id,omitempty"`
	OnFailure           string        `mapstructure:"on_failure" yaml:"on_failure"`
	Retries             int           `mapstructure:"retries" yaml:"retries"`
	Interval            time.Duration `mapstructure:"interval" yaml:"interval"`
	MeasureTimeout      time.Duration `mapstructure:"measure_timeout" yaml:"measure_timeout"`
	StartupGrace        time.Duration `mapstructure:"startup_grace" yaml:"startup_grace"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	PktGen              PktGenConfig  `mapstructure:"pkt_gen" yaml:"pkt_gen"`
	OutputDir           string        `mapstructure:"output_dir" yaml:"output_dir"`
	DrawPlots           bool          `mapstructure:"draw_plots" yaml:"draw_plots"`
	HTMLOutput          string        `mapstructure:"html_output" yaml:"html_output,omitempty"`
	JSONOutput          bool          `mapstructure:"json_output" yaml:"json_output"`
	Dashboard           bool          `mapstructure:"dashboard" yaml:"dashboard"`
	MetricsFile         string        `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	Thresholds          []string      `mapstructure:"thresholds" yaml:"thresholds,omitempty"`
	Logging             LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing             TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	PrintConfig         bool          `mapstructure:"-" yaml:"-"`
	ConfigFile          string        `mapstructure:"-" yaml:"-"`
}

// PktGenConfig describes how the pkt-gen binary is invoked.
type PktGenConfig struct {
	Binary  string   `mapstructure:"binary" yaml:"binary"`
	Sudo    bool     `mapstructure:"sudo" yaml:"sudo"`
	Wrapper []string `mapstructure:"wrapper" yaml:"wrapper,omitempty"` // e.g. ip netns exec ns0
	Env     []string `mapstructure:"env" yaml:"env,omitempty"`         // KEY=VALUE
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // cli, text or json
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"` // grpc or http
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
}

// Enabled reports whether an OTLP endpoint was configured, directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// Default returns the configuration used when neither a file nor flags set
// a value.
func Default() *Config {
	return &Config{
		Iterations:          DefaultIterations,
		PacketsPerIteration: DefaultPacketsPerIteration,
		PacketSize:          DefaultPacketSize,
		OnFailure:           DefaultOnFailure,
		StartupGrace:        DefaultStartupGrace,
		StopTimeout:         DefaultStopTimeout,
		PktGen: PktGenConfig{
			Binary: DefaultBinary,
			Sudo:   true,
		},
		OutputDir: DefaultOutputDir,
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: TracingConfig{
			SampleRate: DefaultSampleRate,
		},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Iterations < 1 {
		issues = append(issues, "iterations must be >= 1")
	}
	if c.PacketsPerIteration < 1 {
		issues = append(issues, "pkts-per-iteration must be >= 1")
	}
	if c.PacketSize < 1 {
		issues = append(issues, "pkt-size must be >= 1")
	}
	if strings.TrimSpace(c.TxInterface) == "" {
		issues = append(issues, "tx-interface is required (use --help for usage information)")
	}
	if strings.TrimSpace(c.RxInterface) == "" {
		issues = append(issues, "rx-interface is required (use --help for usage information)")
	}
	if c.ParallelID != nil && *c.ParallelID < 0 {
		issues = append(issues, "parallel-id must be >= 0")
	}
	switch strings.ToLower(c.OnFailure) {
	case "abort", "skip":
	default:
		issues = append(issues, fmt.Sprintf("on-failure must be abort or skip, got %q", c.OnFailure))
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.Interval < 0 {
		issues = append(issues, "interval must be >= 0")
	}
	if c.MeasureTimeout < 0 {
		issues = append(issues, "measure-timeout must be >= 0")
	}
	if c.StartupGrace < 0 {
		issues = append(issues, "startup-grace must be >= 0")
	}
	if c.StopTimeout < 0 {
		issues = append(issues, "stop-timeout must be >= 0")
	}
	if strings.TrimSpace(c.PktGen.Binary) == "" {
		issues = append(issues, "pkt-gen binary must not be empty")
	}
	for _, kv := range c.PktGen.Env {
		if !strings.Contains(kv, "=") {
			issues = append(issues, fmt.Sprintf("pkt-gen-env entry %q must be KEY=VALUE", kv))
		}
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	issues = append(issues, validateLogging(c.Logging)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateLogging(l LoggingConfig) []string {
	var issues []string
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		issues = append(issues, fmt.Sprintf("log-level %q is not one of debug, info, warn, error, fatal", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "cli", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log-format %q is not one of cli, text, json", l.Format))
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing-protocol %q is not one of grpc, http", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing-sample-rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

// Warnings lists settings that are valid but probably unintended.
func (c Config) Warnings() []string {
	var warnings []string
	if c.PacketSize > 0 && c.PacketSize < minFramePayload {
		warnings = append(warnings, fmt.Sprintf("pkt-size %d is below the %d byte minimum frame; pkt-gen will pad it", c.PacketSize, minFramePayload))
	}
	if c.TxInterface != "" && c.TxInterface == c.RxInterface {
		warnings = append(warnings, fmt.Sprintf("tx and rx use the same interface %q", c.TxInterface))
	}
	return warnings
}

// WriteYAML writes the effective configuration as YAML.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlView(c)); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// yamlView renders durations as strings so the dump can be fed back through
// --config.
func yamlView(c Config) map[string]interface{} {
	var node yaml.Node
	_ = node.Encode(c)
	view := map[string]interface{}{}
	_ = node.Decode(&view)
	for key, d := range map[string]time.Duration{
		"interval":        c.Interval,
		"measure_timeout": c.MeasureTimeout,
		"startup_grace":   c.StartupGrace,
		"stop_timeout":    c.StopTimeout,
	} {
		view[key] = d.String()
	}
	return view
}
