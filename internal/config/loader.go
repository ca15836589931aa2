package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a
// Config. Precedence, lowest first: defaults, config file, explicit flags.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TxInterface = strings.TrimSpace(cfg.TxInterface)
	cfg.RxInterface = strings.TrimSpace(cfg.RxInterface)
	cfg.OnFailure = strings.ToLower(strings.TrimSpace(cfg.OnFailure))
	if cfg.HTMLOutput != "" {
		cfg.DrawPlots = true
	}
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	for _, f := range []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Iterations, []string{"iterations"}},
		{&cfg.PacketsPerIteration, []string{"pkts_per_iteration", "pkts-per-iteration", "packets"}},
		{&cfg.PacketSize, []string{"pkt_size", "pkt-size"}},
		{&cfg.Retries, []string{"retries"}},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "parallel_id", "parallel-id"); ok && raw != nil {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("parallel_id: %w", err)
		}
		cfg.ParallelID = &val
	}

	for _, f := range []struct {
		dst  *string
		keys []string
	}{
		{&cfg.TxInterface, []string{"tx_interface", "tx-interface"}},
		{&cfg.RxInterface, []string{"rx_interface", "rx-interface"}},
		{&cfg.OnFailure, []string{"on_failure", "on-failure"}},
		{&cfg.OutputDir, []string{"output_dir", "output-dir"}},
		{&cfg.HTMLOutput, []string{"html_output", "html-output"}},
		{&cfg.MetricsFile, []string{"metrics_file", "metrics-file"}},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}

	for _, f := range []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.DrawPlots, []string{"draw_plots", "draw-plots"}},
		{&cfg.JSONOutput, []string{"json_output", "json-output"}},
		{&cfg.Dashboard, []string{"dashboard"}},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	for _, f := range []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Interval, []string{"interval"}},
		{&cfg.MeasureTimeout, []string{"measure_timeout", "measure-timeout"}},
		{&cfg.StartupGrace, []string{"startup_grace", "startup-grace"}},
		{&cfg.StopTimeout, []string{"stop_timeout", "stop-timeout"}},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "pkt_gen", "pkt-gen", "pktgen"); ok {
		if err := applyPktGenSettings(&cfg.PktGen, raw); err != nil {
			return fmt.Errorf("pkt_gen: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "logging"); ok {
		if err := applyLoggingSettings(&cfg.Logging, raw); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyPktGenSettings(p *PktGenConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "binary", "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("binary: %w", err)
		}
		p.Binary = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sudo"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("sudo: %w", err)
		}
		p.Sudo = val
	}
	if raw, ok := lookupSetting(settings, "wrapper"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("wrapper: %w", err)
		}
		p.Wrapper = val
	}
	if raw, ok := lookupSetting(settings, "env"); ok {
		val, err := asEnvList(raw)
		if err != nil {
			return fmt.Errorf("env: %w", err)
		}
		p.Env = val
	}
	return nil
}

func applyLoggingSettings(l *LoggingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		dst *string
		key string
	}{
		{&l.Level, "level"},
		{&l.Format, "format"},
		{&l.File, "file"},
	} {
		if raw, ok := lookupSetting(settings, f.key); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		dst  *string
		keys []string
	}{
		{&t.Endpoint, []string{"endpoint"}},
		{&t.Protocol, []string{"protocol"}},
		{&t.ServiceName, []string{"service_name", "service-name"}},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	return nil
}
