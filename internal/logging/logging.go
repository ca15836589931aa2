// Package logging builds the structured logger handed to the experiment
// driver and its middleware.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"

	"github.com/torosent/pktbench/internal/config"
)

// Formats accepted by New.
const (
	FormatCLI  = "cli"
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to w in the configured format. When cfg.File
// is set, every entry is also appended to that file as JSON; close the
// returned io.Closer once the run is over.
func New(cfg config.LoggingConfig, w io.Writer) (*log.Logger, io.Closer, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	var handler log.Handler
	switch strings.ToLower(cfg.Format) {
	case "", FormatCLI:
		handler = cli.New(w)
	case FormatText:
		handler = text.New(w)
	case FormatJSON:
		handler = json.New(w)
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q: use cli, text or json", cfg.Format)
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handler = multi.New(handler, json.New(file))
		closer = file
	}

	return &log.Logger{Handler: handler, Level: level}, closer, nil
}
