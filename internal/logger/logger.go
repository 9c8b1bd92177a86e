// Package logger configures Iris's structured logging from a setup
// document's log_mode/log_enable/log_use_stdout/log_output_path keys and
// hands out per-component child loggers.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode mirrors the setup document's log_mode key.
type Mode string

const (
	Quiet   Mode = "Quiet"
	Normal  Mode = "Normal"
	Verbose Mode = "Verbose"
)

func (m Mode) level() zerolog.Level {
	switch m {
	case Quiet:
		return zerolog.WarnLevel
	case Verbose:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options configures Initialize, sourced directly from the setup
// document's log_* keys.
type Options struct {
	OutputPath string
	UseStdout  bool
	Mode       Mode
	Enable     bool
}

var Log zerolog.Logger

// Initialize opens the log file named per the
// iris_debug_log_<mon>D_<day>M_<year>Y_<hour>H<min>M<sec>S.txt convention
// under opts.OutputPath, wires it (and optionally stdout) as the sink for
// the global logger, and sets the level from opts.Mode. If opts.Enable is
// false the global logger discards everything. Rotation is out of scope:
// one file per process lifetime.
func Initialize(opts Options) (*os.File, error) {
	if !opts.Enable {
		Log = zerolog.New(io.Discard)
		log.Logger = Log
		return nil, nil
	}

	zerolog.SetGlobalLevel(opts.Mode.level())
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	var file *os.File

	if opts.OutputPath != "" {
		if err := os.MkdirAll(opts.OutputPath, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create output path: %w", err)
		}
		path := filepath.Join(opts.OutputPath, logFileName(time.Now()))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("logger: create log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if opts.UseStdout || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	out := io.MultiWriter(writers...)
	Log = zerolog.New(out).With().Timestamp().Logger()
	log.Logger = Log

	Log.Info().Str("mode", string(opts.Mode)).Msg("logger initialized")
	return file, nil
}

func logFileName(t time.Time) string {
	return fmt.Sprintf("iris_debug_log_%dD_%dM_%dY_%dH%dM%dS.txt",
		int(t.Month()), t.Day(), t.Year(), t.Hour(), t.Minute(), t.Second())
}

// Component returns a child logger tagged with component, e.g. "loader",
// "graph", "bus", "manager".
func Component(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}

// Named returns a component logger further tagged with an instance name,
// e.g. Named("graph", graphName) for a specific Graph.
func Named(component, name string) zerolog.Logger {
	return Log.With().Str("component", component).Str("name", name).Logger()
}
