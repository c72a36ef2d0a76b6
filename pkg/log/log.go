package log

import (
	"io"
	"log/syslog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/moverwatch/moverwatch/pkg/sanitize"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Syslog     bool
	SyslogTag  string
	Output     io.Writer
}

// Init initializes the global logger. Every sink is wrapped in the
// sanitizing writer, so secrets are redacted regardless of call site.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var console io.Writer
	if cfg.JSONOutput {
		console = output
	} else {
		console = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	sink := console
	if cfg.Syslog {
		tag := cfg.SyslogTag
		if tag == "" {
			tag = "moverwatch"
		}
		if sw, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag); err == nil {
			sink = zerolog.MultiLevelWriter(console, zerolog.SyslogLevelWriter(sw))
		}
	}

	Logger = zerolog.New(&sanitizingWriter{w: sink}).
		With().Timestamp().Logger().
		Hook(correlationHook{})
}

// sanitizingWriter scrubs serialized records on their way to the sink.
// Sitting below the encoder means message text, field values, and error
// strings are all covered by the same pass: secret-shaped URLs are rewritten
// and any field whose name matches the sensitivity list loses its value
// wholesale, no matter which call site attached it.
type sanitizingWriter struct {
	w io.Writer
}

func (s *sanitizingWriter) Write(p []byte) (int, error) {
	clean := sanitize.Record(string(p))
	if _, err := s.w.Write([]byte(clean)); err != nil {
		return 0, err
	}
	// Report the original length; callers treat short writes as errors.
	return len(p), nil
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
