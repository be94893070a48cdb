package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a logging severity threshold. It is a thin wrapper
// around zerolog's own level strings rather than an independent enum, so
// any level zerolog understands (including "trace" and "disabled") is
// accepted without passd having to track zerolog's level set separately.
type Level string

const (
	TraceLevel Level = "trace"
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration, mirroring the log_file/log_level
// keys the daemon reads from its configuration file.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call again to reconfigure
// after a config reload. An unparseable or empty Level falls back to
// info rather than failing startup over a logging misconfiguration.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).With().Timestamp().Str("service", "passd").Logger()
}

// WithComponent creates a child logger tagged with a component name, e.g.
// "secret", "vault", "rpc".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithSecret creates a child logger tagged with the relative_path of the
// secret an operation is acting on.
func WithSecret(relativePath string) zerolog.Logger {
	return Logger.With().Str("relative_path", relativePath).Logger()
}

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

// Errorf logs err against a printf-style message, interpolating args into
// format rather than passing the literal format string through unexpanded.
func Errorf(err error, format string, args ...interface{}) {
	Logger.Error().Err(err).Msgf(format, args...)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
