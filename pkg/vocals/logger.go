package vocals

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// VocalsLogger wraps zerolog for structured logging
type VocalsLogger struct {
	logger zerolog.Logger
}

// LogLevel represents the logging level
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level     LogLevel
	Pretty    bool
	Output    io.Writer
	AddSource bool
	Fields    map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stderr,
		Fields: make(map[string]interface{}),
	}
}

// ParseLogLevel maps EngineConfig.DebugLevel names onto LogLevel.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToUpper(name) {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// NewVocalsLogger creates a new structured logger
func NewVocalsLogger(config *LogConfig) *VocalsLogger {
	if config == nil {
		config = DefaultLogConfig()
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        config.Output,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(config.Output)
	}

	switch config.Level {
	case TraceLevel:
		logger = logger.Level(zerolog.TraceLevel)
	case DebugLevel:
		logger = logger.Level(zerolog.DebugLevel)
	case InfoLevel:
		logger = logger.Level(zerolog.InfoLevel)
	case WarnLevel:
		logger = logger.Level(zerolog.WarnLevel)
	case ErrorLevel:
		logger = logger.Level(zerolog.ErrorLevel)
	}

	logger = logger.With().Timestamp().Logger()
	if config.AddSource {
		logger = logger.With().Caller().Logger()
	}
	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &VocalsLogger{logger: logger}
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() *VocalsLogger {
	return &VocalsLogger{logger: zerolog.Nop()}
}

// WithComponent adds a component field to the logger
func (l *VocalsLogger) WithComponent(component string) *VocalsLogger {
	return &VocalsLogger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *VocalsLogger) WithField(key string, value interface{}) *VocalsLogger {
	return &VocalsLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *VocalsLogger) WithFields(fields map[string]interface{}) *VocalsLogger {
	return &VocalsLogger{logger: l.logger.With().Fields(fields).Logger()}
}

// WithError adds an error field to the logger
func (l *VocalsLogger) WithError(err error) *VocalsLogger {
	return &VocalsLogger{logger: l.logger.With().Err(err).Logger()}
}

func (l *VocalsLogger) Trace(msg string) { l.logger.Trace().Msg(msg) }

func (l *VocalsLogger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *VocalsLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *VocalsLogger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *VocalsLogger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *VocalsLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *VocalsLogger) Error(msg string) { l.logger.Error().Msg(msg) }

// Fatal logs a fatal level message and exits
func (l *VocalsLogger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// LogAudioEvent logs audio-related events with structured fields
func (l *VocalsLogger) LogAudioEvent(event string, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "audio").
		Str("event", event).
		Fields(fields).
		Msg("Audio event")
}

// LogConnectionEvent logs connection-related events
func (l *VocalsLogger) LogConnectionEvent(event string, state ConnectionState, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "connection").
		Str("event", event).
		Str("state", string(state)).
		Fields(fields).
		Msg("Connection event")
}

// LogError logs a VocalsError with structured fields
func (l *VocalsLogger) LogError(err *VocalsError) {
	l.logger.Error().
		Str("error_code", err.Code).
		Time("error_time", err.Timestamp).
		Fields(err.Details).
		Msg(err.Error())
}

// LogStats logs streaming statistics
func (l *VocalsLogger) LogStats(stats Stats) {
	l.logger.Info().
		Str("event_type", "stats").
		Uint64("frames_encoded", stats.FramesEncoded).
		Uint64("frames_sent", stats.FramesSent).
		Uint64("frames_lost", stats.FramesLost).
		Uint64("samples_dropped", stats.SamplesDropped).
		Uint64("reconnects", stats.Reconnects).
		Int("buffered_samples", stats.BufferedSamples).
		Int("queued_frames", stats.QueuedFrames).
		Msg("Stream statistics")
}

var globalLogger = NewVocalsLogger(DefaultLogConfig())

// GetGlobalLogger returns the logger used when none is injected.
func GetGlobalLogger() *VocalsLogger {
	return globalLogger
}

// SetGlobalLogger replaces the default logger. Call it before creating clients.
func SetGlobalLogger(logger *VocalsLogger) {
	globalLogger = logger
}
