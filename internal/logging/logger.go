package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures where and how log records are written.
type Options struct {
	Level       string
	Environment string
	// Format is "json" (default) or "text".
	Format string
	// File enables rotation through lumberjack in addition to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output replaces stdout, mainly for tests.
	Output io.Writer
}

// StandardLogger provides a standardized logging interface
type StandardLogger struct {
	logger *slog.Logger
	level  slog.Level
	closer io.Closer
}

// NewStandardLogger creates a JSON logger on stdout.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return New(Options{Level: logLevel, Environment: environment})
}

// New builds a StandardLogger from opts.
func New(opts Options) *StandardLogger {
	out, closer := writer(opts)
	level := getSlogLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Environment != "" {
		logger = logger.With("environment", opts.Environment)
	}
	return &StandardLogger{logger: logger, level: level, closer: closer}
}

func writer(opts Options) (io.Writer, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	if opts.File == "" {
		return out, nil
	}
	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(out, rotating), rotating
}

// NewServiceLogger returns the logrus logger used by the resilience
// helpers, sharing level and rotation settings with the slog logger.
func NewServiceLogger(opts Options) *logrus.Logger {
	out, _ := writer(opts)
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(ParseLogrusLevel(opts.Level))
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}

// Tee adds handler as a second destination, keeping the existing one.
func (l *StandardLogger) Tee(handler slog.Handler) {
	l.logger = slog.New(fanout{l.logger.Handler(), handler})
}

// Close releases the rotating log file, if any.
func (l *StandardLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Level is the configured minimum level.
func (l *StandardLogger) Level() slog.Level {
	return l.level
}

func (l *StandardLogger) WithService(serviceName string) *slog.Logger {
	return l.logger.With("service", serviceName)
}

func (l *StandardLogger) WithComponent(componentName string) *slog.Logger {
	return l.logger.With("component", componentName)
}

func (l *StandardLogger) WithOperation(operationName string) *slog.Logger {
	return l.logger.With("operation", operationName)
}

// WithCycleID tags records with the update cycle they belong to.
func (l *StandardLogger) WithCycleID(cycleID string) *slog.Logger {
	return l.logger.With("cycle_id", cycleID)
}

func (l *StandardLogger) WithRequestID(requestID string) *slog.Logger {
	return l.logger.With("request_id", requestID)
}

func (l *StandardLogger) WithSymbol(symbol string) *slog.Logger {
	return l.logger.With("symbol", symbol)
}

func (l *StandardLogger) WithError(err error) *slog.Logger {
	if err == nil {
		return l.logger
	}
	return l.logger.With("error", err.Error())
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Application startup",
		"service", serviceName,
		"version", version,
		"port", port,
		"event", "startup",
	)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Application shutdown",
		"service", serviceName,
		"reason", reason,
		"event", "shutdown",
	)
}

// LogBusinessEvent logs business events in a standardized format
func (l *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	l.logger.Info("Business event",
		"event_type", eventType,
		"details", details,
		"event", "business",
	)
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger
}

// getSlogLevel converts string level to slog.Level
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
