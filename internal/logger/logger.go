package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is a log level name accepted by logrus
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogFormat selects the output encoding
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config holds logger configuration
type Config struct {
	Level      LogLevel  `yaml:"level" json:"level"`
	Format     LogFormat `yaml:"format" json:"format"`
	Output     string    `yaml:"output" json:"output"` // stdout, stderr, file
	Filename   string    `yaml:"filename" json:"filename"`
	MaxSize    int       `yaml:"max_size" json:"max_size"` // MB
	MaxAge     int       `yaml:"max_age" json:"max_age"`   // days
	MaxBackups int       `yaml:"max_backups" json:"max_backups"`
	Compress   bool      `yaml:"compress" json:"compress"`
}

// DefaultConfig is the configuration used until Init is called
var DefaultConfig = Config{
	Level:      LevelInfo,
	Format:     FormatJSON,
	Output:     "stdout",
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 10,
	Compress:   true,
}

// Logger is the structured logging interface used across the service
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
}

// StructuredLogger wraps a logrus entry
type StructuredLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	config Config
}

// NewLogger creates a new logger from config
func NewLogger(config Config) Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == FormatText {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	var output io.Writer
	switch config.Output {
	case "stderr":
		output = os.Stderr
	case "file":
		if config.Filename == "" {
			config.Filename = "logs/tradeinsight.log"
		}
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			output = os.Stdout
		} else {
			output = &lumberjack.Logger{
				Filename:   config.Filename,
				MaxSize:    config.MaxSize,
				MaxAge:     config.MaxAge,
				MaxBackups: config.MaxBackups,
				Compress:   config.Compress,
			}
		}
	default:
		output = os.Stdout
	}
	logger.SetOutput(output)

	return &StructuredLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		config: config,
	}
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields...)
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields...)
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields...)
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.logWithFields(logrus.ErrorLevel, msg, fields...)
}

func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	l.logWithFields(logrus.FatalLevel, msg, fields...)
}

// WithField returns a logger with one extra field
func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	return &StructuredLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
		config: l.config,
	}
}

// WithFields returns a logger with extra fields
func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	return &StructuredLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
		config: l.config,
	}
}

// WithContext attaches request-scoped fields from the context
func (l *StructuredLogger) WithContext(ctx context.Context) Logger {
	entry := l.entry.WithContext(ctx)

	if requestID := ctx.Value("request_id"); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}
	if userID := ctx.Value("user_id"); userID != nil {
		entry = entry.WithField("user_id", userID)
	}

	return &StructuredLogger{
		logger: l.logger,
		entry:  entry,
		config: l.config,
	}
}

// logWithFields interprets fields as alternating key/value pairs
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields ...interface{}) {
	entry := l.entry
	if len(fields) > 0 {
		fieldMap := make(map[string]interface{})
		for i := 0; i < len(fields)-1; i += 2 {
			if key, ok := fields[i].(string); ok {
				fieldMap[key] = fields[i+1]
			}
		}
		if len(fieldMap) > 0 {
			entry = entry.WithFields(fieldMap)
		}
	}
	entry.Log(level, msg)
}

var globalLogger Logger

func init() {
	globalLogger = NewLogger(DefaultConfig)
}

// Init replaces the global logger
func Init(config Config) {
	globalLogger = NewLogger(config)
}

// GetGlobalLogger returns the global logger
func GetGlobalLogger() Logger {
	return globalLogger
}

// Debug logs at debug level on the global logger
func Debug(msg string, fields ...interface{}) {
	globalLogger.Debug(msg, fields...)
}

// Info logs at info level on the global logger
func Info(msg string, fields ...interface{}) {
	globalLogger.Info(msg, fields...)
}

// Warn logs at warn level on the global logger
func Warn(msg string, fields ...interface{}) {
	globalLogger.Warn(msg, fields...)
}

// Error logs at error level on the global logger
func Error(msg string, fields ...interface{}) {
	globalLogger.Error(msg, fields...)
}

// Fatal logs at fatal level on the global logger
func Fatal(msg string, fields ...interface{}) {
	globalLogger.Fatal(msg, fields...)
}

// WithField adds a field on the global logger
func WithField(key string, value interface{}) Logger {
	return globalLogger.WithField(key, value)
}

// WithFields adds fields on the global logger
func WithFields(fields map[string]interface{}) Logger {
	return globalLogger.WithFields(fields)
}

// WithContext attaches context fields on the global logger
func WithContext(ctx context.Context) Logger {
	return globalLogger.WithContext(ctx)
}

// LogHTTPRequest logs a completed HTTP request at a level keyed off the
// response status.
func LogHTTPRequest(method, path string, statusCode int, latency time.Duration, clientIP, requestID string) {
	fields := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"latency":     latency.String(),
		"client_ip":   clientIP,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}

	msg := fmt.Sprintf("%s %s - %d", method, path, statusCode)
	switch {
	case statusCode >= 500:
		WithFields(fields).Error(msg)
	case statusCode >= 400:
		WithFields(fields).Warn(msg)
	default:
		WithFields(fields).Info(msg)
	}
}
