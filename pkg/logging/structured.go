package logging

import (
	"context"
	"time"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/rs/zerolog"
)

// StructuredLogger provides structured logging capabilities
type StructuredLogger struct {
	logger zerolog.Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(component string) *StructuredLogger {
	return &StructuredLogger{logger: GetLogger(component)}
}

// NewStructuredLoggerFromContext creates a structured logger carrying the
// request id stored in ctx, if any.
func NewStructuredLoggerFromContext(ctx context.Context, component string) *StructuredLogger {
	return &StructuredLogger{logger: FromContext(ctx, component)}
}

// Zerolog exposes the underlying logger.
func (l *StructuredLogger) Zerolog() zerolog.Logger {
	return l.logger
}

// WithField adds a field to the logger
func (l *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return &StructuredLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	logger := l.logger.With()
	for key, value := range fields {
		logger = logger.Interface(key, value)
	}
	return &StructuredLogger{logger: logger.Logger()}
}

// WithError adds an error to the logger. Gateway errors also contribute their
// code, upstream status and details. The upstream body is never logged since
// identity providers may echo submitted credentials in error pages.
func (l *StructuredLogger) WithError(err error) *StructuredLogger {
	logger := l.logger.With().Err(err)

	if gwErr, ok := errors.As(err); ok {
		logger = logger.
			Str("error_code", string(gwErr.Code)).
			Int("http_status", gwErr.HTTPStatus)
		if gwErr.UpstreamStatus != 0 {
			logger = logger.Int("upstream_status", gwErr.UpstreamStatus)
		}
		for key, value := range gwErr.Details {
			logger = logger.Interface("error_"+key, value)
		}
	}

	return &StructuredLogger{logger: logger.Logger()}
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Debugf logs a formatted debug message
func (l *StructuredLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func (l *StructuredLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// LogOperation logs the outcome and duration of fn at debug level on success
// and error level on failure.
func (l *StructuredLogger) LogOperation(operation string, fn func() error) error {
	start := time.Now()
	err := fn()

	logger := l.WithField("operation", operation)
	logger.logger = logger.logger.With().Dur("duration", time.Since(start)).Logger()
	if err != nil {
		logger.WithError(err).Error("operation failed")
	} else {
		logger.Debug("operation completed")
	}
	return err
}
