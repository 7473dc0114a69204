// Package logging provides structured logrus setup shared by the webhook
// server, the bot handlers and the media pipeline.
package logging

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/config"
)

const serviceName = "media-downloader-bot"

var baseLogger *logrus.Entry

// Context holds the per-update fields handlers attach to their log lines.
type Context struct {
	UserID   int64
	ChatID   int64
	UpdateID int64
	Platform string
	MediaID  string
	Event    string
}

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Fields returns the non-zero values of c keyed by their log field names.
func (c Context) Fields() Fields {
	fields := Fields{}

	if c.UserID != 0 {
		fields["user_id"] = c.UserID
	}
	if c.ChatID != 0 {
		fields["chat_id"] = c.ChatID
	}
	if c.UpdateID != 0 {
		fields["update_id"] = c.UpdateID
	}
	if v := strings.TrimSpace(c.Platform); v != "" {
		fields["platform"] = v
	}
	if v := strings.TrimSpace(c.MediaID); v != "" {
		fields["media_id"] = v
	}
	if v := strings.TrimSpace(c.Event); v != "" {
		fields["event"] = v
	}

	return fields
}

// Setup configures the global logger using the provided runtime configuration.
// It applies environment-specific formatting, log level, and default fields.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(cfg.AppEnv))

	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     cfg.AppEnv,
	})

	return baseLogger, nil
}

// Logger returns the configured base logger, initializing a default one if Setup
// has not been called (useful for early boot errors).
func Logger() *logrus.Entry {
	return ensureLogger()
}

// Enrich adds the non-zero fields of c to entry, or to the base logger when
// entry is nil.
func Enrich(entry *logrus.Entry, c Context) *logrus.Entry {
	if entry == nil {
		entry = ensureLogger()
	}
	fields := c.Fields()
	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// WithContext enriches the base logger with c.
func WithContext(c Context) *logrus.Entry {
	return Enrich(nil, c)
}

// Info logs an informational message with optional structured fields.
func Info(msg string, fields logrus.Fields) {
	logWithFields(fields).Info(msg)
}

// Warn logs a warning message with optional structured fields.
func Warn(msg string, fields logrus.Fields) {
	logWithFields(fields).Warn(msg)
}

// Error logs an error message with optional structured fields.
func Error(msg string, fields logrus.Fields) {
	logWithFields(fields).Error(msg)
}

// WithStack attaches the current goroutine stack to the entry. Endpoint
// boundaries use it when converting failures and panics into responses.
func WithStack(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		entry = ensureLogger()
	}
	return entry.WithField("stack", string(debug.Stack()))
}

func logWithFields(fields logrus.Fields) *logrus.Entry {
	entry := ensureLogger()
	if len(fields) == 0 {
		return entry
	}

	return entry.WithFields(fields)
}

func ensureLogger() *logrus.Entry {
	if baseLogger != nil {
		return baseLogger
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(formatterForEnv(config.DefaultAppEnv))

	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     config.DefaultAppEnv,
	})

	return baseLogger
}

func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
