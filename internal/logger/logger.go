package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the underlying zap logger with domain helpers
type Logger struct {
	*zap.SugaredLogger
}

// Config represents logger configuration
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ContextKey is the type of the context keys the logger reads fields from.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserIDKey    ContextKey = "user_id"
)

// New builds a logger. Format "console" gives human readable output, anything
// else JSON.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Output != "" {
		zcfg.OutputPaths = []string{cfg.Output}
	}

	base, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

// WithFields returns a child logger carrying fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(fieldsToArgs(fields)...)}
}

// WithContext returns a child logger carrying request scoped fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

// LogTrade logs the outcome of a buy or sell
func (l *Logger) LogTrade(portfolioID string, tradeType string, symbol string, quantity, price string, err error) {
	fields := map[string]interface{}{
		"portfolio_id": portfolioID,
		"operation":    tradeType,
		"symbol":       symbol,
		"quantity":     quantity,
	}
	if price != "" {
		fields["price"] = price
	}

	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Warn("Trade rejected")
	} else {
		l.WithFields(fields).Info("Trade executed")
	}
}

// LogQuoteFetch logs an upstream market data request
func (l *Logger) LogQuoteFetch(provider string, symbols []string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"provider": provider,
		"symbols":  strings.Join(symbols, ","),
		"duration": duration.Milliseconds(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("Quote fetch failed")
	} else {
		l.WithFields(fields).Debug("Quote fetch completed")
	}
}

// LogAPIRequest logs a served HTTP request
func (l *Logger) LogAPIRequest(method string, path string, status int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   status,
		"duration": duration.Milliseconds(),
	}

	switch {
	case status >= 500:
		l.WithFields(fields).Error("API request failed")
	case status >= 400:
		l.WithFields(fields).Info("API request rejected")
	default:
		l.WithFields(fields).Debug("API request completed")
	}
}

// Helper functions
func extractContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if ctx == nil {
		return fields
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields["request_id"] = requestID
	}

	if userID := ctx.Value(UserIDKey); userID != nil {
		fields["user_id"] = fmt.Sprint(userID)
	}

	return fields
}

func fieldsToArgs(fields map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
