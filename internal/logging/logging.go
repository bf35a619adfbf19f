// Package logging is the zap logger shared by every rc2sync component. A
// session's logger travels in its context carrying the workspace and session ids.
package logging

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const loggerKey contextKey = "logger"

var (
	mu           sync.RWMutex
	globalLogger *zap.Logger
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config selects the level, encoding and destination of the global logger.
// Level is one of debug, info, warn or error; an unknown level means info.
// Format "console" gives colored human-readable lines, anything else JSON.
// OutputPath is "stdout", "stderr" or a file path.
type Config struct {
	Level      string
	Format     string
	OutputPath string
}

func (c Config) zapConfig() zap.Config {
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.Level = globalLevel
	if c.OutputPath != "" {
		zc.OutputPaths = []string{c.OutputPath}
		zc.ErrorOutputPaths = []string{c.OutputPath}
	}
	return zc
}

// Init builds the global logger from cfg. The level stays adjustable through SetLevel.
func Init(cfg Config) error {
	SetLevel(cfg.Level)
	logger, err := cfg.zapConfig().Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	SetLogger(logger)
	return nil
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer cores.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l.Sync()
	}
	return nil
}

// SetLevel changes the global log level at runtime. Unknown names select info.
func SetLevel(level string) {
	l := zapcore.InfoLevel
	if level != "" {
		if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			l = zapcore.InfoLevel
		}
	}
	globalLevel.SetLevel(l)
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = Config{}.zapConfig().Build(zap.AddCallerSkip(1))
	}
	return globalLogger
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// WithContext returns the logger stored in ctx, or the global logger.
func WithContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return L()
}

// WithFields returns a context whose logger carries the given fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	logger := WithContext(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, logger)
}

// WithSession tags the context logger with the workspace a session belongs to.
func WithSession(ctx context.Context, workspaceID int, sessionID string) context.Context {
	return WithFields(ctx, WorkspaceID(workspaceID), zap.String("session", sessionID))
}

// Debug, Info, Warn and Error log through the global logger.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// RoundTripper logs every outgoing REST request and its outcome.
type RoundTripper struct {
	Next http.RoundTripper
}

// NewRoundTripper wraps next (http.DefaultTransport when nil).
func NewRoundTripper(next http.RoundTripper) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{Next: next}
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := WithContext(req.Context())
	logger.Debug("request started",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
	)

	resp, err := rt.Next.RoundTrip(req)
	if err != nil {
		logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Int64("size", resp.ContentLength),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// WorkspaceID, FileID, ImageID and TransID name the ids every component logs.
func WorkspaceID(id int) zap.Field { return zap.Int("workspace_id", id) }

func FileID(id int) zap.Field { return zap.Int("file_id", id) }

func ImageID(id int) zap.Field { return zap.Int("image_id", id) }

func TransID(id string) zap.Field { return zap.String("trans_id", id) }

func String(key, val string) zap.Field { return zap.String(key, val) }

func Int(key string, val int) zap.Field { return zap.Int(key, val) }

func Int64(key string, val int64) zap.Field { return zap.Int64(key, val) }

func Err(err error) zap.Field { return zap.Error(err) }

func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }

func Any(key string, val interface{}) zap.Field { return zap.Any(key, val) }
