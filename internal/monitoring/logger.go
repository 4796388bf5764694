package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Logger provides structured logging for the scoring service
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger on stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// ArtifactLogger logs the outcome of loading the model bundle
func (l *Logger) ArtifactLogger(modelPath, modelKind string, features, encoders int, err error) {
	if err != nil {
		l.Error("Artifact Load Failed",
			"error", err.Error(),
		)
		return
	}
	l.Info("Artifacts Loaded",
		"model_path", modelPath,
		"model_kind", modelKind,
		"feature_count", features,
		"encoder_count", encoders,
	)
}

// PredictionLogger logs a single prediction
func (l *Logger) PredictionLogger(sessionID string, probabilityBad, threshold float64, label string, duration time.Duration) {
	l.Info("Prediction Completed",
		"session_id", sessionID,
		"probability_bad", probabilityBad,
		"threshold", threshold,
		"label", label,
		"duration_ms", duration.Milliseconds(),
	)
}

// SweepLogger logs a completed what-if sweep
func (l *Logger) SweepLogger(sessionID, feature string, points int, categorical bool, duration time.Duration) {
	l.Info("Sweep Completed",
		"session_id", sessionID,
		"feature", feature,
		"points", points,
		"categorical", categorical,
		"duration_ms", duration.Milliseconds(),
	)
}

// SessionLogger logs session lifecycle events
func (l *Logger) SessionLogger(event, sessionID string, active int) {
	l.Debug("Session Event",
		"event", event,
		"session_id", sessionID,
		"active_sessions", active,
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	level := slog.LevelError
	if statusCode < 500 {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

var startTime = time.Now()
