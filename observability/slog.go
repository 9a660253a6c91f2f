package observability

import (
	"context"
	"log/slog"
)

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s slogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s slogLogger) With(fields ...Field) Logger {
	return slogLogger{l: s.l.With(attrs(fields)...)}
}

func (s slogLogger) log(level slog.Level, msg string, fields []Field) {
	s.l.Log(context.Background(), level, msg, attrs(fields)...)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		v := f.Value()
		// errors render through their message
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out = append(out, slog.Any(f.Key(), v))
	}
	return out
}
