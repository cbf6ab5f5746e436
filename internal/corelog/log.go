// Package corelog provides structured logging with context correlation
// and sensitive-data redaction for the orchestration core. It wraps
// log/slog the same way the wider Nexus lineage does: the core has no
// third-party logging dependency, matching that lineage's own choice
// rather than substituting a library it never reached for.
package corelog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog.Logger with context-correlated fields and redaction.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// Config configures Logger construction.
type Config struct {
	Level          string // debug|info|warn|error
	Format         string // json|text
	Output         io.Writer
	AddSource      bool
	RedactPatterns []string // additional patterns beyond DefaultRedactPatterns
}

type ctxKey string

const (
	RunIDKey   ctxKey = "run_id"
	TaskIDKey  ctxKey = "task_id"
	ActorIDKey ctxKey = "actor_id"
	CallIDKey  ctxKey = "call_id"
)

// DefaultRedactPatterns covers secrets that must never reach a log line.
// The trace plane scrubs the same key names separately (internal/tracing's
// DefaultRedactor and internal/harness's trace payload bounding).
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

var sensitiveKeys = map[string]bool{
	"api_key": true, "apikey": true, "authorization": true, "token": true,
	"secret": true, "password": true, "passwd": true, "pwd": true,
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	patterns := append([]string{}, DefaultRedactPatterns...)
	patterns = append(patterns, cfg.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// fieldsFromContext extracts correlation fields from ctx and returns args to
// prepend to any log call.
func (l *Logger) fieldsFromContext(ctx context.Context) []any {
	var fields []any
	for _, key := range []ctxKey{RunIDKey, TaskIDKey, ActorIDKey, CallIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	fields := l.fieldsFromContext(ctx)
	redacted := make([]any, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		redacted = append(redacted, args[i], l.redactValue(key, args[i+1]))
	}
	all := append(fields, redacted...)
	l.logger.Log(ctx, level, msg, all...)
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelDebug, msg, args...) }
func (l *Logger) Info(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelWarn, msg, args...) }
func (l *Logger) Error(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelError, msg, args...) }

func (l *Logger) redactValue(key string, v any) any {
	if sensitiveKeys[strings.ToLower(key)] {
		return "[REDACTED]"
	}
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case map[string]any:
		return l.redactMap(val)
	default:
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (l *Logger) redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = l.redactValue(k, v)
	}
	return out
}

// RedactJSON scrubs sensitive keys from a raw JSON payload before it is
// persisted to the trace plane or logged. Best-effort: non-object inputs
// are returned unchanged.
func (l *Logger) RedactJSON(raw []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	redacted := l.redactMap(m)
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return out
}

// WithRunID returns a context carrying the run correlation field.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithTaskID returns a context carrying the task correlation field.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// WithActorID returns a context carrying the actor correlation field.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

// WithCallID returns a context carrying the capability-call correlation field.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, CallIDKey, callID)
}
