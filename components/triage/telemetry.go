package triage

import (
	"context"
	"log/slog"
	"sort"
)

// Telemetry records triage events for observability.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

func normalizeLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// LogTelemetry writes telemetry events as structured log records.
type LogTelemetry struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogTelemetry bridges Telemetry onto slog at debug level.
func NewLogTelemetry(logger *slog.Logger) *LogTelemetry {
	return &LogTelemetry{logger: normalizeLogger(logger), level: slog.LevelDebug}
}

// WithLevel returns a copy that logs at level.
func (t *LogTelemetry) WithLevel(level slog.Level) *LogTelemetry {
	return &LogTelemetry{logger: t.logger, level: level}
}

// Record logs the event with its payload keys in sorted order.
func (t *LogTelemetry) Record(ctx context.Context, event string, payload map[string]any) {
	if t == nil {
		return
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, payload[k]))
	}
	t.logger.LogAttrs(ctx, t.level, event, attrs...)
}
