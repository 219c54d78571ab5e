package logging

import (
	"context"
	"log/slog"

	"handout/internal/services"
)

// Attribute keys shared by every package. The console handler lifts
// component, job and stage into the line prefix.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldStage         = "stage"
	FieldSourceID      = "source_id"
	FieldCorrelationID = "correlation_id"

	// FieldEventType classifies a log line for filtering (stage_start, cache_hit, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

var contextFields = []struct {
	key    string
	lookup func(context.Context) (string, bool)
}{
	{FieldJobID, services.JobIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldSourceID, services.SourceIDFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the correlation attributes present on ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, field := range contextFields {
		if v, ok := field.lookup(ctx); ok {
			fields = append(fields, slog.String(field.key, v))
		}
	}
	return fields
}

// WithContext adds ctx's correlation attributes to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
