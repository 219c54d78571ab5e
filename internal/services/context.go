package services

import "context"

// Correlation values carried on a job's context. Logging reads them back
// through logging.WithContext.
type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
	requestIDKey
	sourceIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func value(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithJobID tags ctx with the job id. Blank ids are ignored, as for the
// other With helpers.
func WithJobID(ctx context.Context, id string) context.Context {
	return withValue(ctx, jobIDKey, id)
}

func JobIDFromContext(ctx context.Context) (string, bool) { return value(ctx, jobIDKey) }

// WithStage tags ctx with the running pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return value(ctx, stageKey) }

// WithRequestID tags ctx with the API request that caused the work.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return value(ctx, requestIDKey) }

// WithSourceID tags ctx with the lecture's source identity once acquire has
// established it.
func WithSourceID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sourceIDKey, id)
}

func SourceIDFromContext(ctx context.Context) (string, bool) { return value(ctx, sourceIDKey) }
