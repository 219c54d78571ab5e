package stage

import (
	"context"

	"handout/internal/runspec"
)

// Pipeline stage names in execution order.
const (
	Acquire           = "acquire"
	ExtractCaptions   = "extract-captions"
	DeduplicateFrames = "deduplicate-frames"
	RefineContent     = "refine-content"
	RenderDocument    = "render-document"
	CompressDocument  = "compress-document"
	FanOutArtifacts   = "fan-out-artifacts"
	Finalize          = "finalize"
)

// Ordered returns the fixed stage list.
func Ordered() []string {
	return []string{
		Acquire,
		ExtractCaptions,
		DeduplicateFrames,
		RefineContent,
		RenderDocument,
		CompressDocument,
		FanOutArtifacts,
		Finalize,
	}
}

// Cacheable reports whether a stage's output is stored in the stage cache.
func Cacheable(name string) bool {
	switch name {
	case ExtractCaptions, DeduplicateFrames, RefineContent, RenderDocument, CompressDocument:
		return true
	default:
		return false
	}
}

// Reporter receives stage-local progress in [0,1].
type Reporter func(ctx context.Context, fraction float64, message string)

// Discard is a Reporter that drops every update.
func Discard(context.Context, float64, string) {}

// Handler describes the contract the orchestrator needs from each stage.
// Execute reads the run and returns the fields it produced.
type Handler interface {
	Execute(ctx context.Context, run runspec.Run, report Reporter) (runspec.Patch, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, run runspec.Run, report Reporter) (runspec.Patch, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, run runspec.Run, report Reporter) (runspec.Patch, error) {
	return f(ctx, run, report)
}

// HealthReporter handlers can report readiness for status output.
type HealthReporter interface {
	HealthCheck(context.Context) Health
}
