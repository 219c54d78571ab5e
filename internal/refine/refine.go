// Package refine rewrites slide captions into readable prose.
package refine

import (
	"context"
	"fmt"
	"log/slog"

	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

// Cleaner rewrites a raw transcript block.
type Cleaner interface {
	CleanText(ctx context.Context, text string, params runspec.Params) (string, error)
}

// Refiner is the refine-content stage.
type Refiner struct {
	cleaner Cleaner
	logger  *slog.Logger
}

// NewRefiner builds the stage.
func NewRefiner(cleaner Cleaner, logger *slog.Logger) *Refiner {
	return &Refiner{cleaner: cleaner, logger: logging.NewComponentLogger(logger, "refine")}
}

// Execute implements stage.Handler. With refinement disabled the slides pass
// through untouched and the patch is empty.
func (r *Refiner) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	if !run.Features.Refine || len(run.Slides) == 0 {
		report(ctx, 1, "Refinement skipped")
		return runspec.Patch{}, nil
	}
	if r.cleaner == nil {
		return runspec.Patch{}, services.Wrap(services.ErrConfiguration, stage.RefineContent, "clean text", "no AI client configured", nil)
	}
	logger := logging.WithContext(ctx, r.logger)
	slides := make([]runspec.Slide, len(run.Slides))
	copy(slides, run.Slides)
	total := len(slides)
	for i := range slides {
		if err := ctx.Err(); err != nil {
			return runspec.Patch{}, err
		}
		cleaned, err := r.cleaner.CleanText(ctx, slides[i].CaptionText, run.Params)
		if err != nil {
			return runspec.Patch{}, fmt.Errorf("clean slide %d: %w", i+1, err)
		}
		if cleaned != "" {
			slides[i].CaptionText = cleaned
		}
		report(ctx, float64(i+1)/float64(total), fmt.Sprintf("Cleaning transcript (%d/%d)", i+1, total))
	}
	logger.Info("slides refined", logging.Int("slides", total))
	return runspec.Patch{Slides: slides}, nil
}
