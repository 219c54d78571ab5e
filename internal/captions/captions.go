// Package captions produces the timestamped transcript of a job's video.
package captions

import (
	"context"
	"errors"
	"sort"
	"strings"

	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

// ErrNoCaptions is returned when the transcript has no usable segments.
var ErrNoCaptions = errors.New("no intelligible audio")

// Transcriber converts a video into captions.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) ([]runspec.Caption, error)
}

// Extractor is the extract-captions stage.
type Extractor struct {
	transcriber Transcriber
}

// NewExtractor builds the stage around a transcriber.
func NewExtractor(transcriber Transcriber) *Extractor {
	return &Extractor{transcriber: transcriber}
}

// Execute implements stage.Handler.
func (e *Extractor) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	if strings.TrimSpace(run.VideoPath) == "" {
		return runspec.Patch{}, services.Wrap(services.ErrValidation, stage.ExtractCaptions, "read run", "video path missing; acquire did not complete", nil)
	}
	if e.transcriber == nil {
		return runspec.Patch{}, services.Wrap(services.ErrConfiguration, stage.ExtractCaptions, "transcribe", "no transcriber configured", nil)
	}
	report(ctx, 0.05, "Extracting captions")
	captions, err := e.transcriber.Transcribe(ctx, run.VideoPath)
	if err != nil {
		return runspec.Patch{}, err
	}
	captions = normalize(captions)
	if len(captions) == 0 {
		return runspec.Patch{}, ErrNoCaptions
	}
	report(ctx, 1, "Captions extracted")
	return runspec.Patch{Captions: captions}, nil
}

// normalize drops blank captions and orders the rest by timestamp, keeping
// the transcriber's order for equal timestamps.
func normalize(captions []runspec.Caption) []runspec.Caption {
	out := make([]runspec.Caption, 0, len(captions))
	for _, c := range captions {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		if c.TimestampSeconds < 0 {
			c.TimestampSeconds = 0
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampSeconds < out[j].TimestampSeconds })
	return out
}
