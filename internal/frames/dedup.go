package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"handout/internal/config"
	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

// SampleOffset is added to each caption timestamp before grabbing its frame,
// so the slide shown when the sentence starts has finished transitioning.
const SampleOffset = 500 * time.Millisecond

// Defaults for Options.
const (
	DefaultThreshold   = 0.85
	DefaultScaleFactor = 0.5
	DefaultJPEGQuality = 85
)

// FramesDir is the job work dir subdirectory holding slide images.
const FramesDir = "frames"

// Options tunes slide detection.
type Options struct {
	Threshold   float64
	Offset      time.Duration
	ScaleFactor float64
	JPEGQuality int
}

// OptionsFromConfig maps the pipeline config section.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Threshold:   cfg.Pipeline.SimilarityThreshold,
		Offset:      time.Duration(cfg.Pipeline.SampleOffsetSeconds * float64(time.Second)),
		ScaleFactor: cfg.Pipeline.ScaleFactor,
		JPEGQuality: cfg.Pipeline.JPEGQuality,
	}
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Offset <= 0 {
		o.Offset = SampleOffset
	}
	if o.ScaleFactor <= 0 || o.ScaleFactor > 1 {
		o.ScaleFactor = DefaultScaleFactor
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	return o
}

// Deduplicator collapses captions onto slides.
type Deduplicator struct {
	opts     Options
	grabber  Grabber
	workRoot string
	logger   *slog.Logger
}

// NewDeduplicator builds the deduplicate-frames stage. Slide images are
// written to workRoot/<job id>/frames.
func NewDeduplicator(grabber Grabber, workRoot string, opts Options, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		opts:     opts.withDefaults(),
		grabber:  grabber,
		workRoot: workRoot,
		logger:   logging.NewComponentLogger(logger, "frames"),
	}
}

// Execute implements stage.Handler.
func (d *Deduplicator) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	if len(run.Captions) == 0 {
		return runspec.Patch{}, nil
	}
	if strings.TrimSpace(run.VideoPath) == "" {
		return runspec.Patch{}, services.Wrap(services.ErrValidation, stage.DeduplicateFrames, "read run", "video path missing", nil)
	}
	slides, err := d.Deduplicate(ctx, run.VideoPath, run.Captions, filepath.Join(d.workRoot, run.JobID, FramesDir), report)
	if err != nil {
		return runspec.Patch{}, err
	}
	return runspec.Patch{Slides: slides}, nil
}

type candidate struct {
	frame image.Image
	gray  *image.Gray
	texts []string
}

// Deduplicate grabs one frame per caption and emits a slide whenever the
// picture changes and at the last caption. Every caption's text ends up on
// exactly one slide.
func (d *Deduplicator) Deduplicate(ctx context.Context, videoPath string, captions []runspec.Caption, outDir string, report stage.Reporter) ([]runspec.Slide, error) {
	if report == nil {
		report = stage.Discard
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stage.DeduplicateFrames, "create frames dir", outDir, err)
	}
	logger := logging.WithContext(ctx, d.logger)
	sampler := logging.NewProgressSampler(logging.DefaultProgressStep)

	var (
		slides  []runspec.Slide
		current *candidate
		pending []string
		grabbed int
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		path, err := d.writeFrame(outDir, current.frame)
		if err != nil {
			return err
		}
		slides = append(slides, runspec.Slide{ImagePath: path, CaptionText: strings.Join(current.texts, " ")})
		current = nil
		return nil
	}

	total := len(captions)
	for i, caption := range captions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(caption.Text)
		at := caption.TimestampSeconds + d.opts.Offset.Seconds()
		frame, err := d.grabber.Grab(ctx, videoPath, at)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logging.WarnWithContext(logger, "frame grab failed; caption kept with neighbouring slide", "frame_grab_failed",
				logging.Float64("seconds", at),
				logging.String(logging.FieldErrorHint, "check the video is readable by ffmpeg"),
				logging.String(logging.FieldImpact, "caption text attached to the previous slide"),
				logging.Error(err),
			)
			if current != nil {
				current.texts = appendText(current.texts, text)
			} else {
				pending = appendText(pending, text)
			}
		default:
			grabbed++
			gray := luminance(frame, d.opts.ScaleFactor)
			if current != nil {
				score := Similarity(current.gray, gray)
				logger.Debug("frame compared",
					logging.Int("caption", i),
					logging.Float64("score", score),
				)
				// The final caption always closes the running slide and
				// starts its own, which the trailing flush emits.
				if score < d.opts.Threshold || i == total-1 {
					if err := flush(); err != nil {
						return nil, err
					}
				}
			}
			if current == nil {
				current = &candidate{frame: frame, gray: gray, texts: pending}
				pending = nil
			}
			current.texts = appendText(current.texts, text)
		}

		fraction := float64(i+1) / float64(total)
		report(ctx, fraction, fmt.Sprintf("Matched %d/%d captions", i+1, total))
		if sampler.ShouldLog(stage.DeduplicateFrames, fraction) {
			logger.Info("frame matching progress",
				logging.Int("captions_done", i+1),
				logging.Int("captions_total", total),
				logging.Int("slides", len(slides)),
			)
		}
	}
	if grabbed == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stage.DeduplicateFrames, "grab frames", "no frame could be extracted from the video", nil)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	logger.Info("slides detected",
		logging.Int("captions", total),
		logging.Int("slides", len(slides)),
		logging.Float64("threshold", d.opts.Threshold),
	)
	return slides, nil
}

func (d *Deduplicator) writeFrame(dir string, frame image.Image) (string, error) {
	path := filepath.Join(dir, uuid.NewString()+".jpg")
	file, err := os.Create(path)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stage.DeduplicateFrames, "write frame", path, err)
	}
	encodeErr := jpeg.Encode(file, frame, &jpeg.Options{Quality: d.opts.JPEGQuality})
	closeErr := file.Close()
	if err := errors.Join(encodeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", services.Wrap(services.ErrConfiguration, stage.DeduplicateFrames, "write frame", path, err)
	}
	return path, nil
}

func appendText(texts []string, text string) []string {
	if text == "" {
		return texts
	}
	return append(texts, text)
}
