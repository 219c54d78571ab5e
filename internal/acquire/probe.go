package acquire

import (
	"context"
	"errors"

	"handout/internal/deps"
	"handout/internal/logging"
	"handout/internal/media/ffprobe"
	"handout/internal/services"
	"handout/internal/stage"
)

// ProbeCacheKey is the stage cache entry holding a source's probe result.
const ProbeCacheKey = "acquire:probe"

// ProbeCache remembers validated probe results per source id.
// *stagecache.Cache implements it.
type ProbeCache interface {
	GetInto(ctx context.Context, sourceID, stage string, target any) bool
	Set(ctx context.Context, sourceID, stage string, payload any)
}

type probeRecord struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

// validate returns the video duration, probing only sources that have not
// been validated before.
func (a *Acquirer) validate(ctx context.Context, result Result) (float64, error) {
	var known probeRecord
	if a.probes != nil && a.probes.GetInto(ctx, result.SourceID, ProbeCacheKey, &known) {
		a.log(ctx).Debug("video validated earlier; probe skipped",
			logging.String(logging.FieldEventType, "probe_cache_hit"),
		)
		return known.DurationSeconds, nil
	}
	duration, validated, err := a.probe(ctx, result.VideoPath)
	if err != nil {
		return 0, err
	}
	if validated && a.probes != nil {
		a.probes.Set(ctx, result.SourceID, ProbeCacheKey, probeRecord{DurationSeconds: duration})
	}
	return duration, nil
}

// probe validates the acquired file. A missing ffprobe is tolerated and
// reported as not validated; a file without a video stream is an error.
func (a *Acquirer) probe(ctx context.Context, path string) (float64, bool, error) {
	result, err := ffprobe.Inspect(ctx, a.runner, a.opts.FFprobeBinary, path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		if deps.IsMissing(err) {
			logging.WarnWithContext(a.log(ctx), "ffprobe unavailable; skipping video validation", "probe_skipped",
				logging.String("video_path", path),
				logging.String(logging.FieldImpact, "a corrupt download is detected later"),
				logging.String(logging.FieldErrorHint, "install ffprobe"),
			)
			return 0, false, nil
		}
		return 0, false, services.Wrap(services.ErrValidation, stage.Acquire, "probe video", "file is not a readable video", err)
	}
	summary, err := result.Summary()
	if errors.Is(err, ffprobe.ErrNoVideo) {
		return 0, false, services.Wrap(services.ErrValidation, stage.Acquire, "probe video", "file has no video stream", err)
	}
	log := a.log(ctx)
	if !summary.HasAudio() {
		logging.WarnWithContext(log, "video has no audio stream", "probe_no_audio",
			logging.String("video_path", path),
			logging.String(logging.FieldImpact, "captions will be empty"),
		)
	}
	log.Info("video validated",
		logging.String(logging.FieldEventType, "video_validated"),
		logging.Float64("duration_seconds", summary.DurationSeconds),
		logging.String("resolution", summary.Resolution()),
		logging.String("codec", summary.VideoCodec),
		logging.Int("audio_streams", summary.AudioStreams),
		logging.Int64("size_bytes", summary.SizeBytes),
	)
	return summary.DurationSeconds, true, nil
}
