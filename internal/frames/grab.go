package frames

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strconv"

	"handout/internal/deps"
	"handout/internal/services"
	"handout/internal/stage"
)

// Grabber returns the video frame at a position.
type Grabber interface {
	Grab(ctx context.Context, videoPath string, seconds float64) (image.Image, error)
}

// FFmpegGrabber pipes a single PNG frame out of ffmpeg.
type FFmpegGrabber struct {
	Binary string
	Runner deps.Runner
}

// Grab implements Grabber.
func (g FFmpegGrabber) Grab(ctx context.Context, videoPath string, seconds float64) (image.Image, error) {
	runner := g.Runner
	if runner == nil {
		runner = deps.ExecRunner{}
	}
	binary := g.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	out, err := runner.Run(ctx, binary,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if deps.IsMissing(err) {
			return nil, services.Wrap(services.ErrConfiguration, stage.DeduplicateFrames, "grab frame", "ffmpeg not found", err)
		}
		return nil, services.Wrap(services.ErrExternalTool, stage.DeduplicateFrames, "grab frame", "ffmpeg frame grab failed", err)
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stage.DeduplicateFrames, "grab frame", "no frame at "+strconv.FormatFloat(seconds, 'f', 3, 64)+"s", nil)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stage.DeduplicateFrames, "decode frame", "ffmpeg returned an unreadable frame", err)
	}
	return img, nil
}
