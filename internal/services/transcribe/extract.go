package transcribe

import (
	"context"
	"fmt"
	"strings"

	"handout/internal/deps"
)

// ExtractAudio writes the first audio stream of source as a mono 16 kHz mp3.
func ExtractAudio(ctx context.Context, runner deps.Runner, ffmpegBinary, source, dest string) error {
	if runner == nil {
		runner = deps.ExecRunner{}
	}
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = FFmpegCommand
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", AudioSampleRate,
		"-b:a", AudioBitrate,
		dest,
	}
	if _, err := runner.Run(ctx, ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	return nil
}
