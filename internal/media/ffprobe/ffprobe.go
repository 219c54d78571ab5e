package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"handout/internal/deps"
)

// ErrNoVideo marks a file that decodes but carries no picture.
var ErrNoVideo = errors.New("no video stream")

// probeEntries limits ffprobe output to what Summary reads.
const probeEntries = "format=duration,size,format_name:stream=index,codec_type,codec_name,width,height,duration"

// Result is the decoded ffprobe JSON.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one elementary stream.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Format is the container section.
type Format struct {
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Summary is what the pipeline needs to know about a lecture recording.
type Summary struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	Container       string
	AudioStreams    int
	SizeBytes       int64
}

// HasAudio reports whether transcription has anything to work with.
func (s Summary) HasAudio() bool { return s.AudioStreams > 0 }

// Resolution formats the picture size as WxH, or "" when unknown.
func (s Summary) Resolution() string {
	if s.Width <= 0 || s.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Inspect runs ffprobe on path. A nil runner uses os/exec and an empty
// binary means "ffprobe" on PATH.
func Inspect(ctx context.Context, runner deps.Runner, binary string, path string) (Result, error) {
	if runner == nil {
		runner = deps.ExecRunner{}
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe: empty path")
	}

	output, err := runner.Run(ctx, binary, "-v", "error", "-hide_banner",
		"-show_entries", probeEntries, "-of", "json", "--", path)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams. Attached cover art
// reported as mjpeg/png is not counted.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, s := range r.Streams {
		if isPicture(s) {
			count++
		}
	}
	return count
}

// AudioStreamCount returns the number of audio streams.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds prefers the container duration and falls back to the
// longest stream, which is all segment-concatenated HLS output reports.
// Unparseable values yield NaN.
func (r Result) DurationSeconds() float64 {
	if strings.TrimSpace(r.Format.Duration) != "" {
		return parseFloat(r.Format.Duration)
	}
	longest := 0.0
	for _, s := range r.Streams {
		if d := parseFloat(s.Duration); !math.IsNaN(d) && d > longest {
			longest = d
		}
	}
	return longest
}

// SizeBytes returns the container size, or 0 when unknown.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// Summary folds the result into a Summary. It returns ErrNoVideo when the
// file has no picture stream.
func (r Result) Summary() (Summary, error) {
	summary := Summary{
		Container:    r.Format.FormatName,
		AudioStreams: r.AudioStreamCount(),
		SizeBytes:    r.SizeBytes(),
	}
	if d := r.DurationSeconds(); !math.IsNaN(d) && d > 0 {
		summary.DurationSeconds = d
	}
	for _, s := range r.Streams {
		if isPicture(s) {
			summary.VideoCodec = s.CodecName
			summary.Width, summary.Height = s.Width, s.Height
			return summary, nil
		}
	}
	return summary, ErrNoVideo
}

func isPicture(s Stream) bool {
	if !strings.EqualFold(s.CodecType, "video") {
		return false
	}
	switch strings.ToLower(s.CodecName) {
	case "mjpeg", "png", "bmp":
		return false
	}
	return true
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
