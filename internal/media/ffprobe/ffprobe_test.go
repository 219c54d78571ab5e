package ffprobe

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"handout/internal/deps"
)

func TestSummaryOfLectureRecording(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
			{CodecType: "audio", CodecName: "aac"},
			{CodecType: "video", CodecName: "mjpeg", Width: 300, Height: 300},
		},
		Format: Format{Duration: "3600.5", Size: "1048576", FormatName: "mov,mp4,m4a"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("cover art should not count as video, got %d", result.VideoStreamCount())
	}
	summary, err := result.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.DurationSeconds != 3600.5 || summary.SizeBytes != 1048576 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Resolution() != "1920x1080" || summary.VideoCodec != "h264" || !summary.HasAudio() {
		t.Fatalf("unexpected stream facts %+v", summary)
	}
}

func TestDurationFallsBackToLongestStream(t *testing.T) {
	result := Result{Streams: []Stream{
		{CodecType: "video", CodecName: "h264", Duration: "61.2"},
		{CodecType: "audio", CodecName: "aac", Duration: "61.9"},
	}}
	if result.DurationSeconds() != 61.9 {
		t.Fatalf("expected stream fallback, got %v", result.DurationSeconds())
	}
}

func TestSummaryWithoutVideo(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", CodecName: "mp3"}},
		Format:  Format{Duration: "bad", Size: "-1"},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected NaN for unparseable duration, got %v", result.DurationSeconds())
	}
	summary, err := result.Summary()
	if !errors.Is(err, ErrNoVideo) {
		t.Fatalf("expected ErrNoVideo, got %v", err)
	}
	if summary.DurationSeconds != 0 || summary.SizeBytes != 0 || summary.Resolution() != "" {
		t.Fatalf("invalid numbers should zero out: %+v", summary)
	}
}

func TestInspectDecodesRunnerOutput(t *testing.T) {
	var gotArgs []string
	runner := deps.RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(`{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":1280,"height":720}],"format":{"duration":"61.5"}}`), nil
	})
	result, err := Inspect(context.Background(), runner, "", "/tmp/video.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if gotArgs[0] != "ffprobe" || gotArgs[len(gotArgs)-1] != "/tmp/video.mp4" {
		t.Fatalf("unexpected invocation: %v", gotArgs)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "-show_entries") {
		t.Fatalf("expected a narrowed probe, got %v", gotArgs)
	}
	if result.VideoStreamCount() != 1 || result.DurationSeconds() != 61.5 {
		t.Fatalf("unexpected result: %+v", result)
	}

	failing := deps.RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	if _, err := Inspect(context.Background(), failing, "ffprobe", "/tmp/x"); err == nil {
		t.Fatal("expected runner error to propagate")
	}
	if _, err := Inspect(context.Background(), runner, "ffprobe", " "); err == nil {
		t.Fatal("expected empty path error")
	}
}
