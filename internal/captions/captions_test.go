package captions

import (
	"context"
	"errors"
	"testing"

	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

type stubTranscriber struct {
	captions []runspec.Caption
	err      error
	calls    int
}

func (s *stubTranscriber) Transcribe(context.Context, string) ([]runspec.Caption, error) {
	s.calls++
	return s.captions, s.err
}

func TestExecuteOrdersAndTrims(t *testing.T) {
	tr := &stubTranscriber{captions: []runspec.Caption{
		{Text: " second ", TimestampSeconds: 5},
		{Text: "first", TimestampSeconds: 1},
		{Text: "  ", TimestampSeconds: 3},
		{Text: "also second", TimestampSeconds: 5},
	}}
	patch, err := NewExtractor(tr).Execute(context.Background(), runspec.Run{VideoPath: "/w/video.mp4"}, stage.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(patch.Captions) != 3 {
		t.Fatalf("expected 3 captions, got %+v", patch.Captions)
	}
	if patch.Captions[0].Text != "first" || patch.Captions[1].Text != "second" || patch.Captions[2].Text != "also second" {
		t.Fatalf("unexpected order %+v", patch.Captions)
	}
}

func TestExecuteFailures(t *testing.T) {
	ctx := context.Background()
	if _, err := NewExtractor(&stubTranscriber{}).Execute(ctx, runspec.Run{}, stage.Discard); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without video, got %v", err)
	}
	empty := &stubTranscriber{captions: []runspec.Caption{{Text: " "}}}
	if _, err := NewExtractor(empty).Execute(ctx, runspec.Run{VideoPath: "v"}, stage.Discard); !errors.Is(err, ErrNoCaptions) {
		t.Fatalf("expected no intelligible audio, got %v", err)
	}
	boom := errors.New("boom")
	if _, err := NewExtractor(&stubTranscriber{err: boom}).Execute(ctx, runspec.Run{VideoPath: "v"}, stage.Discard); !errors.Is(err, boom) {
		t.Fatalf("expected transcriber error, got %v", err)
	}
}
