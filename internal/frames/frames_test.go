package frames

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"

	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/stage"
	"handout/internal/testsupport"
)

func grayFrame(t *testing.T, box image.Rectangle) *image.Gray {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(testsupport.SlidePNG(160, 120, box)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return luminance(img, 0.5)
}

func TestSimilarityProperties(t *testing.T) {
	a := grayFrame(t, image.Rect(10, 20, 60, 90))
	b := grayFrame(t, image.Rect(90, 30, 150, 100))
	shifted := grayFrame(t, image.Rect(14, 20, 64, 90))
	blank := grayFrame(t, image.Rectangle{})

	if got := Similarity(a, a); got != 1 {
		t.Fatalf("Similarity(a,a) = %v, want 1", got)
	}
	if got := Similarity(blank, blank); got != 1 {
		t.Fatalf("blank frames should be identical, got %v", got)
	}
	if got := Similarity(a, blank); got != 0 {
		t.Fatalf("edges vs no edges should score 0, got %v", got)
	}
	pairs := [][2]*image.Gray{{a, b}, {a, shifted}, {b, shifted}, {a, blank}}
	for i, p := range pairs {
		ab, ba := Similarity(p[0], p[1]), Similarity(p[1], p[0])
		if ab != ba {
			t.Fatalf("pair %d not symmetric: %v vs %v", i, ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("pair %d out of range: %v", i, ab)
		}
	}
	if got := Similarity(a, b); got >= 0.5 {
		t.Fatalf("different slides should score low, got %v", got)
	}
}

func TestSimilarityResizesMismatchedFrames(t *testing.T) {
	a := grayFrame(t, image.Rect(10, 20, 60, 90))
	img, _ := png.Decode(bytes.NewReader(testsupport.SlidePNG(160, 120, image.Rect(10, 20, 60, 90))))
	full := luminance(img, 1)
	got := Similarity(a, full)
	if got < 0 || got > 1 {
		t.Fatalf("out of range: %v", got)
	}
}

func TestEdgeCorrelationZeroDenominator(t *testing.T) {
	flat := make([]uint8, 16)
	full := bytes.Repeat([]uint8{255}, 16)
	if got := edgeCorrelation(flat, flat); got != 1 {
		t.Fatalf("equal flat maps: %v", got)
	}
	if got := edgeCorrelation(flat, full); got != 0 {
		t.Fatalf("unequal flat maps: %v", got)
	}
}

func captionsAt(texts ...string) []runspec.Caption {
	out := make([]runspec.Caption, len(texts))
	for i, text := range texts {
		out[i] = runspec.Caption{Text: text, TimestampSeconds: float64(i * 2)}
	}
	return out
}

func newTestDeduplicator(t *testing.T, source *testsupport.FrameSource, threshold float64) *Deduplicator {
	t.Helper()
	return NewDeduplicator(FFmpegGrabber{Runner: source}, t.TempDir(), Options{Threshold: threshold}, logging.NewNop())
}

func TestDeduplicateCollapsesRepeatedFrames(t *testing.T) {
	source := testsupport.TwoSlideFrames(5)
	d := newTestDeduplicator(t, source, 0.85)
	var fractions []float64
	report := func(_ context.Context, fraction float64, _ string) { fractions = append(fractions, fraction) }

	slides, err := d.Deduplicate(context.Background(), "video.mp4", captionsAt("one", "two", "three", "four"), t.TempDir(), report)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d: %+v", len(slides), slides)
	}
	if slides[0].CaptionText != "one two three" || slides[1].CaptionText != "four" {
		t.Fatalf("unexpected captions %q / %q", slides[0].CaptionText, slides[1].CaptionText)
	}
	for _, slide := range slides {
		if !strings.HasSuffix(slide.ImagePath, ".jpg") {
			t.Fatalf("expected jpeg path, got %q", slide.ImagePath)
		}
		if _, err := os.Stat(slide.ImagePath); err != nil {
			t.Fatalf("slide image missing: %v", err)
		}
	}
	seeks := source.Seeks()
	if len(seeks) != 4 || seeks[0] != 0.5 || seeks[3] != 6.5 {
		t.Fatalf("expected offset seeks, got %v", seeks)
	}
	if len(fractions) != 4 || fractions[3] != 1 {
		t.Fatalf("expected per-caption progress ending at 1, got %v", fractions)
	}
}

func TestDeduplicateAnatomyIntro(t *testing.T) {
	source := testsupport.TwoSlideFrames(testsupport.LectureSplit)
	d := newTestDeduplicator(t, source, 0.90)
	captions := []runspec.Caption{
		{Text: "Welcome", TimestampSeconds: 0},
		{Text: "Intro to anatomy", TimestampSeconds: 12.5},
		{Text: "Anatomy slide 2", TimestampSeconds: 25},
	}

	slides, err := d.Deduplicate(context.Background(), "lecture.mp4", captions, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d: %+v", len(slides), slides)
	}
	if slides[0].CaptionText != "Welcome Intro to anatomy" || slides[1].CaptionText != "Anatomy slide 2" {
		t.Fatalf("unexpected captions %q / %q", slides[0].CaptionText, slides[1].CaptionText)
	}
	if slides[0].Extra != nil || slides[1].Extra != nil {
		t.Fatalf("slides should carry no extra fields: %+v", slides)
	}
	if seeks := source.Seeks(); len(seeks) != 3 || seeks[1] != 13 || seeks[2] != 25.5 {
		t.Fatalf("unexpected seeks %v", seeks)
	}
}

func TestDeduplicateLastCaptionStartsItsOwnSlide(t *testing.T) {
	d := newTestDeduplicator(t, testsupport.TwoSlideFrames(100), 0.85)
	slides, err := d.Deduplicate(context.Background(), "v.mp4", captionsAt("a", "b", "c"), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(slides) != 2 || slides[0].CaptionText != "a b" || slides[1].CaptionText != "c" {
		t.Fatalf("unexpected slides %+v", slides)
	}
}

func TestDeduplicateKeepsEveryCaption(t *testing.T) {
	a := testsupport.SlidePNG(160, 120, image.Rect(10, 20, 60, 90))
	b := testsupport.SlidePNG(160, 120, image.Rect(90, 30, 150, 100))
	schedules := map[string]func(float64) []byte{
		"constant":    func(float64) []byte { return a },
		"alternating": func(s float64) []byte { return [][]byte{a, b}[int(s/2)%2] },
		"late switch": func(s float64) []byte {
			if s > 8 {
				return b
			}
			return a
		},
	}
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for name, frame := range schedules {
		t.Run(name, func(t *testing.T) {
			d := newTestDeduplicator(t, &testsupport.FrameSource{Frame: frame}, 0.85)
			slides, err := d.Deduplicate(context.Background(), "v.mp4", captionsAt(texts...), t.TempDir(), nil)
			if err != nil {
				t.Fatalf("Deduplicate: %v", err)
			}
			if len(slides) < 1 || len(slides) > len(texts) {
				t.Fatalf("slide count %d outside [1,%d]", len(slides), len(texts))
			}
			var joined []string
			for _, slide := range slides {
				joined = append(joined, slide.CaptionText)
			}
			if got := strings.Join(joined, " "); got != strings.Join(texts, " ") {
				t.Fatalf("caption text lost or reordered: %q", got)
			}
		})
	}
}

func TestDeduplicateSingleCaption(t *testing.T) {
	d := newTestDeduplicator(t, testsupport.TwoSlideFrames(5), 0.85)
	slides, err := d.Deduplicate(context.Background(), "v.mp4", captionsAt("only"), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(slides) != 1 || slides[0].CaptionText != "only" {
		t.Fatalf("unexpected slides %+v", slides)
	}
}

func TestDeduplicateToleratesFailedGrabs(t *testing.T) {
	good := testsupport.TwoSlideFrames(100)
	source := &testsupport.FrameSource{Frame: func(s float64) []byte {
		if s < 1 {
			return nil
		}
		return good.Frame(s)
	}}
	d := newTestDeduplicator(t, source, 0.85)
	slides, err := d.Deduplicate(context.Background(), "v.mp4", captionsAt("lost?", "kept"), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(slides) != 1 || slides[0].CaptionText != "lost? kept" {
		t.Fatalf("unexpected slides %+v", slides)
	}

	none := &testsupport.FrameSource{Frame: func(float64) []byte { return nil }}
	if _, err := newTestDeduplicator(t, none, 0.85).Deduplicate(context.Background(), "v.mp4", captionsAt("a"), t.TempDir(), nil); err == nil {
		t.Fatal("expected error when no frame can be grabbed")
	}
}

func TestDeduplicateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newTestDeduplicator(t, testsupport.TwoSlideFrames(5), 0.85)
	if _, err := d.Deduplicate(ctx, "v.mp4", captionsAt("a", "b"), t.TempDir(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteWritesIntoJobFramesDir(t *testing.T) {
	root := t.TempDir()
	d := NewDeduplicator(FFmpegGrabber{Runner: testsupport.TwoSlideFrames(3)}, root, Options{}, logging.NewNop())
	run := runspec.Run{JobID: "job-1", VideoPath: "v.mp4", Captions: captionsAt("a", "b", "c")}
	patch, err := d.Execute(context.Background(), run, stage.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(patch.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %+v", patch.Slides)
	}
	if !strings.HasPrefix(patch.Slides[0].ImagePath, root+"/job-1/frames/") {
		t.Fatalf("unexpected image path %q", patch.Slides[0].ImagePath)
	}

	empty, err := d.Execute(context.Background(), runspec.Run{JobID: "job-2"}, stage.Discard)
	if err != nil || !empty.Empty() {
		t.Fatalf("no captions should produce an empty patch, got %+v %v", empty, err)
	}
}
