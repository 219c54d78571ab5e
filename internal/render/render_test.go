package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf/v2"

	"handout/internal/deps"
	"handout/internal/fileutil"
	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/stage"
	"handout/internal/storage"
)

type stubTitler struct {
	title string
	err   error
}

func (s stubTitler) Title(context.Context, string, runspec.Params) (string, error) {
	return s.title, s.err
}

func writeSlideImage(t *testing.T, dir string, i int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 180))
	for y := 0; y < 180; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x + i*40) % 256), G: uint8(y), B: 120, A: 255})
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("slide-%d.jpg", i))
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer file.Close()
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func slideRun(t *testing.T, count int) runspec.Run {
	t.Helper()
	dir := t.TempDir()
	run := runspec.Run{JobID: "job-7"}
	for i := 0; i < count; i++ {
		run.Slides = append(run.Slides, runspec.Slide{
			ImagePath:   writeSlideImage(t, dir, i),
			CaptionText: strings.Repeat(fmt.Sprintf("Slide %d covers the café and résumé. ", i+1), 8),
		})
	}
	return run
}

func TestRendererWritesAndStoresHandout(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	r := NewRenderer(stubTitler{title: "cardiac output: basics"}, storage.NewLocal(out), work, logging.NewNop())
	patch, err := r.Execute(context.Background(), slideRun(t, 6), stage.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if patch.Title != "Cardiac Output: Basics" {
		t.Fatalf("unexpected title %q", patch.Title)
	}
	if want := filepath.Join(work, "job-7", "Cardiac Output- Basics.pdf"); patch.DocumentPath != want {
		t.Fatalf("document path %q, want %q", patch.DocumentPath, want)
	}
	if patch.PageCount < 2 {
		t.Fatalf("expected several pages for six slides, got %d", patch.PageCount)
	}
	stored := patch.Outputs[OutputDocument]
	if stored != filepath.Join(out, "job-7", "Cardiac Output- Basics.pdf") {
		t.Fatalf("unexpected stored location %q", stored)
	}
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("stored handout missing: %v", err)
	}
}

func TestRendererFallsBackOnTitleFailure(t *testing.T) {
	for name, titler := range map[string]Titler{
		"error": stubTitler{err: errors.New("llm down")},
		"blank": stubTitler{title: "   "},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			r := NewRenderer(titler, storage.NewLocal(t.TempDir()), t.TempDir(), nil)
			patch, err := r.Execute(context.Background(), slideRun(t, 1), stage.Discard)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if patch.Title != FallbackTitle || filepath.Base(patch.DocumentPath) != "Lecture Handout.pdf" {
				t.Fatalf("expected fallback title, got %q at %q", patch.Title, patch.DocumentPath)
			}
		})
	}
}

func TestRendererRequiresSlides(t *testing.T) {
	r := NewRenderer(nil, storage.NewLocal(t.TempDir()), t.TempDir(), nil)
	if _, err := r.Execute(context.Background(), runspec.Run{JobID: "x"}, stage.Discard); err == nil {
		t.Fatal("expected error without slides")
	}
}

// blankGhostscript writes a one page PDF to the requested output path.
func blankGhostscript(t *testing.T) deps.Runner {
	return deps.RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "gs" {
			return nil, exec.ErrNotFound
		}
		for _, arg := range args {
			if out, ok := strings.CutPrefix(arg, "-sOutputFile="); ok {
				pdf := gofpdf.New("P", "mm", "A4", "")
				pdf.AddPage()
				return nil, pdf.OutputFileAndClose(out)
			}
		}
		t.Errorf("gs called without output file: %v", args)
		return nil, errors.New("bad args")
	})
}

func renderForCompression(t *testing.T) (runspec.Run, string) {
	t.Helper()
	work, out := t.TempDir(), t.TempDir()
	run := slideRun(t, 3)
	patch, err := NewRenderer(nil, storage.NewLocal(out), work, nil).Execute(context.Background(), run, stage.Discard)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := run.Apply(patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return run, out
}

func TestCompressorKeepsSmallerGhostscriptOutput(t *testing.T) {
	run, out := renderForCompression(t)
	before, _ := fileSize(run.DocumentPath)

	c := NewCompressor("gs", blankGhostscript(t), storage.NewLocal(out), logging.NewNop())
	patch, err := c.Execute(context.Background(), run, stage.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	after, _ := fileSize(run.DocumentPath)
	if after >= before {
		t.Fatalf("expected smaller file, before=%d after=%d", before, after)
	}
	if patch.PageCount != 1 {
		t.Fatalf("expected page count of compressed file, got %d", patch.PageCount)
	}
	if patch.Outputs[OutputDocument] == "" {
		t.Fatal("compressed handout should be stored again")
	}
	if _, err := os.Stat(run.DocumentPath + ".compressed.pdf"); !os.IsNotExist(err) {
		t.Fatal("temporary output should be removed")
	}
}

func TestCompressorFallsBackToPdfcpu(t *testing.T) {
	run, out := renderForCompression(t)
	missing := deps.RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return nil, exec.ErrNotFound
	})
	c := NewCompressor("gs", missing, storage.NewLocal(out), nil)
	if _, err := c.Execute(context.Background(), run, stage.Discard); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pages, err := PageCount(run.DocumentPath); err != nil || pages == 0 {
		t.Fatalf("document should stay readable, pages=%d err=%v", pages, err)
	}
}

func TestCompressorReportsStoredLocationWhenNotSmaller(t *testing.T) {
	run, out := renderForCompression(t)
	var calls int
	copying := deps.RunnerFunc(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		calls++
		output, _ := strings.CutPrefix(args[len(args)-2], "-sOutputFile=")
		return nil, fileutil.CopyFile(args[len(args)-1], output)
	})
	c := NewCompressor("gs", copying, storage.NewLocal(out), logging.NewNop())
	patch, err := c.Execute(context.Background(), run, stage.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one ghostscript call, got %d", calls)
	}
	if patch.Empty() || patch.Outputs[OutputDocument] != run.Outputs[OutputDocument] {
		t.Fatalf("expected the stored location to be kept, got %+v", patch)
	}
	if patch.PageCount != run.PageCount {
		t.Fatalf("expected page count %d, got %d", run.PageCount, patch.PageCount)
	}
}

func TestCompressorKeepsOriginalWhenBothToolsFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	failing := deps.RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("gs: exit status 1")
	})
	c := NewCompressor("gs", failing, storage.NewLocal(t.TempDir()), nil)
	patch, err := c.Execute(context.Background(), runspec.Run{JobID: "j", DocumentPath: path}, stage.Discard)
	if err != nil {
		t.Fatalf("compression failures must not fail the stage: %v", err)
	}
	if !patch.Empty() {
		t.Fatalf("expected empty patch, got %+v", patch)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "not a pdf" {
		t.Fatal("original must be untouched")
	}
}

func TestStorageNameGroupsBySource(t *testing.T) {
	tests := []struct {
		name string
		run  runspec.Run
		want string
	}{
		{"job only", runspec.Run{JobID: "job-1"}, "job-1/a.pdf"},
		{"source wins", runspec.Run{JobID: "job-1", SourceID: "Delivery-42"}, "delivery-42/a.pdf"},
		{"hash truncated", runspec.Run{JobID: "job-1", SourceID: strings.Repeat("ab", 32)}, "abababababababab/a.pdf"},
		{"neither", runspec.Run{}, "a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StorageName(tt.run, "a.pdf"); got != tt.want {
				t.Fatalf("StorageName = %q, want %q", got, tt.want)
			}
		})
	}
}
