package testsupport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"strconv"
	"sync"

	"handout/internal/deps"
)

// SlidePNG renders a white frame with a single dark box. Frames that share a
// box compare as the same slide.
func SlidePNG(width, height int, box image.Rectangle) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: 250, G: 250, B: 250, A: 255}
			if image.Pt(x, y).In(box) {
				c = color.RGBA{R: 20, G: 30, B: 40, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// FrameSource answers ffmpeg frame grabs with synthetic PNGs. Frame maps a
// seek time in seconds to the image served for it. ffprobe is answered with
// Probe when it is set; any other binary is reported missing. Every
// invocation is recorded by binary name.
type FrameSource struct {
	Frame func(seconds float64) []byte
	Probe []byte

	mu    sync.Mutex
	seeks []float64
	calls []string
}

var _ deps.Runner = (*FrameSource)(nil)

// Run implements deps.Runner.
func (f *FrameSource) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	switch {
	case name == "ffprobe" && f.Probe != nil:
		return f.Probe, nil
	case name != "ffmpeg":
		return nil, fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}
	for i := 0; i+1 < len(args); i++ {
		if args[i] != "-ss" {
			continue
		}
		seconds, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.seeks = append(f.seeks, seconds)
		f.mu.Unlock()
		return f.Frame(seconds), nil
	}
	return nil, errors.New("ffmpeg: no seek position")
}

// Calls returns the binaries invoked so far, in order.
func (f *FrameSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Seeks returns the positions requested so far.
func (f *FrameSource) Seeks() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.seeks...)
}

// LectureProbe is ffprobe output for a 30 second 720p recording with sound.
var LectureProbe = []byte(`{"streams":[
	{"index":0,"codec_type":"video","codec_name":"h264","width":1280,"height":720},
	{"index":1,"codec_type":"audio","codec_name":"aac"}],
	"format":{"duration":"30.0","size":"65536","format_name":"mov,mp4"}}`)

// TwoSlideFrames serves slide A before split seconds and slide B after.
func TwoSlideFrames(split float64) *FrameSource {
	a := SlidePNG(160, 120, image.Rect(10, 20, 60, 90))
	b := SlidePNG(160, 120, image.Rect(90, 30, 150, 100))
	return &FrameSource{Frame: func(seconds float64) []byte {
		if seconds < split {
			return a
		}
		return b
	}}
}
