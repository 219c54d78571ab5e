package acquire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"handout/internal/deps"
	"handout/internal/logging"
	"handout/internal/services"
	"handout/internal/stage"
)

const segmentDirName = "segments"

// segmented downloads an HLS stream and joins its segments into dest.
func (a *Acquirer) segmented(ctx context.Context, manifestURL, dest string, report stage.Reporter) (Result, error) {
	report(ctx, 0.05, "Parsing playlist")
	media, mediaURL, err := a.resolveMediaPlaylist(ctx, manifestURL)
	if err != nil {
		return Result{}, err
	}

	segments := make([]*m3u8.MediaSegment, 0, media.Count())
	for _, seg := range media.Segments {
		if seg != nil && strings.TrimSpace(seg.URI) != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, stage.Acquire, "parse playlist", "no segments found in playlist", nil)
	}

	segDir := filepath.Join(filepath.Dir(dest), segmentDirName)
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, stage.Acquire, "create segment dir", segDir, err)
	}
	defer os.RemoveAll(segDir)

	files := make([]string, 0, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		segURL, err := resolveReference(mediaURL, seg.URI)
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, stage.Acquire, "resolve segment", seg.URI, err)
		}
		data, err := a.fetchSegment(ctx, segURL, i)
		if err != nil {
			return Result{}, err
		}
		path := filepath.Join(segDir, fmt.Sprintf("segment_%05d.ts", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return Result{}, services.Wrap(services.ErrConfiguration, stage.Acquire, "write segment", path, err)
		}
		files = append(files, path)
		report(ctx, float64(i+1)/float64(len(segments))*0.8, fmt.Sprintf("Downloading segments (%d/%d)", i+1, len(segments)))
	}

	report(ctx, 0.85, "Combining segments")
	if err := a.concat(ctx, segDir, files, dest); err != nil {
		return Result{}, err
	}
	return Result{VideoPath: dest}, nil
}

// resolveMediaPlaylist loads manifestURL and, for a master playlist, follows
// the configured variant.
func (a *Acquirer) resolveMediaPlaylist(ctx context.Context, manifestURL string) (*m3u8.MediaPlaylist, string, error) {
	playlist, listType, err := a.loadPlaylist(ctx, manifestURL)
	if err != nil {
		return nil, "", err
	}
	if listType == m3u8.MEDIA {
		return playlist.(*m3u8.MediaPlaylist), manifestURL, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	variant := chooseVariant(master.Variants, a.opts.Variant)
	if variant == nil {
		return nil, "", services.Wrap(services.ErrValidation, stage.Acquire, "parse playlist", "no streams found in variant playlist", nil)
	}
	variantURL, err := resolveReference(manifestURL, variant.URI)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, stage.Acquire, "resolve variant", variant.URI, err)
	}
	a.log(ctx).Info("hls variant selected",
		logging.String(logging.FieldEventType, "hls_variant_selected"),
		logging.String("policy", a.opts.Variant),
		logging.Int64("bandwidth", int64(variant.Bandwidth)),
		logging.String("resolution", variant.Resolution),
	)
	playlist, listType, err = a.loadPlaylist(ctx, variantURL)
	if err != nil {
		return nil, "", err
	}
	if listType != m3u8.MEDIA {
		return nil, "", services.Wrap(services.ErrValidation, stage.Acquire, "parse playlist", "variant is not a media playlist", nil)
	}
	return playlist.(*m3u8.MediaPlaylist), variantURL, nil
}

func (a *Acquirer) loadPlaylist(ctx context.Context, rawURL string) (m3u8.Playlist, m3u8.ListType, error) {
	data, err := a.get(ctx, rawURL)
	if err != nil {
		return nil, 0, err
	}
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrValidation, stage.Acquire, "decode playlist", rawURL, err)
	}
	return playlist, listType, nil
}

// chooseVariant picks the lowest or highest advertised bandwidth. Ties keep
// the first listed variant.
func chooseVariant(variants []*m3u8.Variant, policy string) *m3u8.Variant {
	var chosen *m3u8.Variant
	for _, v := range variants {
		if v == nil || strings.TrimSpace(v.URI) == "" {
			continue
		}
		if chosen == nil {
			chosen = v
			continue
		}
		if policy == VariantHighest {
			if v.Bandwidth > chosen.Bandwidth {
				chosen = v
			}
		} else if v.Bandwidth < chosen.Bandwidth {
			chosen = v
		}
	}
	return chosen
}

// fetchSegment downloads one segment, retrying until it returns bytes.
func (a *Acquirer) fetchSegment(ctx context.Context, rawURL string, index int) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= a.opts.SegmentAttempts; attempt++ {
		data, err := a.get(ctx, rawURL)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("segment %d is empty", index)
		}
		lastErr = err
		a.log(ctx).Debug("segment attempt failed",
			logging.Int("segment", index),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if attempt < a.opts.SegmentAttempts {
			if err := a.sleep(ctx, a.retryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("segment %d after %d attempts: %w: %w", index, a.opts.SegmentAttempts, ErrSegmentExhausted, lastErr)
}

func (a *Acquirer) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Acquire, "build request", rawURL, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if isCancelled(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, stage.Acquire, "fetch", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, stage.Acquire, "fetch", fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage.Acquire, "read body", rawURL, err)
	}
	return data, nil
}

// concat joins segment files with the ffmpeg concat demuxer, falling back to
// raw byte concatenation.
func (a *Acquirer) concat(ctx context.Context, segDir string, files []string, dest string) error {
	listPath := filepath.Join(segDir, "list.txt")
	var list strings.Builder
	for _, f := range files {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(f, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, stage.Acquire, "write concat list", listPath, err)
	}

	_, err := a.runner.Run(ctx, a.ffmpeg(), "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-y", dest)
	if err == nil {
		if info, statErr := os.Stat(dest); statErr == nil && info.Size() > 0 {
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logging.WarnWithContext(a.log(ctx), "ffmpeg concat unavailable; joining raw segments", "segment_concat_fallback",
		logging.Error(err),
		logging.Bool("ffmpeg_missing", deps.IsMissing(err)),
		logging.String(logging.FieldImpact, "video container may be less seekable"),
		logging.String(logging.FieldErrorHint, "install ffmpeg for clean stream joins"),
	)
	return joinRaw(files, dest)
}

func joinRaw(files []string, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stage.Acquire, "create video", dest, err)
	}
	for _, path := range files {
		in, err := os.Open(path)
		if err != nil {
			out.Close()
			return services.Wrap(services.ErrConfiguration, stage.Acquire, "open segment", path, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			return services.Wrap(services.ErrConfiguration, stage.Acquire, "join segments", dest, err)
		}
	}
	return out.Close()
}

func (a *Acquirer) ffmpeg() string {
	if strings.TrimSpace(a.opts.FFmpegBinary) == "" {
		return "ffmpeg"
	}
	return a.opts.FFmpegBinary
}

func resolveReference(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
