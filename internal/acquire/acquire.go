package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"handout/internal/config"
	"handout/internal/deps"
	"handout/internal/fileutil"
	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

// VideoFileName is the name of the acquired video inside the work dir.
const VideoFileName = "video.mp4"

// ErrSegmentExhausted reports a media segment that failed every attempt.
var ErrSegmentExhausted = fmt.Errorf("%w: segment download exhausted retries", services.ErrTransient)

// Variant selection for master playlists.
const (
	VariantLowest  = "lowest"
	VariantHighest = "highest"
)

// Options tunes acquisition.
type Options struct {
	Variant         string
	SegmentAttempts int
	HTTPTimeout     time.Duration
	FFmpegBinary    string
	FFprobeBinary   string
}

// OptionsFromConfig maps the acquire and tools config sections.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Variant:         cfg.Acquire.Variant,
		SegmentAttempts: cfg.Acquire.SegmentAttempts,
		HTTPTimeout:     time.Duration(cfg.Acquire.HTTPTimeoutSeconds) * time.Second,
		FFmpegBinary:    cfg.FFmpegBinary(),
		FFprobeBinary:   cfg.FFprobeBinary(),
	}
}

// Result describes the acquired video.
type Result struct {
	VideoPath       string
	SourceID        string
	DurationSeconds float64
}

// Acquirer downloads or copies video sources.
type Acquirer struct {
	opts       Options
	httpClient *http.Client
	runner     deps.Runner
	logger     *slog.Logger
	probes     ProbeCache
	retryDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

// Option customizes an Acquirer.
type Option func(*Acquirer)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Acquirer) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithCommandRunner overrides how ffmpeg and ffprobe are executed.
func WithCommandRunner(runner deps.Runner) Option {
	return func(a *Acquirer) {
		if runner != nil {
			a.runner = runner
		}
	}
}

// WithRetryDelay sets the pause between segment attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(a *Acquirer) { a.retryDelay = delay }
}

// WithProbeCache skips ffprobe for sources validated by an earlier job.
func WithProbeCache(cache ProbeCache) Option {
	return func(a *Acquirer) { a.probes = cache }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Acquirer) { a.logger = logger }
}

// New builds an Acquirer.
func New(opts Options, options ...Option) *Acquirer {
	if opts.Variant == "" {
		opts.Variant = VariantLowest
	}
	if opts.SegmentAttempts <= 0 {
		opts.SegmentAttempts = 3
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 5 * time.Minute
	}
	a := &Acquirer{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.HTTPTimeout},
		runner:     deps.ExecRunner{},
		retryDelay: 500 * time.Millisecond,
		sleep:      sleepContext,
	}
	for _, opt := range options {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "acquire")
	return a
}

// Acquire materialises source inside workDir.
func (a *Acquirer) Acquire(ctx context.Context, source runspec.Source, workDir string, report stage.Reporter) (Result, error) {
	if report == nil {
		report = stage.Discard
	}
	if err := source.Validate(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, stage.Acquire, "create work dir", workDir, err)
	}
	dest := filepath.Join(workDir, VideoFileName)

	var (
		result Result
		err    error
	)
	switch source.Kind {
	case runspec.KindDirectFile:
		result, err = a.direct(ctx, source.Path, workDir, report)
	case runspec.KindRemoteURL:
		result, err = a.remote(ctx, source.URL, dest, report)
	case runspec.KindSegmentedStream:
		result, err = a.segmented(ctx, source.URL, dest, report)
	case runspec.KindAuthenticatedStream:
		result, err = a.authenticated(ctx, source, dest, report)
	default:
		err = services.Wrap(services.ErrValidation, stage.Acquire, "dispatch", fmt.Sprintf("unknown source kind %q", source.Kind), nil)
	}
	if err != nil {
		return Result{}, err
	}

	if result.SourceID == "" {
		report(ctx, 0.95, "Hashing video")
		sum, err := fileutil.HashFile(ctx, result.VideoPath)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, services.Wrap(services.ErrExternalTool, stage.Acquire, "hash video", result.VideoPath, err)
		}
		result.SourceID = sum
	}

	duration, err := a.validate(ctx, result)
	if err != nil {
		return Result{}, err
	}
	result.DurationSeconds = duration
	report(ctx, 1, "Video ready")
	return result, nil
}

func (a *Acquirer) direct(ctx context.Context, path, workDir string, report stage.Reporter) (Result, error) {
	src, err := filepath.Abs(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, stage.Acquire, "resolve path", path, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return Result{}, services.Wrap(services.ErrNotFound, stage.Acquire, "stat source", src, err)
	}
	if info.IsDir() {
		return Result{}, services.Wrap(services.ErrValidation, stage.Acquire, "stat source", src+" is a directory", nil)
	}
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return Result{}, err
	}
	if filepath.Dir(src) == absWork {
		return Result{VideoPath: src}, nil
	}
	report(ctx, 0.1, "Copying video")
	dest := filepath.Join(absWork, VideoFileName)
	if err := fileutil.CopyFileVerified(src, dest); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, stage.Acquire, "copy video", src, err)
	}
	report(ctx, 0.9, "Video copied")
	return Result{VideoPath: dest}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsStreamURL reports whether a URL points at an HLS playlist.
func IsStreamURL(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "m3u8")
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func (a *Acquirer) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, a.logger)
}
