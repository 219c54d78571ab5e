package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"handout/internal/ai"
	"handout/internal/config"
	"handout/internal/logging"
	"handout/internal/notifications"
	"handout/internal/progress"
	"handout/internal/queue"
	"handout/internal/services/llm"
	"handout/internal/services/transcribe"
	"handout/internal/stagecache"
	"handout/internal/storage"
	"handout/internal/taskrunner"
	"handout/internal/workflow"
)

// Runtime holds the long-lived collaborators of a handout process. The
// daemon and the in-process CLI runner share it.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *queue.Store
	Cache        *stagecache.Cache
	Events       *progress.SSEPublisher
	Orchestrator *workflow.Orchestrator

	closers []func() error
}

// BuildOptions tweaks Build.
type BuildOptions struct {
	// Publisher receives progress events in addition to the log publisher.
	// Nil installs an SSE publisher exposed as Runtime.Events.
	Publisher progress.Publisher
	// Completer and Transcriber replace the HTTP clients built from config.
	Completer   ai.Completer
	Transcriber ai.Transcriber
	HTTPClient  *http.Client
}

// Build opens stores and wires every pipeline stage from cfg. Callers must
// Close the runtime.
func Build(cfg *config.Config, logger *slog.Logger, opts BuildOptions) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	rt := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Store, err = queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	rt.closers = append(rt.closers, rt.Store.Close)

	rt.Cache, err = stagecache.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open stage cache: %w", err)
	}
	rt.closers = append(rt.closers, rt.Cache.Close)

	outputs, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open output storage: %w", err)
	}

	fanout, err := taskrunner.NewForFanout(cfg)
	if err != nil {
		return nil, fmt.Errorf("create fan-out runner: %w", err)
	}
	rt.closers = append(rt.closers, fanout.Close)

	jobs, err := taskrunner.NewForJobs(cfg)
	if err != nil {
		return nil, fmt.Errorf("create job runner: %w", err)
	}
	rt.closers = append(rt.closers, jobs.Close)

	completer := opts.Completer
	if completer == nil {
		completer = newCompleter(cfg, opts.HTTPClient)
	}
	transcriber := opts.Transcriber
	if transcriber == nil {
		transcriber = newTranscriber(cfg, opts.HTTPClient, logger)
	}

	publisher := opts.Publisher
	if publisher == nil {
		rt.Events = progress.NewSSEPublisher()
		rt.closers = append(rt.closers, func() error { rt.Events.Close(); return nil })
		publisher = rt.Events
	}

	stages := workflow.NewStages(cfg, workflow.Collaborators{
		AI:         ai.New(completer, transcriber, rt.Cache, logger),
		Storage:    outputs,
		Fanout:     fanout,
		HTTPClient: opts.HTTPClient,
		Cache:      rt.Cache,
	}, logger)

	rt.Orchestrator, err = workflow.New(rt.Store, stages, jobs,
		workflow.WithCache(rt.Cache),
		workflow.WithPublisher(progress.Multi{progress.NewLogPublisher(logger), publisher}),
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases runtime resources in reverse order of acquisition.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func newCompleter(cfg *config.Config, httpClient *http.Client) ai.Completer {
	settings := cfg.GetLLM()
	if settings.APIKey == "" {
		return nil
	}
	var opts []llm.Option
	if httpClient != nil {
		opts = append(opts, llm.WithHTTPClient(httpClient))
	}
	return llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	}, opts...)
}

func newTranscriber(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) ai.Transcriber {
	opts := []transcribe.Option{transcribe.WithLogger(logger)}
	if httpClient != nil {
		opts = append(opts, transcribe.WithHTTPClient(httpClient))
	}
	return transcribe.NewService(transcribe.Config{
		APIKey:     cfg.Transcription.APIKey,
		BaseURL:    cfg.Transcription.BaseURL,
		Model:      cfg.Transcription.Model,
		Language:   cfg.Transcription.Language,
		MaxRetries: transcribe.DefaultMaxRetries,
		Timeout:    10 * time.Minute,
	}, cfg.FFmpegBinary(), opts...)
}
