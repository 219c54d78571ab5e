package workflow

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"handout/internal/acquire"
	"handout/internal/ai"
	"handout/internal/artifacts"
	"handout/internal/captions"
	"handout/internal/config"
	"handout/internal/deps"
	"handout/internal/frames"
	"handout/internal/logging"
	"handout/internal/refine"
	"handout/internal/render"
	"handout/internal/stage"
	"handout/internal/stagecache"
	"handout/internal/storage"
	"handout/internal/taskrunner"
)

// Collaborators are the handles the stages share. They are built and closed
// by the entrypoint.
type Collaborators struct {
	AI      ai.Functions
	Storage storage.Store
	// Fanout runs artifact units; it is separate from the job runner.
	Fanout taskrunner.Runner
	// Commands runs ffmpeg, ffprobe and ghostscript. Nil uses exec.
	Commands   deps.Runner
	HTTPClient *http.Client
	// Cache lets acquire skip probing sources it has validated before.
	Cache *stagecache.Cache
}

// NewStages wires every pipeline stage from configuration.
func NewStages(cfg *config.Config, c Collaborators, logger *slog.Logger) Stages {
	commands := c.Commands
	if commands == nil {
		commands = deps.ExecRunner{}
	}
	workRoot := cfg.Paths.WorkDir

	acquireOpts := []acquire.Option{
		acquire.WithCommandRunner(commands),
		acquire.WithHTTPClient(c.HTTPClient),
		acquire.WithLogger(logging.ForStage(logger, cfg, stage.Acquire)),
	}
	if c.Cache != nil {
		acquireOpts = append(acquireOpts, acquire.WithProbeCache(c.Cache))
	}
	acquirer := acquire.New(acquire.OptionsFromConfig(cfg), acquireOpts...)
	grabber := frames.FFmpegGrabber{Binary: cfg.FFmpegBinary(), Runner: commands}

	return Stages{
		Acquire: withHealth(acquire.NewStage(acquirer, workRoot), func(context.Context) stage.Health {
			return binaryHealth(stage.Acquire, cfg.FFprobeBinary(), false)
		}),
		Captions: withHealth(captions.NewExtractor(c.AI), func(context.Context) stage.Health {
			if strings.TrimSpace(cfg.Transcription.APIKey) == "" {
				return stage.Unhealthy(stage.ExtractCaptions, "transcription api key not configured")
			}
			return stage.Healthy(stage.ExtractCaptions)
		}),
		Frames: withHealth(frames.NewDeduplicator(grabber, workRoot, frames.OptionsFromConfig(cfg), logging.ForStage(logger, cfg, stage.DeduplicateFrames)), func(context.Context) stage.Health {
			return binaryHealth(stage.DeduplicateFrames, cfg.FFmpegBinary(), true)
		}),
		Refine: refine.NewRefiner(c.AI, logging.ForStage(logger, cfg, stage.RefineContent)),
		Render: withHealth(render.NewRenderer(c.AI, c.Storage, workRoot, logging.ForStage(logger, cfg, stage.RenderDocument)), func(context.Context) stage.Health {
			if strings.TrimSpace(cfg.LLM.APIKey) == "" {
				return stage.Unhealthy(stage.RenderDocument, "llm api key not configured; handouts use the fallback title")
			}
			return stage.Healthy(stage.RenderDocument)
		}),
		Compress: withHealth(render.NewCompressor(cfg.GhostscriptBinary(), commands, c.Storage, logging.ForStage(logger, cfg, stage.CompressDocument)), func(context.Context) stage.Health {
			return binaryHealth(stage.CompressDocument, cfg.GhostscriptBinary(), false)
		}),
		Artifacts: artifacts.NewFanout(c.AI, c.Storage, c.Fanout, workRoot, logging.ForStage(logger, cfg, stage.FanOutArtifacts)),
	}
}

type healthStage struct {
	stage.Handler
	check func(context.Context) stage.Health
}

func (h healthStage) HealthCheck(ctx context.Context) stage.Health { return h.check(ctx) }

func withHealth(handler stage.Handler, check func(context.Context) stage.Health) stage.Handler {
	return healthStage{Handler: handler, check: check}
}

// binaryHealth reports a missing optional binary as ready with a detail;
// required binaries make the stage unhealthy.
func binaryHealth(name, binary string, required bool) stage.Health {
	if deps.Available(binary) {
		return stage.Healthy(name)
	}
	if required {
		return stage.Unhealthy(name, binary+" not found")
	}
	health := stage.Healthy(name)
	health.Detail = binary + " not found; degraded"
	return health
}
