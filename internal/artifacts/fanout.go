package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"handout/internal/ai"
	"handout/internal/logging"
	"handout/internal/render"
	"handout/internal/runspec"
	"handout/internal/stage"
	"handout/internal/storage"
	"handout/internal/taskrunner"
)

// Artifact kinds and their output keys.
const (
	KindStudyTable = runspec.FeatureStudyTable
	KindQuiz       = runspec.FeatureQuiz
	KindConceptMap = runspec.FeatureConceptMap
)

// ArtifactsDir is the job work dir subdirectory holding generated artifacts.
const ArtifactsDir = "artifacts"

// Generator is the AI surface the artifacts need.
type Generator interface {
	StudyTable(ctx context.Context, scope, document string, params runspec.Params) (ai.StudyTable, error)
	Quiz(ctx context.Context, scope, document string, params runspec.Params) (ai.Quiz, error)
	ConceptMap(ctx context.Context, scope, document string, params runspec.Params) ([]ai.ConceptMap, error)
}

// Fanout is the fan-out-artifacts stage.
type Fanout struct {
	generator Generator
	store     storage.Store
	runner    taskrunner.Runner
	workRoot  string
	logger    *slog.Logger
}

// NewFanout builds the stage. runner is shared by every job; its size bounds
// how many artifact units run at once.
func NewFanout(generator Generator, store storage.Store, runner taskrunner.Runner, workRoot string, logger *slog.Logger) *Fanout {
	return &Fanout{
		generator: generator,
		store:     store,
		runner:    runner,
		workRoot:  workRoot,
		logger:    logging.NewComponentLogger(logger, "artifacts"),
	}
}

type unit struct {
	kind string
	run  func(ctx context.Context) (map[string]string, error)
}

// Execute implements stage.Handler.
func (f *Fanout) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	kinds := run.Features.Enabled()
	if len(kinds) == 0 {
		report(ctx, 1, "No artifacts requested")
		return runspec.Patch{}, nil
	}
	logger := logging.WithContext(ctx, f.logger)
	document := run.DocumentText()
	base := f.baseName(run)
	dir := filepath.Join(f.workRoot, run.JobID, ArtifactsDir)

	units := make([]unit, 0, len(kinds))
	for _, kind := range kinds {
		units = append(units, f.unitFor(kind, run, document, base, dir))
	}
	tasks := make([]taskrunner.Task, len(units))
	for i, u := range units {
		tasks[i] = func(ctx context.Context) (any, error) { return u.run(ctx) }
	}

	report(ctx, 0.1, "Generating artifacts")
	started := time.Now()
	handles, err := taskrunner.ScheduleMany(ctx, f.runner, tasks)
	if err != nil {
		for _, h := range handles {
			h.Cancel()
		}
		if ctx.Err() != nil {
			return runspec.Patch{}, ctx.Err()
		}
		return runspec.Patch{}, fmt.Errorf("schedule artifacts: %w", err)
	}

	outputs := make(map[string]string)
	done := 0
	for idx := range taskrunner.Completed(ctx, handles) {
		done++
		u := units[idx]
		value, err := handles[idx].Result()
		fraction := 0.1 + float64(done)/float64(len(units))*0.8
		if err != nil {
			logging.WarnWithContext(logger, "artifact generation failed", "artifact_failed",
				logging.String("artifact", u.kind),
				logging.String(logging.FieldErrorHint, hintFor(u.kind)),
				logging.String(logging.FieldImpact, u.kind+" will be missing from the job outputs"),
				logging.Error(err),
			)
			report(ctx, fraction, fmt.Sprintf("%s failed (%d/%d)", label(u.kind), done, len(units)))
			continue
		}
		produced, _ := value.(map[string]string)
		for key, location := range produced {
			outputs[key] = location
		}
		logger.Info("artifact generated",
			logging.String("artifact", u.kind),
			logging.Int("files", len(produced)),
		)
		report(ctx, fraction, fmt.Sprintf("%s completed (%d/%d)", label(u.kind), done, len(units)))
	}
	if err := ctx.Err(); err != nil {
		for _, h := range handles {
			h.Cancel()
		}
		return runspec.Patch{}, err
	}

	logger.Info("artifacts finished",
		logging.Int("requested", len(units)),
		logging.Int("outputs", len(outputs)),
		logging.Duration("elapsed", time.Since(started)),
	)
	report(ctx, 1, "Artifacts generated")
	if len(outputs) == 0 {
		return runspec.Patch{}, nil
	}
	return runspec.Patch{Outputs: outputs}, nil
}

func (f *Fanout) unitFor(kind string, run runspec.Run, document, base, dir string) unit {
	scope, params := ai.CacheScope(run.SourceID, run.Features.Refine), run.Params
	switch kind {
	case KindStudyTable:
		return unit{kind: kind, run: func(ctx context.Context) (map[string]string, error) {
			table, err := f.generator.StudyTable(ctx, scope, document, params)
			if err != nil {
				return nil, err
			}
			path := filepath.Join(dir, base+".xlsx")
			if err := WriteStudyTable(path, table); err != nil {
				return nil, err
			}
			return f.store1(ctx, run, KindStudyTable, path)
		}}
	case KindQuiz:
		return unit{kind: kind, run: func(ctx context.Context) (map[string]string, error) {
			quiz, err := f.generator.Quiz(ctx, scope, document, params)
			if err != nil {
				return nil, err
			}
			path := filepath.Join(dir, base+" - Vignette Questions.pdf")
			if err := WriteQuiz(path, base, quiz); err != nil {
				return nil, err
			}
			return f.store1(ctx, run, KindQuiz, path)
		}}
	default:
		return unit{kind: KindConceptMap, run: func(ctx context.Context) (map[string]string, error) {
			maps, err := f.generator.ConceptMap(ctx, scope, document, params)
			if err != nil {
				return nil, err
			}
			paths, err := WriteConceptMaps(dir, base, maps)
			if err != nil {
				return nil, err
			}
			out := make(map[string]string, len(paths))
			for i, path := range paths {
				location, err := f.store.Put(ctx, path, render.StorageName(run, filepath.Base(path)))
				if err != nil {
					return nil, fmt.Errorf("store concept map: %w", err)
				}
				out[ConceptMapKey(i)] = location
			}
			return out, nil
		}}
	}
}

func (f *Fanout) store1(ctx context.Context, run runspec.Run, key, path string) (map[string]string, error) {
	location, err := f.store.Put(ctx, path, render.StorageName(run, filepath.Base(path)))
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	return map[string]string{key: location}, nil
}

// baseName is the file name stem shared by every artifact of a run.
func (f *Fanout) baseName(run runspec.Run) string {
	if run.DocumentPath != "" {
		return strings.TrimSuffix(filepath.Base(run.DocumentPath), filepath.Ext(run.DocumentPath))
	}
	return strings.TrimSuffix(render.DocumentFileName(run.Title), ".pdf")
}

func label(kind string) string {
	switch kind {
	case KindStudyTable:
		return "Study table"
	case KindQuiz:
		return "Quiz"
	default:
		return "Concept map"
	}
}

func hintFor(kind string) string {
	switch kind {
	case KindStudyTable:
		return "check the LLM returned rows for the requested columns"
	case KindQuiz:
		return "check the LLM returned learning objectives with questions"
	default:
		return "check the LLM returned mermaid_code for each mindmap"
	}
}
