package render

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
	"handout/internal/storage"
	"handout/internal/textutil"
)

// FallbackTitle names handouts when the AI title is unavailable.
const FallbackTitle = "Lecture Handout"

// OutputDocument is the output key of the handout PDF.
const OutputDocument = "document"

// Titler names a document.
type Titler interface {
	Title(ctx context.Context, document string, params runspec.Params) (string, error)
}

// Renderer is the render-document stage.
type Renderer struct {
	titler   Titler
	store    storage.Store
	workRoot string
	logger   *slog.Logger
}

// NewRenderer builds the stage. titler may be nil, in which case every
// handout gets the fallback title.
func NewRenderer(titler Titler, store storage.Store, workRoot string, logger *slog.Logger) *Renderer {
	return &Renderer{
		titler:   titler,
		store:    store,
		workRoot: workRoot,
		logger:   logging.NewComponentLogger(logger, "render"),
	}
}

// Execute implements stage.Handler.
func (r *Renderer) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	if len(run.Slides) == 0 {
		return runspec.Patch{}, services.Wrap(services.ErrValidation, stage.RenderDocument, "render", "no slides to render", nil)
	}
	logger := logging.WithContext(ctx, r.logger)

	report(ctx, 0.1, "Naming handout")
	title := r.title(ctx, logger, run)
	if err := ctx.Err(); err != nil {
		return runspec.Patch{}, err
	}

	report(ctx, 0.3, "Rendering PDF")
	fileName := DocumentFileName(title)
	local := filepath.Join(r.workRoot, run.JobID, fileName)
	if err := WritePDF(local, title, run.Slides); err != nil {
		return runspec.Patch{}, services.Wrap(services.ErrExternalTool, stage.RenderDocument, "write pdf", "could not render handout", err)
	}

	patch := runspec.Patch{Title: title, DocumentPath: local}
	if pages, err := PageCount(local); err == nil {
		patch.PageCount = pages
	} else {
		logging.WarnWithContext(logger, "page count unavailable", "page_count_failed",
			logging.String(logging.FieldErrorHint, "pdf may be malformed"),
			logging.String(logging.FieldImpact, "page count missing from job"),
			logging.Error(err),
		)
	}

	report(ctx, 0.8, "Storing handout")
	location, err := r.store.Put(ctx, local, StorageName(run, fileName))
	if err != nil {
		return runspec.Patch{}, services.Wrap(services.ErrTransient, stage.RenderDocument, "store", "could not store handout", err)
	}
	patch.Outputs = map[string]string{OutputDocument: location}

	logger.Info("handout rendered",
		logging.String("title", title),
		logging.Int("slides", len(run.Slides)),
		logging.Int("pages", patch.PageCount),
		logging.String("location", location),
	)
	report(ctx, 1, "Handout rendered")
	return patch, nil
}

func (r *Renderer) title(ctx context.Context, logger *slog.Logger, run runspec.Run) string {
	if r.titler == nil {
		return FallbackTitle
	}
	title, err := r.titler.Title(ctx, run.DocumentText(), run.Params)
	if err != nil {
		logging.WarnWithContext(logger, "title generation failed; using fallback", "title_failed",
			logging.String(logging.FieldErrorHint, "check the LLM configuration"),
			logging.String(logging.FieldImpact, "handout uses the generic title"),
			logging.Error(err),
		)
		return FallbackTitle
	}
	if title = textutil.TitleCase(title); title == "" {
		return FallbackTitle
	}
	return title
}

// DocumentFileName maps a title to the handout's file name.
func DocumentFileName(title string) string {
	name := textutil.SanitizeFileName(title)
	if name == "" {
		name = FallbackTitle
	}
	return name + ".pdf"
}

// storageDirLen bounds the source-derived directory name.
const storageDirLen = 16

// StorageName keys a run's file in the storage backend. Files are grouped by
// source so reruns of the same video overwrite rather than duplicate their
// outputs. Runs without a source identity fall back to the job id.
func StorageName(run runspec.Run, fileName string) string {
	dir := strings.TrimSpace(run.JobID)
	if strings.TrimSpace(run.SourceID) != "" {
		dir = textutil.SanitizeToken(run.SourceID)
		if len(dir) > storageDirLen {
			dir = dir[:storageDirLen]
		}
	}
	if dir == "" {
		return fileName
	}
	return path.Join(dir, fileName)
}
