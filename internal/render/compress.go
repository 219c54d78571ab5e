package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"handout/internal/deps"
	"handout/internal/fileutil"
	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
	"handout/internal/storage"
)

// GhostscriptArgs are the pdfwrite settings used for compression; the output
// and input paths are appended.
var GhostscriptArgs = []string{
	"-sDEVICE=pdfwrite",
	"-dCompatibilityLevel=1.4",
	"-dPDFSETTINGS=/ebook",
	"-dNOPAUSE",
	"-dQUIET",
	"-dBATCH",
}

// Compressor is the compress-document stage.
type Compressor struct {
	ghostscript string
	runner      deps.Runner
	store       storage.Store
	logger      *slog.Logger
}

// NewCompressor builds the stage. runner defaults to os/exec.
func NewCompressor(ghostscript string, runner deps.Runner, store storage.Store, logger *slog.Logger) *Compressor {
	if ghostscript == "" {
		ghostscript = "gs"
	}
	if runner == nil {
		runner = deps.ExecRunner{}
	}
	return &Compressor{
		ghostscript: ghostscript,
		runner:      runner,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "compress"),
	}
}

// Execute implements stage.Handler. Compression never fails the job; the
// uncompressed handout is kept when neither tool helps. A failed attempt
// returns an empty patch so it is retried by the next run of the source.
func (c *Compressor) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	if run.DocumentPath == "" {
		return runspec.Patch{}, services.Wrap(services.ErrValidation, stage.CompressDocument, "compress", "no document to compress", nil)
	}
	logger := logging.WithContext(ctx, c.logger)
	report(ctx, 0.1, "Compressing handout")

	shrunk, err := c.Compress(ctx, run.DocumentPath)
	if err != nil {
		if ctx.Err() != nil {
			return runspec.Patch{}, ctx.Err()
		}
		logging.WarnWithContext(logger, "compression failed; keeping original", "compression_failed",
			logging.String(logging.FieldErrorHint, "install ghostscript for better compression"),
			logging.String(logging.FieldImpact, "handout is stored uncompressed"),
			logging.Error(err),
		)
		report(ctx, 1, "Compression skipped")
		return runspec.Patch{}, nil
	}
	patch := runspec.Patch{}
	if pages, err := PageCount(run.DocumentPath); err == nil {
		patch.PageCount = pages
	}
	if !shrunk {
		// The stored location is echoed so the outcome can be cached.
		if location := run.Outputs[OutputDocument]; location != "" {
			patch.Outputs = map[string]string{OutputDocument: location}
		}
		report(ctx, 1, "Already compact")
		return patch, nil
	}

	report(ctx, 0.8, "Storing compressed handout")
	location, err := c.store.Put(ctx, run.DocumentPath, StorageName(run, filepath.Base(run.DocumentPath)))
	if err != nil {
		return runspec.Patch{}, services.Wrap(services.ErrTransient, stage.CompressDocument, "store", "could not store compressed handout", err)
	}
	patch.Outputs = map[string]string{OutputDocument: location}
	report(ctx, 1, "Handout compressed")
	return patch, nil
}

// Compress shrinks the PDF at path in place. It reports whether the file was
// replaced by a smaller version.
func (c *Compressor) Compress(ctx context.Context, path string) (bool, error) {
	logger := logging.WithContext(ctx, c.logger)
	before, err := fileSize(path)
	if err != nil {
		return false, err
	}
	candidate := path + ".compressed.pdf"
	defer os.Remove(candidate)

	method := "ghostscript"
	args := append(append([]string{}, GhostscriptArgs...), "-sOutputFile="+candidate, path)
	_, gsErr := c.runner.Run(ctx, c.ghostscript, args...)
	if gsErr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Debug("ghostscript unavailable, trying pdfcpu",
			logging.Bool("missing", deps.IsMissing(gsErr)),
			logging.Error(gsErr),
		)
		method = "pdfcpu"
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.OptimizeFile(path, candidate, conf); err != nil {
			return false, errors.Join(fmt.Errorf("ghostscript: %w", gsErr), fmt.Errorf("pdfcpu: %w", err))
		}
	}

	after, err := fileSize(candidate)
	if err != nil {
		return false, fmt.Errorf("%s produced no output: %w", method, err)
	}
	logger.Info("compression result",
		logging.String("method", method),
		logging.Int64("before_bytes", before),
		logging.Int64("after_bytes", after),
	)
	if after == 0 || after >= before {
		return false, nil
	}
	if err := fileutil.MoveFile(candidate, path); err != nil {
		return false, fmt.Errorf("replace with compressed pdf: %w", err)
	}
	return true, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
