package acquire

import (
	"context"
	"path/filepath"

	"handout/internal/runspec"
	"handout/internal/stage"
)

// Stage adapts the Acquirer to the pipeline stage contract.
type Stage struct {
	acquirer *Acquirer
	workRoot string
}

// NewStage builds the acquire stage. Each job gets workRoot/<job id>.
func NewStage(acquirer *Acquirer, workRoot string) *Stage {
	return &Stage{acquirer: acquirer, workRoot: workRoot}
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, run runspec.Run, report stage.Reporter) (runspec.Patch, error) {
	result, err := s.acquirer.Acquire(ctx, run.Source, filepath.Join(s.workRoot, run.JobID), report)
	if err != nil {
		return runspec.Patch{}, err
	}
	return runspec.Patch{
		SourceID:        result.SourceID,
		VideoPath:       result.VideoPath,
		DurationSeconds: result.DurationSeconds,
	}, nil
}
