package progress

import (
	"context"

	"render-engine/ddd/domain/port"
	"render-engine/ddd/domain/repo"
)

// DBSink writes progress to the repository.
type DBSink struct {
	repo repo.RenderJobRepository
}

func NewDBSink(r repo.RenderJobRepository) port.ProgressSink {
	return &DBSink{repo: r}
}

func (s *DBSink) SaveProgress(ctx context.Context, jobID string, progress int) error {
	if s.repo == nil || jobID == "" {
		return nil
	}
	return s.repo.UpdateProgress(ctx, jobID, progress)
}
