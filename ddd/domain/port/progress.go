package port

import "context"

// ProgressSink persists or forwards job progress updates.
type ProgressSink interface {
	SaveProgress(ctx context.Context, jobID string, progress int) error
}
