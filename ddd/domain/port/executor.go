package port

import (
	"context"

	"render-engine/ddd/domain/vo"
)

// ProgressCallback is invoked by executors to report percentage progress (0-100).
type ProgressCallback func(progress int)

// ExecuteResult carries the uploaded object key and public URL of a finished render.
type ExecuteResult struct {
	ObjectKey string
	PublicURL string
}

// PlanExecutor invokes the external transcoder with a compiled render plan,
// uploads the output, and cleans up temporary files. The transcoder's encoding
// internals are a black box; only the invocation contract matters here.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *vo.RenderPlan, opts ExecuteOptions) (ExecuteResult, error)
}

// ExecuteOptions controls executor behaviour.
type ExecuteOptions struct {
	SkipUpload  bool
	ProgressCb  ProgressCallback
	RequestID   string
	TempDir     string
	TimeoutSecs int
	// DurationSec, when known, lets the executor translate transcoder
	// progress lines into percentages.
	DurationSec float64
}
