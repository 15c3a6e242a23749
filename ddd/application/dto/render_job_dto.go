package dto

import (
	"encoding/json"
	"time"

	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/vo"
)

// RenderJobDto 渲染任务数据传输对象
type RenderJobDto struct {
	JobID            string          `json:"job_id"`
	TenantID         string          `json:"tenant_id"`
	Env              string          `json:"env,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	ProjectID        string          `json:"project_id"`
	Profile          string          `json:"profile"`
	JobType          string          `json:"job_type"`
	Status           string          `json:"status"`
	Progress         int             `json:"progress"`
	RenderCacheKey   string          `json:"render_cache_key"`
	ResultAssetID    string          `json:"result_asset_id,omitempty"`
	ResultArtifactID string          `json:"result_artifact_id,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	SegmentIndex     *int            `json:"segment_index,omitempty"`
	SegmentStartMs   *int64          `json:"segment_start_ms,omitempty"`
	SegmentEndMs     *int64          `json:"segment_end_ms,omitempty"`
	OverlapMs        int64           `json:"overlap_ms,omitempty"`
	Plan             json.RawMessage `json:"plan,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RenderJobDTO 渲染任务DTO（别名）
type RenderJobDTO = RenderJobDto

// NewRenderJobDto 从实体创建DTO，dry-run任务附带计划快照
func NewRenderJobDto(job *entity.VideoRenderJob) *RenderJobDto {
	if job == nil {
		return nil
	}
	d := &RenderJobDto{
		JobID:            job.ID(),
		TenantID:         job.TenantID(),
		Env:              job.Env(),
		UserID:           job.UserID(),
		ProjectID:        job.ProjectID(),
		Profile:          job.Profile(),
		JobType:          string(job.JobType()),
		Status:           string(job.Status()),
		Progress:         job.Progress(),
		RenderCacheKey:   job.RenderCacheKey(),
		ResultAssetID:    job.ResultAssetID(),
		ResultArtifactID: job.ResultArtifactID(),
		ErrorMessage:     job.ErrorMessage(),
		SegmentIndex:     job.SegmentIndex(),
		SegmentStartMs:   job.SegmentStartMs(),
		SegmentEndMs:     job.SegmentEndMs(),
		OverlapMs:        job.OverlapMs(),
		CreatedAt:        job.CreatedAt(),
		UpdatedAt:        job.UpdatedAt(),
	}
	if snapshot := job.PlanSnapshot(); snapshot != "" {
		d.Plan = json.RawMessage(snapshot)
	}
	return d
}

// RenderJobListDto 渲染任务列表DTO
type RenderJobListDto struct {
	Jobs []*RenderJobDto `json:"jobs"`
	Page int             `json:"page"`
	Size int             `json:"size"`
}

// RenderSegmentDto 分段计划DTO
type RenderSegmentDto struct {
	Index     int    `json:"index"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	OverlapMs int64  `json:"overlap_ms"`
	CacheKey  string `json:"cache_key"`
}

// NewRenderSegmentDtos 批量转换分段计划
func NewRenderSegmentDtos(segments []vo.RenderSegment) []RenderSegmentDto {
	out := make([]RenderSegmentDto, 0, len(segments))
	for _, s := range segments {
		out = append(out, RenderSegmentDto{
			Index:     s.Index,
			StartMs:   s.StartMs,
			EndMs:     s.EndMs,
			OverlapMs: s.OverlapMs,
			CacheKey:  s.CacheKey,
		})
	}
	return out
}

// RenderProgressDto 渲染进度DTO
type RenderProgressDto struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
}
