package convertor

import (
	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/vo"
	"render-engine/ddd/infrastructure/database/po"
)

// RenderJobConvertor 渲染任务转换器
type RenderJobConvertor struct{}

// NewRenderJobConvertor 创建渲染任务转换器
func NewRenderJobConvertor() *RenderJobConvertor {
	return &RenderJobConvertor{}
}

// EntityToPO 将Entity转换为PO
func (c *RenderJobConvertor) EntityToPO(job *entity.VideoRenderJob) *po.RenderJobPO {
	if job == nil {
		return nil
	}
	return &po.RenderJobPO{
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
		RequestJSON:      job.RequestJSON(),
		PlanSnapshot:     job.PlanSnapshot(),
		PlanPinned:       job.PlanPinned(),
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
}

// POToEntity 将PO转换为Entity
func (c *RenderJobConvertor) POToEntity(jobPo *po.RenderJobPO) *entity.VideoRenderJob {
	if jobPo == nil {
		return nil
	}
	return entity.RestoreVideoRenderJob(
		jobPo.JobID,
		jobPo.TenantID,
		jobPo.Env,
		jobPo.UserID,
		jobPo.ProjectID,
		jobPo.Profile,
		vo.JobType(jobPo.JobType),
		vo.JobStatus(jobPo.Status),
		jobPo.Progress,
		jobPo.RenderCacheKey,
		jobPo.RequestJSON,
		jobPo.PlanSnapshot,
		jobPo.PlanPinned,
		jobPo.ResultAssetID,
		jobPo.ResultArtifactID,
		jobPo.ErrorMessage,
		jobPo.SegmentIndex,
		jobPo.SegmentStartMs,
		jobPo.SegmentEndMs,
		jobPo.OverlapMs,
		jobPo.CreatedAt,
		jobPo.UpdatedAt,
	)
}

// POListToEntityList 批量转换
func (c *RenderJobConvertor) POListToEntityList(poList []*po.RenderJobPO) []*entity.VideoRenderJob {
	jobs := make([]*entity.VideoRenderJob, 0, len(poList))
	for _, jobPo := range poList {
		if job := c.POToEntity(jobPo); job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
