package repo

import (
	"context"

	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/vo"
)

// JobFilter 任务列表查询条件
type JobFilter struct {
	TenantID  string
	Env       string
	ProjectID string
	Status    []vo.JobStatus
	JobType   vo.JobType
	Limit     int
	Offset    int
}

// RenderJobRepository 渲染任务仓储接口。任务记录是唯一的可变共享状态，
// 只允许编排器通过生命周期方法写入。
type RenderJobRepository interface {
	// Create 持久化新任务
	Create(ctx context.Context, job *entity.VideoRenderJob) error

	// Get 按ID获取任务
	Get(ctx context.Context, jobID string) (*entity.VideoRenderJob, error)

	// Update 保存任务的当前状态
	Update(ctx context.Context, job *entity.VideoRenderJob) error

	// UpdateProgress 仅更新进度
	UpdateProgress(ctx context.Context, jobID string, progress int) error

	// List 按租户/环境/状态/项目过滤
	List(ctx context.Context, filter JobFilter) ([]*entity.VideoRenderJob, error)

	// FindActiveByCacheKey 查找同缓存键+类型的在途任务（queued/running）
	FindActiveByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType) (*entity.VideoRenderJob, error)

	// FindSucceededByCacheKey 查找同缓存键+类型的已成功任务
	FindSucceededByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType) (*entity.VideoRenderJob, error)

	// CountActive 统计租户/环境下的活跃任务数（背压判断）
	CountActive(ctx context.Context, tenantID, env string) (int64, error)
}
