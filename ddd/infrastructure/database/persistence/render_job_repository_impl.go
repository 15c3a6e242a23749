package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/repo"
	"render-engine/ddd/domain/vo"
	"render-engine/ddd/infrastructure/database/convertor"
	"render-engine/ddd/infrastructure/database/dao"
)

// renderJobRepositoryImpl 渲染任务仓储实现
type renderJobRepositoryImpl struct {
	jobDao    *dao.RenderJobDAO
	convertor *convertor.RenderJobConvertor
}

// NewRenderJobRepository 创建渲染任务仓储实现
func NewRenderJobRepository(db *gorm.DB) repo.RenderJobRepository {
	return &renderJobRepositoryImpl{
		jobDao:    dao.NewRenderJobDAO(db),
		convertor: convertor.NewRenderJobConvertor(),
	}
}

// Create 持久化新任务
func (r *renderJobRepositoryImpl) Create(ctx context.Context, job *entity.VideoRenderJob) error {
	return r.jobDao.Create(ctx, r.convertor.EntityToPO(job))
}

// Get 按ID获取任务；缺失返回nil
func (r *renderJobRepositoryImpl) Get(ctx context.Context, jobID string) (*entity.VideoRenderJob, error) {
	jobPo, err := r.jobDao.FindByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.convertor.POToEntity(jobPo), nil
}

// Update 保存任务当前状态
func (r *renderJobRepositoryImpl) Update(ctx context.Context, job *entity.VideoRenderJob) error {
	return r.jobDao.Update(ctx, r.convertor.EntityToPO(job))
}

// UpdateProgress 仅更新进度
func (r *renderJobRepositoryImpl) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	return r.jobDao.UpdateProgress(ctx, jobID, progress)
}

// List 条件查询
func (r *renderJobRepositoryImpl) List(ctx context.Context, filter repo.JobFilter) ([]*entity.VideoRenderJob, error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, string(s))
	}
	poList, err := r.jobDao.Query(ctx,
		filter.TenantID, filter.Env, filter.ProjectID, string(filter.JobType),
		statuses, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return r.convertor.POListToEntityList(poList), nil
}

// FindActiveByCacheKey 查找同缓存键+类型的在途任务
func (r *renderJobRepositoryImpl) FindActiveByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType) (*entity.VideoRenderJob, error) {
	return r.findByCacheKey(ctx, tenantID, cacheKey, jobType,
		[]string{string(vo.JobStatusQueued), string(vo.JobStatusRunning)})
}

// FindSucceededByCacheKey 查找同缓存键+类型的已成功任务
func (r *renderJobRepositoryImpl) FindSucceededByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType) (*entity.VideoRenderJob, error) {
	return r.findByCacheKey(ctx, tenantID, cacheKey, jobType,
		[]string{string(vo.JobStatusSucceeded)})
}

func (r *renderJobRepositoryImpl) findByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType, statuses []string) (*entity.VideoRenderJob, error) {
	jobPo, err := r.jobDao.FindByCacheKey(ctx, tenantID, cacheKey, string(jobType), statuses)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.convertor.POToEntity(jobPo), nil
}

// CountActive 统计活跃任务数
func (r *renderJobRepositoryImpl) CountActive(ctx context.Context, tenantID, env string) (int64, error) {
	return r.jobDao.CountByStatuses(ctx, tenantID, env,
		[]string{string(vo.JobStatusQueued), string(vo.JobStatusRunning)})
}
