package dao

import (
	"context"

	"gorm.io/gorm"

	"render-engine/ddd/infrastructure/database/po"
	"render-engine/pkg/logger"
)

// RenderJobDAO 渲染任务数据访问对象
type RenderJobDAO struct {
	db *gorm.DB
}

// NewRenderJobDAO 创建渲染任务DAO实例
func NewRenderJobDAO(db *gorm.DB) *RenderJobDAO {
	return &RenderJobDAO{db: db}
}

// Create 创建渲染任务
func (d *RenderJobDAO) Create(ctx context.Context, jobPo *po.RenderJobPO) error {
	err := d.db.WithContext(ctx).Create(jobPo).Error
	if err != nil {
		logger.Errorf("Error creating render job %v", err)
		return err
	}
	return nil
}

// FindByJobID 根据任务ID查询
func (d *RenderJobDAO) FindByJobID(ctx context.Context, jobID string) (*po.RenderJobPO, error) {
	var job po.RenderJobPO
	if err := d.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Update 保存任务全量状态
func (d *RenderJobDAO) Update(ctx context.Context, jobPo *po.RenderJobPO) error {
	err := d.db.WithContext(ctx).
		Model(&po.RenderJobPO{}).
		Where("job_id = ?", jobPo.JobID).
		Updates(map[string]interface{}{
			"status":             jobPo.Status,
			"progress":           jobPo.Progress,
			"plan_snapshot":      jobPo.PlanSnapshot,
			"plan_pinned":        jobPo.PlanPinned,
			"result_asset_id":    jobPo.ResultAssetID,
			"result_artifact_id": jobPo.ResultArtifactID,
			"error_message":      jobPo.ErrorMessage,
			"segment_index":      jobPo.SegmentIndex,
			"segment_start_ms":   jobPo.SegmentStartMs,
			"segment_end_ms":     jobPo.SegmentEndMs,
			"overlap_ms":         jobPo.OverlapMs,
			"updated_at":         jobPo.UpdatedAt,
		}).Error
	if err != nil {
		logger.Errorf("Error updating render job %v", err)
		return err
	}
	return nil
}

// UpdateProgress 仅更新进度
func (d *RenderJobDAO) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	err := d.db.WithContext(ctx).
		Model(&po.RenderJobPO{}).
		Where("job_id = ?", jobID).
		Update("progress", progress).Error
	if err != nil {
		logger.Errorf("Error updating render job progress %v", err)
		return err
	}
	return nil
}

// Query 条件查询，按创建时间倒序
func (d *RenderJobDAO) Query(ctx context.Context, tenantID, env, projectID, jobType string, statuses []string, limit, offset int) ([]*po.RenderJobPO, error) {
	query := d.db.WithContext(ctx).Model(&po.RenderJobPO{})
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if env != "" {
		query = query.Where("env = ?", env)
	}
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if jobType != "" {
		query = query.Where("job_type = ?", jobType)
	}
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	query = query.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var jobs []*po.RenderJobPO
	if err := query.Find(&jobs).Error; err != nil {
		logger.Errorf("Error query render jobs %v", err)
		return nil, err
	}
	return jobs, nil
}

// FindByCacheKey 查找同租户+缓存键+类型下处于指定状态的最新任务
func (d *RenderJobDAO) FindByCacheKey(ctx context.Context, tenantID, cacheKey, jobType string, statuses []string) (*po.RenderJobPO, error) {
	var job po.RenderJobPO
	if err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND render_cache_key = ? AND job_type = ? AND status IN ?",
			tenantID, cacheKey, jobType, statuses).
		Order("created_at DESC").
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountByStatuses 统计租户/环境下处于指定状态的任务数
func (d *RenderJobDAO) CountByStatuses(ctx context.Context, tenantID, env string, statuses []string) (int64, error) {
	var count int64
	query := d.db.WithContext(ctx).
		Model(&po.RenderJobPO{}).
		Where("tenant_id = ? AND status IN ?", tenantID, statuses)
	if env != "" {
		query = query.Where("env = ?", env)
	}
	if err := query.Count(&count).Error; err != nil {
		logger.Errorf("Error counting render jobs %v", err)
		return 0, err
	}
	return count, nil
}
