package persistence

import (
	"context"
	"sort"
	"sync"

	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/repo"
	"render-engine/ddd/domain/vo"
)

// memoryRenderJobRepository 进程内仓储，无数据库部署和测试用
type memoryRenderJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*entity.VideoRenderJob
}

// NewMemoryRenderJobRepository 创建进程内渲染任务仓储
func NewMemoryRenderJobRepository() repo.RenderJobRepository {
	return &memoryRenderJobRepository{jobs: make(map[string]*entity.VideoRenderJob)}
}

func (r *memoryRenderJobRepository) Create(ctx context.Context, job *entity.VideoRenderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID()] = job
	return nil
}

func (r *memoryRenderJobRepository) Get(ctx context.Context, jobID string) (*entity.VideoRenderJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[jobID], nil
}

func (r *memoryRenderJobRepository) Update(ctx context.Context, job *entity.VideoRenderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID()] = job
	return nil
}

func (r *memoryRenderJobRepository) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[jobID]; ok {
		job.SetProgress(progress)
	}
	return nil
}

func (r *memoryRenderJobRepository) List(ctx context.Context, filter repo.JobFilter) ([]*entity.VideoRenderJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*entity.VideoRenderJob, 0)
	for _, job := range r.jobs {
		if filter.TenantID != "" && job.TenantID() != filter.TenantID {
			continue
		}
		if filter.Env != "" && job.Env() != filter.Env {
			continue
		}
		if filter.ProjectID != "" && job.ProjectID() != filter.ProjectID {
			continue
		}
		if filter.JobType != "" && job.JobType() != filter.JobType {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, s := range filter.Status {
				if job.Status() == s {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt().After(matched[j].CreatedAt())
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *memoryRenderJobRepository) FindActiveByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType) (*entity.VideoRenderJob, error) {
	return r.findByCacheKey(tenantID, cacheKey, jobType, func(s vo.JobStatus) bool { return s.IsActive() })
}

func (r *memoryRenderJobRepository) FindSucceededByCacheKey(ctx context.Context, tenantID, cacheKey string, jobType vo.JobType) (*entity.VideoRenderJob, error) {
	return r.findByCacheKey(tenantID, cacheKey, jobType, func(s vo.JobStatus) bool { return s == vo.JobStatusSucceeded })
}

func (r *memoryRenderJobRepository) findByCacheKey(tenantID, cacheKey string, jobType vo.JobType, match func(vo.JobStatus) bool) (*entity.VideoRenderJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *entity.VideoRenderJob
	for _, job := range r.jobs {
		if job.TenantID() != tenantID || job.RenderCacheKey() != cacheKey || job.JobType() != jobType {
			continue
		}
		if !match(job.Status()) {
			continue
		}
		if latest == nil || job.CreatedAt().After(latest.CreatedAt()) {
			latest = job
		}
	}
	return latest, nil
}

func (r *memoryRenderJobRepository) CountActive(ctx context.Context, tenantID, env string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, job := range r.jobs {
		if job.TenantID() != tenantID {
			continue
		}
		if env != "" && job.Env() != env {
			continue
		}
		if job.Status().IsActive() {
			count++
		}
	}
	return count, nil
}
