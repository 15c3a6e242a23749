package persistence

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/repo"
	"render-engine/ddd/domain/vo"
	"render-engine/ddd/infrastructure/database/po"
)

// newSQLiteRepo 独立的内存库，表结构与生产一致
func newSQLiteRepo(t *testing.T) repo.RenderJobRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&po.RenderJobPO{}))
	return NewRenderJobRepository(db)
}

func newTestJob(tenantID, projectID string, jobType vo.JobType, cacheKey string) *entity.VideoRenderJob {
	return entity.NewVideoRenderJob(tenantID, "dev", "u1", projectID, "youtube_1080p", jobType, cacheKey, `{"project_id":"`+projectID+`"}`)
}

func TestRenderJobRepositoryRoundTrip(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	job := newTestJob("t1", "p1", vo.JobTypeFull, "key-1")
	require.NoError(t, r.Create(ctx, job))

	got, err := r.Get(ctx, job.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID(), got.ID())
	assert.Equal(t, "t1", got.TenantID())
	assert.Equal(t, "dev", got.Env())
	assert.Equal(t, "p1", got.ProjectID())
	assert.Equal(t, "youtube_1080p", got.Profile())
	assert.Equal(t, vo.JobTypeFull, got.JobType())
	assert.Equal(t, vo.JobStatusQueued, got.Status())
	assert.Equal(t, "key-1", got.RenderCacheKey())
	assert.Equal(t, job.RequestJSON(), got.RequestJSON())

	missing, err := r.Get(ctx, "no-such-job")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRenderJobRepositorySegmentFieldsSurvive(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	job := newTestJob("t1", "p1", vo.JobTypeSegment, "key-seg")
	job.SetSegment(1, 10000, 20000, 500)
	require.NoError(t, r.Create(ctx, job))

	got, err := r.Get(ctx, job.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.SegmentIndex())
	assert.Equal(t, 1, *got.SegmentIndex())
	require.NotNil(t, got.SegmentStartMs())
	assert.Equal(t, int64(10000), *got.SegmentStartMs())
	require.NotNil(t, got.SegmentEndMs())
	assert.Equal(t, int64(20000), *got.SegmentEndMs())
	assert.Equal(t, int64(500), got.OverlapMs())
}

func TestRenderJobRepositoryPlanSnapshotSurvives(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	// 提交期校验快照：不锁定
	job := newTestJob("t1", "p1", vo.JobTypeFull, "key-snap")
	job.SetPlanSnapshot(`{"profile_name":"youtube_1080p"}`)
	require.NoError(t, r.Create(ctx, job))

	got, err := r.Get(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, `{"profile_name":"youtube_1080p"}`, got.PlanSnapshot())
	assert.False(t, got.PlanPinned())

	// 拼接任务的锁定执行快照
	pinned := newTestJob("t1", "p1", vo.JobTypeFull, "key-pinned")
	pinned.PinPlanSnapshot(`{"profile_name":"youtube_1080p"}`)
	require.NoError(t, r.Create(ctx, pinned))

	got, err = r.Get(ctx, pinned.ID())
	require.NoError(t, err)
	assert.True(t, got.PlanPinned())
	assert.NotEmpty(t, got.PlanSnapshot())
}

func TestRenderJobRepositoryUpdateLifecycle(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	job := newTestJob("t1", "p1", vo.JobTypeFull, "key-run")
	require.NoError(t, r.Create(ctx, job))

	require.True(t, job.Start())
	require.NoError(t, r.Update(ctx, job))
	require.NoError(t, r.UpdateProgress(ctx, job.ID(), 55))

	got, err := r.Get(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.JobStatusRunning, got.Status())
	assert.Equal(t, 55, got.Progress())

	job.Fail("encoder crashed")
	require.NoError(t, r.Update(ctx, job))

	got, err = r.Get(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.JobStatusFailed, got.Status())
	assert.Equal(t, "encoder crashed", got.ErrorMessage())
}

func TestRenderJobRepositoryCacheKeyLookups(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	job := newTestJob("t1", "p1", vo.JobTypeFull, "key-cache")
	require.NoError(t, r.Create(ctx, job))

	active, err := r.FindActiveByCacheKey(ctx, "t1", "key-cache", vo.JobTypeFull)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID(), active.ID())

	// 类型和租户都参与匹配
	byType, err := r.FindActiveByCacheKey(ctx, "t1", "key-cache", vo.JobTypeSegment)
	require.NoError(t, err)
	assert.Nil(t, byType)
	byTenant, err := r.FindActiveByCacheKey(ctx, "t2", "key-cache", vo.JobTypeFull)
	require.NoError(t, err)
	assert.Nil(t, byTenant)

	done, err := r.FindSucceededByCacheKey(ctx, "t1", "key-cache", vo.JobTypeFull)
	require.NoError(t, err)
	assert.Nil(t, done)

	require.True(t, job.Start())
	require.True(t, job.Succeed("asset-1", "artifact-1"))
	require.NoError(t, r.Update(ctx, job))

	active, err = r.FindActiveByCacheKey(ctx, "t1", "key-cache", vo.JobTypeFull)
	require.NoError(t, err)
	assert.Nil(t, active)

	done, err = r.FindSucceededByCacheKey(ctx, "t1", "key-cache", vo.JobTypeFull)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, "artifact-1", done.ResultArtifactID())
	assert.Equal(t, "asset-1", done.ResultAssetID())
	assert.Equal(t, 100, done.Progress())
}

func TestRenderJobRepositoryListAndCount(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	jobs := []*entity.VideoRenderJob{
		newTestJob("t1", "p1", vo.JobTypeFull, "k1"),
		newTestJob("t1", "p1", vo.JobTypeSegment, "k2"),
		newTestJob("t1", "p2", vo.JobTypeFull, "k3"),
		newTestJob("t2", "p3", vo.JobTypeFull, "k4"),
	}
	for _, job := range jobs {
		require.NoError(t, r.Create(ctx, job))
	}
	// t1/p1的分段任务跑完
	require.True(t, jobs[1].Start())
	require.True(t, jobs[1].Succeed("a", "b"))
	require.NoError(t, r.Update(ctx, jobs[1]))

	byTenant, err := r.List(ctx, repo.JobFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, byTenant, 3)

	byProject, err := r.List(ctx, repo.JobFilter{TenantID: "t1", ProjectID: "p1"})
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	byType, err := r.List(ctx, repo.JobFilter{TenantID: "t1", JobType: vo.JobTypeSegment})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, jobs[1].ID(), byType[0].ID())

	byStatus, err := r.List(ctx, repo.JobFilter{TenantID: "t1", Status: []vo.JobStatus{vo.JobStatusSucceeded}})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	limited, err := r.List(ctx, repo.JobFilter{TenantID: "t1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	count, err := r.CountActive(ctx, "t1", "dev")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = r.CountActive(ctx, "t1", "prod")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = r.CountActive(ctx, "t2", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
