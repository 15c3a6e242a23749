package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-engine/ddd/application/cqe"
	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/port"
	"render-engine/ddd/domain/repo"
	"render-engine/ddd/domain/service"
	"render-engine/ddd/domain/vo"
	"render-engine/ddd/infrastructure/client"
	"render-engine/ddd/infrastructure/database/persistence"
	"render-engine/ddd/infrastructure/progress"
	"render-engine/ddd/infrastructure/queue"
	"render-engine/pkg/config"
	"render-engine/pkg/errno"
)

// stubExecutor 代替真实转码器：记录收到的计划，按配置上报进度或失败
type stubExecutor struct {
	mu      sync.Mutex
	calls   int
	plans   []*vo.RenderPlan
	err     error
	emitPct int
	hook    func(ctx context.Context)
}

func (s *stubExecutor) Execute(ctx context.Context, plan *vo.RenderPlan, opts port.ExecuteOptions) (port.ExecuteResult, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.plans = append(s.plans, plan)
	hook, execErr, pct := s.hook, s.err, s.emitPct
	s.mu.Unlock()

	if pct > 0 && opts.ProgressCb != nil {
		opts.ProgressCb(pct)
	}
	if hook != nil {
		hook(ctx)
	}
	if execErr != nil {
		return port.ExecuteResult{}, execErr
	}
	key := fmt.Sprintf("renders/out-%d.mp4", n)
	return port.ExecuteResult{ObjectKey: key, PublicURL: "https://cdn.example.com/" + key}, nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubExecutor) lastPlan() *vo.RenderPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.plans) == 0 {
		return nil
	}
	return s.plans[len(s.plans)-1]
}

type appFixture struct {
	cfg      *config.Config
	jobRepo  repo.RenderJobRepository
	queue    queue.JobQueue
	timeline *client.MemoryTimelineGateway
	media    *client.MemoryMediaGateway
	exec     *stubExecutor
	app      RenderApp
}

// newAppFixture 20s序列，两个剪辑各占10s，全内存依赖
func newAppFixture() *appFixture {
	cfg := &config.Config{}
	cfg.Render.DefaultProfile = "youtube_1080p"
	cfg.Render.MaxActiveJobs = 8
	cfg.Render.SegmentDurationMs = 10000
	cfg.Render.SegmentOverlapMs = 500
	cfg.Render.CreateLockTTL = 10 * time.Second
	cfg.Render.TargetLUFS = -14
	cfg.Render.FFmpeg.TempDir = "/tmp/render-test"

	tl := client.NewMemoryTimelineGateway()
	md := client.NewMemoryMediaGateway()
	tl.SeedProject(gateway.Project{ID: "p1", TenantID: "t1", Name: "demo", UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
	tl.SeedSequence(gateway.Sequence{ID: "s1", ProjectID: "p1", DurationMs: 20000, FPS: 30})
	tl.SeedTrack(gateway.Track{ID: "tv", SequenceID: "s1", Kind: "video", Order: 0})
	tl.SeedClip(gateway.Clip{ID: "c1", TrackID: "tv", AssetID: "a1", StartMs: 0, InMs: 0, OutMs: 10000, HasAudio: true})
	tl.SeedClip(gateway.Clip{ID: "c2", TrackID: "tv", AssetID: "a1", StartMs: 10000, InMs: 0, OutMs: 10000, HasAudio: true})
	md.SeedAsset(gateway.Asset{ID: "a1", TenantID: "t1", Kind: "video", URI: "s3://media/a1.mp4", LocalPath: "/media/a1.mp4"})

	resolver := service.NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		return map[string]bool{}, nil
	})
	compiler := service.NewPlanCompiler(tl, md, resolver, service.NewTransitionPlanner(),
		cfg.Render.FFmpeg.TempDir, "", cfg.Render.TargetLUFS)

	jobRepo := persistence.NewMemoryRenderJobRepository()
	jobQueue := queue.NewMemoryJobQueue(16)
	exec := &stubExecutor{}
	return &appFixture{
		cfg:      cfg,
		jobRepo:  jobRepo,
		queue:    jobQueue,
		timeline: tl,
		media:    md,
		exec:     exec,
		app:      NewRenderAppWith(cfg, jobRepo, jobQueue, compiler, exec, md, progress.NewDBSink(jobRepo), nil),
	}
}

func createReq() *cqe.CreateRenderJobReq {
	return &cqe.CreateRenderJobReq{
		TenantID:  "t1",
		Env:       "dev",
		UserID:    "u1",
		ProjectID: "p1",
	}
}

func TestCreateRenderJobQueuesAndDedupes(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, string(vo.JobStatusQueued), job.Status)
	assert.Equal(t, string(vo.JobTypeFull), job.JobType)
	assert.Equal(t, "youtube_1080p", job.Profile)
	assert.NotEmpty(t, job.RenderCacheKey)
	// 排队任务带提交期校验快照
	assert.NotEmpty(t, job.Plan)
	assert.Equal(t, 1, f.queue.Size())

	// 同参数重复提交复用在途任务，不重复入队
	dup, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	assert.Equal(t, job.JobID, dup.JobID)
	assert.Equal(t, 1, f.queue.Size())
}

func TestCreateRenderJobValidation(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	noTenant := createReq()
	noTenant.TenantID = ""
	_, err := f.app.CreateRenderJob(ctx, noTenant)
	assert.ErrorIs(t, err, errno.ErrTenantRequired)

	badWindow := createReq()
	badWindow.StartMs = int64Ptr(5000)
	badWindow.EndMs = int64Ptr(5000)
	_, err = f.app.CreateRenderJob(ctx, badWindow)
	assert.ErrorIs(t, err, errno.ErrInvalidWindow)

	halfWindow := createReq()
	halfWindow.StartMs = int64Ptr(0)
	_, err = f.app.CreateRenderJob(ctx, halfWindow)
	assert.ErrorIs(t, err, errno.ErrInvalidWindow)
}

func TestCreateRenderJobValidatesAtSubmission(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	// 未知滤镜类型在提交时就失败，不产生排队任务
	f.timeline.SeedFilterStack(gateway.FilterTargetClip, "c1", []gateway.FilterSpec{{Type: "posterize_deluxe"}})
	_, err := f.app.CreateRenderJob(ctx, createReq())
	assert.ErrorIs(t, err, errno.ErrUnknownFilterType)
	assert.Equal(t, 0, f.queue.Size())

	jobs, err := f.app.ListRenderJobs(ctx, &cqe.ListRenderJobsReq{TenantID: "t1"})
	require.NoError(t, err)
	assert.Empty(t, jobs.Jobs)
}

func TestCreateToleratesMissingSourceUntilRun(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	// 素材缺失不是校验错误：提交时降级为占位+警告，执行时才失败
	f.timeline.SeedTrack(gateway.Track{ID: "tg", SequenceID: "s1", Kind: "video", Order: 1})
	f.timeline.SeedClip(gateway.Clip{ID: "ghost", TrackID: "tg", AssetID: "nowhere", StartMs: 0, InMs: 0, OutMs: 5000})

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusQueued), job.Status)
	assert.NotEmpty(t, job.Plan)

	require.Error(t, f.app.RunRenderJob(ctx, job.JobID))
	got, err := f.app.GetRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusFailed), got.Status)
	assert.Equal(t, 0, f.exec.callCount())
}

func TestDryRunCompilesWithoutEnqueue(t *testing.T) {
	f := newAppFixture()
	req := createReq()
	req.DryRun = true

	job, err := f.app.CreateRenderJob(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusSucceeded), job.Status)
	assert.NotEmpty(t, job.Plan)
	assert.Empty(t, job.ResultArtifactID)
	assert.Equal(t, 0, f.queue.Size())
}

func TestCreateReusesSucceededResult(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	first, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	require.NoError(t, f.app.RunRenderJob(ctx, first.JobID))

	done, err := f.app.GetRenderJob(ctx, first.JobID)
	require.NoError(t, err)
	require.Equal(t, string(vo.JobStatusSucceeded), done.Status)
	require.NotEmpty(t, done.ResultArtifactID)

	// 缓存命中：落一条指向同一产物的新记录，不再入队
	queued := f.queue.Size()
	second, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Equal(t, string(vo.JobStatusSucceeded), second.Status)
	assert.Equal(t, done.ResultArtifactID, second.ResultArtifactID)
	assert.Equal(t, queued, f.queue.Size())
	assert.Equal(t, 1, f.exec.callCount())
}

func TestCreateRenderJobBackpressure(t *testing.T) {
	f := newAppFixture()
	f.cfg.Render.MaxActiveJobs = 1
	ctx := context.Background()

	first, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)

	windowed := createReq()
	windowed.StartMs = int64Ptr(0)
	windowed.EndMs = int64Ptr(5000)
	_, err = f.app.CreateRenderJob(ctx, windowed)
	assert.ErrorIs(t, err, errno.ErrTooManyActiveJobs)

	// 活跃任务离开queued/running后，下一次提交通过
	require.NoError(t, f.app.CancelRenderJob(ctx, first.JobID))
	job, err := f.app.CreateRenderJob(ctx, windowed)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusQueued), job.Status)
}

func TestCancelAndResume(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)

	require.NoError(t, f.app.CancelRenderJob(ctx, job.JobID))
	got, err := f.app.GetRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusCancelled), got.Status)

	// 重复取消非法
	assert.ErrorIs(t, f.app.CancelRenderJob(ctx, job.JobID), errno.ErrInvalidJobStatus)

	resumed, err := f.app.ResumeRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusQueued), resumed.Status)
	assert.Equal(t, 2, f.queue.Size())

	// 排队中的任务不可resume
	_, err = f.app.ResumeRenderJob(ctx, job.JobID)
	assert.ErrorIs(t, err, errno.ErrJobNotResumable)
}

func TestGetRenderJobNotFound(t *testing.T) {
	f := newAppFixture()
	_, err := f.app.GetRenderJob(context.Background(), "missing")
	assert.ErrorIs(t, err, errno.ErrRenderJobNotFound)
}

func TestRunRenderJobSuccess(t *testing.T) {
	f := newAppFixture()
	f.exec.emitPct = 42
	ctx := context.Background()

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))

	got, err := f.app.GetRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusSucceeded), got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotEmpty(t, got.ResultArtifactID)
	require.NotEmpty(t, got.ResultAssetID)

	// 产物登记到媒体注册表，URI指向上传结果
	artifact, err := f.media.GetArtifact(ctx, got.ResultArtifactID)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, "https://cdn.example.com/renders/out-1.mp4", artifact.URI)
	assert.Equal(t, job.JobID, artifact.Metadata["job_id"])

	plan := f.exec.lastPlan()
	require.NotNil(t, plan)
	require.Len(t, plan.Inputs, 2)
	assert.Equal(t, "/media/a1.mp4", plan.Inputs[0].URI)
}

func TestRunRenderJobExecutorFailure(t *testing.T) {
	f := newAppFixture()
	f.exec.err = errors.New("transcoder exited with code 1")
	f.exec.emitPct = 37
	ctx := context.Background()

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	require.Error(t, f.app.RunRenderJob(ctx, job.JobID))

	got, err := f.app.GetRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusFailed), got.Status)
	assert.Contains(t, got.ErrorMessage, "transcoder exited")
	assert.Equal(t, 37, got.Progress)

	// 失败任务可恢复重跑
	f.exec.err = nil
	resumed, err := f.app.ResumeRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusQueued), resumed.Status)
	require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))
	got, err = f.app.GetRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusSucceeded), got.Status)
}

func TestRunRenderJobCancelledDuringExecution(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)

	// 执行中途取消：任务保持cancelled，不覆盖为failed
	f.exec.err = errors.New("killed")
	f.exec.hook = func(hookCtx context.Context) {
		_ = f.app.CancelRenderJob(hookCtx, job.JobID)
	}
	require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))

	got, err := f.app.GetRenderJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusCancelled), got.Status)
}

func TestRunRenderJobSkipsNonQueued(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	job, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	require.NoError(t, f.app.CancelRenderJob(ctx, job.JobID))

	require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))
	assert.Equal(t, 0, f.exec.callCount())
}

func TestPlanSegments(t *testing.T) {
	f := newAppFixture()
	req := &cqe.CreateSegmentJobsReq{CreateRenderJobReq: *createReq()}

	segments, err := f.app.PlanSegments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, int64(0), segments[0].StartMs)
	assert.Equal(t, int64(10000), segments[0].EndMs)
	assert.Equal(t, int64(0), segments[0].OverlapMs)

	assert.Equal(t, 1, segments[1].Index)
	assert.Equal(t, int64(10000), segments[1].StartMs)
	assert.Equal(t, int64(20000), segments[1].EndMs)
	assert.Equal(t, int64(500), segments[1].OverlapMs)

	assert.NotEqual(t, segments[0].CacheKey, segments[1].CacheKey)
}

func TestPlanSegmentsDurationOverride(t *testing.T) {
	f := newAppFixture()
	req := &cqe.CreateSegmentJobsReq{CreateRenderJobReq: *createReq(), SegmentDurationMs: 15000}

	segments, err := f.app.PlanSegments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, int64(15000), segments[0].EndMs)
	assert.Equal(t, int64(15000), segments[1].StartMs)
	assert.Equal(t, int64(20000), segments[1].EndMs)
}

func TestCreateSegmentJobs(t *testing.T) {
	f := newAppFixture()
	req := &cqe.CreateSegmentJobsReq{CreateRenderJobReq: *createReq()}

	jobs, err := f.app.CreateSegmentJobs(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 2, f.queue.Size())

	for i, job := range jobs {
		assert.Equal(t, string(vo.JobTypeSegment), job.JobType)
		assert.Equal(t, string(vo.JobStatusQueued), job.Status)
		require.NotNil(t, job.SegmentIndex)
		assert.Equal(t, i, *job.SegmentIndex)
	}
	assert.Equal(t, int64(0), jobs[0].OverlapMs)
	assert.Equal(t, int64(500), jobs[1].OverlapMs)
}

func TestStitchSegments(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	segJobs, err := f.app.CreateSegmentJobs(ctx, &cqe.CreateSegmentJobsReq{CreateRenderJobReq: *createReq()})
	require.NoError(t, err)
	require.Len(t, segJobs, 2)
	for _, job := range segJobs {
		require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))
	}

	// 输入顺序无关：倒序提交
	stitch, err := f.app.StitchSegments(ctx, &cqe.StitchSegmentsReq{
		TenantID:      "t1",
		Env:           "dev",
		ProjectID:     "p1",
		SegmentJobIDs: []string{segJobs[1].JobID, segJobs[0].JobID},
	})
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobTypeFull), stitch.JobType)
	assert.Equal(t, string(vo.JobStatusQueued), stitch.Status)

	// 预编译快照：成对concat，非首段掐除500ms重叠
	require.NotEmpty(t, stitch.Plan)
	snapshot := string(stitch.Plan)
	assert.Contains(t, snapshot, "concat=n=2:v=1:a=1")
	assert.Contains(t, snapshot, "trim=start=0.5,setpts=PTS-STARTPTS")
	assert.Contains(t, snapshot, "atrim=start=0.5,asetpts=PTS-STARTPTS")

	// worker路径执行预存快照，而不是重新编译
	require.NoError(t, f.app.RunRenderJob(ctx, stitch.JobID))
	got, err := f.app.GetRenderJob(ctx, stitch.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(vo.JobStatusSucceeded), got.Status)

	plan := f.exec.lastPlan()
	require.NotNil(t, plan)
	require.Len(t, plan.Inputs, 2)
	assert.Contains(t, plan.Inputs[0].URI, "renders/out-")
	assert.NotEqual(t, plan.Inputs[0].URI, plan.Inputs[1].URI)
	assert.Contains(t, plan.OutputArgs, "libx264")
}

func TestStitchSegmentsNormalizesAudio(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	segJobs, err := f.app.CreateSegmentJobs(ctx, &cqe.CreateSegmentJobsReq{CreateRenderJobReq: *createReq()})
	require.NoError(t, err)
	for _, job := range segJobs {
		require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))
	}

	stitch, err := f.app.StitchSegments(ctx, &cqe.StitchSegmentsReq{
		TenantID:       "t1",
		Env:            "dev",
		ProjectID:      "p1",
		SegmentJobIDs:  []string{segJobs[0].JobID, segJobs[1].JobID},
		NormalizeAudio: true,
	})
	require.NoError(t, err)

	// concat输出[acat]，响度归一化(配置默认-14 LUFS)接到[aout]
	snapshot := string(stitch.Plan)
	assert.Contains(t, snapshot, "concat=n=2:v=1:a=1[vout][acat]")
	assert.Contains(t, snapshot, "[acat]loudnorm=I=-14:TP=-1.5:LRA=11[aout]")
}

func TestStitchSegmentsRejectsInvalidSets(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	segJobs, err := f.app.CreateSegmentJobs(ctx, &cqe.CreateSegmentJobsReq{CreateRenderJobReq: *createReq()})
	require.NoError(t, err)

	stitchReq := func(ids ...string) *cqe.StitchSegmentsReq {
		return &cqe.StitchSegmentsReq{TenantID: "t1", Env: "dev", ProjectID: "p1", SegmentJobIDs: ids}
	}

	// 分段尚未完成
	_, err = f.app.StitchSegments(ctx, stitchReq(segJobs[0].JobID, segJobs[1].JobID))
	assert.ErrorIs(t, err, errno.ErrSegmentJobsRequired)

	for _, job := range segJobs {
		require.NoError(t, f.app.RunRenderJob(ctx, job.JobID))
	}

	// 序号缺口：只给后半段
	_, err = f.app.StitchSegments(ctx, stitchReq(segJobs[1].JobID))
	assert.ErrorIs(t, err, errno.ErrSegmentJobsRequired)

	// 混入非分段任务
	full, err := f.app.CreateRenderJob(ctx, createReq())
	require.NoError(t, err)
	_, err = f.app.StitchSegments(ctx, stitchReq(segJobs[0].JobID, full.JobID))
	assert.ErrorIs(t, err, errno.ErrSegmentJobsRequired)

	// 未知任务ID
	_, err = f.app.StitchSegments(ctx, stitchReq("missing"))
	assert.ErrorIs(t, err, errno.ErrRenderJobNotFound)

	_, err = f.app.StitchSegments(ctx, stitchReq())
	assert.ErrorIs(t, err, errno.ErrSegmentJobsRequired)
}

func int64Ptr(v int64) *int64 { return &v }
