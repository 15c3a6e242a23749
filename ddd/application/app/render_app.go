package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"render-engine/ddd/application/cqe"
	"render-engine/ddd/application/dto"
	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/port"
	"render-engine/ddd/domain/repo"
	"render-engine/ddd/domain/service"
	"render-engine/ddd/domain/vo"
	"render-engine/ddd/infrastructure/queue"
	"render-engine/pkg/config"
	"render-engine/pkg/errno"
	"render-engine/pkg/logger"
	"render-engine/pkg/redisclient"
)

// RenderApp 渲染任务编排器
type RenderApp interface {
	// CreateRenderJob 创建渲染任务（幂等：同缓存键在途任务直接复用）
	CreateRenderJob(ctx context.Context, req *cqe.CreateRenderJobReq) (*dto.RenderJobDto, error)
	// GetRenderJob 获取任务详情
	GetRenderJob(ctx context.Context, jobID string) (*dto.RenderJobDto, error)
	// GetRenderProgress 获取任务进度
	GetRenderProgress(ctx context.Context, jobID string) (*dto.RenderProgressDto, error)
	// ListRenderJobs 获取任务列表
	ListRenderJobs(ctx context.Context, req *cqe.ListRenderJobsReq) (*dto.RenderJobListDto, error)
	// CancelRenderJob 取消任务
	CancelRenderJob(ctx context.Context, jobID string) error
	// ResumeRenderJob 把failed/cancelled任务重新排队
	ResumeRenderJob(ctx context.Context, jobID string) (*dto.RenderJobDto, error)
	// RunRenderJob worker执行入口：编译计划、调用转码器、登记结果
	RunRenderJob(ctx context.Context, jobID string) error
	// PlanSegments 计算分段窗口（只读）
	PlanSegments(ctx context.Context, req *cqe.CreateSegmentJobsReq) ([]dto.RenderSegmentDto, error)
	// CreateSegmentJobs 为每个分段窗口创建任务
	CreateSegmentJobs(ctx context.Context, req *cqe.CreateSegmentJobsReq) ([]*dto.RenderJobDto, error)
	// StitchSegments 把已成功的分段拼接为成片任务
	StitchSegments(ctx context.Context, req *cqe.StitchSegmentsReq) (*dto.RenderJobDto, error)
}

type renderAppImpl struct {
	cfg      *config.Config
	jobRepo  repo.RenderJobRepository
	jobQueue queue.JobQueue
	compiler *service.PlanCompiler
	executor port.PlanExecutor
	media    gateway.MediaGateway
	sink     port.ProgressSink
	redis    *redisclient.Client
}

// NewRenderAppWith 创建编排器；redis为nil时跳过创建锁
func NewRenderAppWith(
	cfg *config.Config,
	jobRepo repo.RenderJobRepository,
	jobQueue queue.JobQueue,
	compiler *service.PlanCompiler,
	executor port.PlanExecutor,
	media gateway.MediaGateway,
	sink port.ProgressSink,
	redis *redisclient.Client,
) RenderApp {
	return &renderAppImpl{
		cfg:      cfg,
		jobRepo:  jobRepo,
		jobQueue: jobQueue,
		compiler: compiler,
		executor: executor,
		media:    media,
		sink:     sink,
		redis:    redis,
	}
}

func (a *renderAppImpl) CreateRenderJob(ctx context.Context, req *cqe.CreateRenderJobReq) (*dto.RenderJobDto, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rr := req.ToRenderRequest(a.cfg.Render.DefaultProfile)
	if a.cfg.Render.ForceCPU {
		rr.ForceCPU = true
	}
	if rr.NormalizeAudio && rr.TargetLUFS == 0 {
		rr.TargetLUFS = a.cfg.Render.TargetLUFS
	}
	return a.createJob(ctx, rr, vo.JobTypeFull, nil)
}

// createJob 统一的任务创建路径：创建锁 → 在途复用 → 成功副本 → 背压 → 落库入队
func (a *renderAppImpl) createJob(ctx context.Context, rr vo.RenderRequest, jobType vo.JobType, segment *vo.RenderSegment) (*dto.RenderJobDto, error) {
	cacheKey, err := a.compiler.CacheKeyFor(ctx, rr)
	if err != nil {
		return nil, err
	}

	// 同一(租户, 缓存键, 类型)的并发创建串行化
	if a.redis != nil {
		lockKey := fmt.Sprintf("render:create:%s:%s:%s", rr.TenantID, cacheKey, jobType)
		owner := uuid.NewString()
		ok, lockErr := a.redis.AcquireLock(ctx, lockKey, owner, a.cfg.Render.CreateLockTTL)
		if lockErr != nil {
			logger.Warnf("create lock unavailable, proceeding without it: %v", lockErr)
		} else if !ok {
			return nil, errno.ErrCreateLockHeld
		} else {
			defer func() {
				_ = a.redis.ReleaseLock(context.WithoutCancel(ctx), lockKey, owner)
			}()
		}
	}

	// 在途任务复用
	if existing, err := a.jobRepo.FindActiveByCacheKey(ctx, rr.TenantID, cacheKey, jobType); err == nil && existing != nil {
		return dto.NewRenderJobDto(existing), nil
	}

	requestJSON, err := json.Marshal(rr)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrInternalServer, err)
	}

	// 缓存命中：落一条指向同一产物的succeeded副本
	if !rr.DryRun {
		if done, err := a.jobRepo.FindSucceededByCacheKey(ctx, rr.TenantID, cacheKey, jobType); err == nil && done != nil && done.ResultArtifactID() != "" {
			job := entity.NewVideoRenderJob(rr.TenantID, rr.Env, rr.UserID, rr.ProjectID, rr.Profile, jobType, cacheKey, string(requestJSON))
			if segment != nil {
				job.SetSegment(segment.Index, segment.StartMs, segment.EndMs, segment.OverlapMs)
			}
			job.MarkSucceededWithResults(done.ResultAssetID(), done.ResultArtifactID())
			if err := a.jobRepo.Create(ctx, job); err != nil {
				return nil, errno.NewBizError(errno.ErrDatabase, err)
			}
			logger.Infof("Render cache hit tenant=%s cache_key=%s reused_job=%s", rr.TenantID, cacheKey, done.ID())
			return dto.NewRenderJobDto(job), nil
		}
	}

	// 背压
	if max := a.cfg.Render.MaxActiveJobs; max > 0 {
		active, err := a.jobRepo.CountActive(ctx, rr.TenantID, rr.Env)
		if err != nil {
			return nil, errno.NewBizError(errno.ErrDatabase, err)
		}
		if active >= int64(max) {
			return nil, errno.ErrTooManyActiveJobs
		}
	}

	job := entity.NewVideoRenderJob(rr.TenantID, rr.Env, rr.UserID, rr.ProjectID, rr.Profile, jobType, cacheKey, string(requestJSON))
	if segment != nil {
		job.SetSegment(segment.Index, segment.StartMs, segment.EndMs, segment.OverlapMs)
	}

	// 提交即校验：以dry-run容错编译一次（缺失素材降级为占位+警告，
	// 未知滤镜/转场等校验错误当场失败），快照随任务落库
	planReq := rr
	planReq.DryRun = true
	plan, err := a.compiler.Compile(ctx, planReq)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(plan)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrInternalServer, err)
	}
	job.SetPlanSnapshot(string(snapshot))

	// dry-run：返回计划快照，不排队执行
	if rr.DryRun {
		job.MarkSucceededWithResults("", "")
		if err := a.jobRepo.Create(ctx, job); err != nil {
			return nil, errno.NewBizError(errno.ErrDatabase, err)
		}
		return dto.NewRenderJobDto(job), nil
	}

	if err := a.jobRepo.Create(ctx, job); err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err)
	}
	if err := a.jobQueue.Enqueue(ctx, job.ID()); err != nil {
		// queued不能直接转failed，入队失败的任务按取消处理
		logger.Errorf("任务入队失败 job_id=%s error=%v", job.ID(), err)
		job.Cancel()
		_ = a.jobRepo.Update(ctx, job)
		return nil, errno.ErrQueueFull
	}
	return dto.NewRenderJobDto(job), nil
}

func (a *renderAppImpl) GetRenderJob(ctx context.Context, jobID string) (*dto.RenderJobDto, error) {
	job, err := a.mustGetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return dto.NewRenderJobDto(job), nil
}

func (a *renderAppImpl) GetRenderProgress(ctx context.Context, jobID string) (*dto.RenderProgressDto, error) {
	job, err := a.mustGetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &dto.RenderProgressDto{
		JobID:        job.ID(),
		Status:       string(job.Status()),
		Progress:     job.Progress(),
		ErrorMessage: job.ErrorMessage(),
	}, nil
}

func (a *renderAppImpl) ListRenderJobs(ctx context.Context, req *cqe.ListRenderJobsReq) (*dto.RenderJobListDto, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filter := repo.JobFilter{
		TenantID:  req.TenantID,
		Env:       req.Env,
		ProjectID: req.ProjectID,
		JobType:   vo.JobType(req.JobType),
		Limit:     req.Size,
		Offset:    (req.Page - 1) * req.Size,
	}
	if req.Status != "" {
		status := vo.JobStatus(req.Status)
		if !status.IsValid() {
			return nil, errno.ErrInvalidJobStatus
		}
		filter.Status = []vo.JobStatus{status}
	}
	jobs, err := a.jobRepo.List(ctx, filter)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err)
	}
	out := &dto.RenderJobListDto{Page: req.Page, Size: req.Size}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, dto.NewRenderJobDto(job))
	}
	return out, nil
}

func (a *renderAppImpl) CancelRenderJob(ctx context.Context, jobID string) error {
	job, err := a.mustGetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Cancel() {
		return errno.ErrInvalidJobStatus
	}
	if err := a.jobRepo.Update(ctx, job); err != nil {
		return errno.NewBizError(errno.ErrDatabase, err)
	}
	logger.Infof("Render job cancelled job_id=%s", jobID)
	return nil
}

func (a *renderAppImpl) ResumeRenderJob(ctx context.Context, jobID string) (*dto.RenderJobDto, error) {
	job, err := a.mustGetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Resume() {
		return nil, errno.ErrJobNotResumable
	}
	if err := a.jobRepo.Update(ctx, job); err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err)
	}
	if err := a.jobQueue.Enqueue(ctx, job.ID()); err != nil {
		logger.Errorf("任务入队失败 job_id=%s error=%v", job.ID(), err)
		job.Cancel()
		_ = a.jobRepo.Update(ctx, job)
		return nil, errno.ErrQueueFull
	}
	logger.Infof("Render job resumed job_id=%s", jobID)
	return dto.NewRenderJobDto(job), nil
}

// RunRenderJob worker消费入口。取消的任务跳过；失败落库错误信息。
func (a *renderAppImpl) RunRenderJob(ctx context.Context, jobID string) error {
	job, err := a.mustGetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status() != vo.JobStatusQueued {
		logger.Infof("Skipping render job in status %s job_id=%s", job.Status(), jobID)
		return nil
	}

	// 先进入running再解析/编译：失败才能按状态机落为failed
	if !job.Start() {
		return errno.ErrInvalidJobStatus
	}
	if err := a.jobRepo.Update(ctx, job); err != nil {
		return errno.NewBizError(errno.ErrDatabase, err)
	}

	var rr vo.RenderRequest
	if err := json.Unmarshal([]byte(job.RequestJSON()), &rr); err != nil {
		job.Fail(fmt.Sprintf("corrupt request payload: %v", err))
		_ = a.jobRepo.Update(ctx, job)
		return err
	}

	// 计划：拼接任务执行锁定快照；普通任务的提交期快照只做过校验
	// （可能含dry-run占位输入），这里按时间线当前状态重新编译
	var plan *vo.RenderPlan
	if snapshot := job.PlanSnapshot(); snapshot != "" && job.PlanPinned() {
		plan = &vo.RenderPlan{}
		if err := json.Unmarshal([]byte(snapshot), plan); err != nil {
			job.Fail(fmt.Sprintf("corrupt plan snapshot: %v", err))
			_ = a.jobRepo.Update(ctx, job)
			return err
		}
	} else {
		plan, err = a.compiler.Compile(ctx, rr)
		if err != nil {
			job.Fail(err.Error())
			_ = a.jobRepo.Update(ctx, job)
			return err
		}
	}

	durationSec, timeoutSecs := a.executionWindow(ctx, rr, job)

	lastSaved := -1
	progressCb := func(pct int) {
		if a.sink == nil || pct == lastSaved {
			return
		}
		lastSaved = pct
		_ = a.sink.SaveProgress(ctx, job.ID(), pct)
	}

	result, execErr := a.executor.Execute(ctx, plan, port.ExecuteOptions{
		ProgressCb:  progressCb,
		RequestID:   job.ID(),
		TimeoutSecs: timeoutSecs,
		DurationSec: durationSec,
	})
	if execErr != nil {
		// 执行期间被取消的任务保持cancelled，不覆盖为failed
		if fresh, err := a.jobRepo.Get(ctx, job.ID()); err == nil && fresh != nil && fresh.Status() == vo.JobStatusCancelled {
			logger.Infof("Render job cancelled during execution job_id=%s", job.ID())
			return nil
		}
		job.Fail(execErr.Error())
		_ = a.jobRepo.Update(ctx, job)
		return execErr
	}

	assetID, artifactID, regErr := a.registerResult(ctx, job, plan, result)
	if regErr != nil {
		job.Fail(fmt.Sprintf("register result: %v", regErr))
		_ = a.jobRepo.Update(ctx, job)
		return regErr
	}
	job.Succeed(assetID, artifactID)
	if err := a.jobRepo.Update(ctx, job); err != nil {
		return errno.NewBizError(errno.ErrDatabase, err)
	}
	logger.Infof("Render job succeeded job_id=%s artifact_id=%s", job.ID(), artifactID)
	return nil
}

// executionWindow 推导执行时长（进度换算）和超时
func (a *renderAppImpl) executionWindow(ctx context.Context, rr vo.RenderRequest, job *entity.VideoRenderJob) (float64, int) {
	profile, ok := vo.LookupProfile(rr.Profile)
	timeoutSecs := 0
	if ok {
		if job.JobType() == vo.JobTypeSegment {
			timeoutSecs = profile.SegmentTimeoutSec
		} else {
			timeoutSecs = profile.TimeoutSec
		}
	}

	if rr.HasWindow() {
		return float64(*rr.EndMs-*rr.StartMs) / 1000.0, timeoutSecs
	}
	if total, err := a.compiler.SequenceDurationMs(ctx, rr.ProjectID); err == nil && total > 0 {
		return float64(total) / 1000.0, timeoutSecs
	}
	return 0, timeoutSecs
}

// registerResult 在媒体注册表登记渲染产物
func (a *renderAppImpl) registerResult(ctx context.Context, job *entity.VideoRenderJob, plan *vo.RenderPlan, result port.ExecuteResult) (string, string, error) {
	if a.media == nil {
		return "", "", nil
	}
	uri := result.PublicURL
	if uri == "" {
		uri = result.ObjectKey
	}
	assetID, err := a.media.RegisterRemoteUpload(ctx, job.TenantID(), uri, "video")
	if err != nil {
		return "", "", err
	}
	metadata := map[string]string{
		"profile":    plan.ProfileName,
		"encoder":    plan.Meta.Encoder,
		"object_key": result.ObjectKey,
		"job_id":     job.ID(),
	}
	if idx := job.SegmentIndex(); idx != nil {
		metadata["segment_index"] = fmt.Sprintf("%d", *idx)
	}
	artifactID, err := a.media.RegisterArtifact(ctx, gateway.RegisterArtifactInput{
		AssetID:  assetID,
		Kind:     gateway.ArtifactKindRender,
		URI:      uri,
		Metadata: metadata,
	})
	if err != nil {
		return "", "", err
	}
	return assetID, artifactID, nil
}

func (a *renderAppImpl) mustGetJob(ctx context.Context, jobID string) (*entity.VideoRenderJob, error) {
	if jobID == "" {
		return nil, errno.ErrJobIDRequired
	}
	job, err := a.jobRepo.Get(ctx, jobID)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err)
	}
	if job == nil {
		return nil, errno.ErrRenderJobNotFound
	}
	return job, nil
}
