package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"render-engine/ddd/application/cqe"
	"render-engine/ddd/application/dto"
	"render-engine/ddd/domain/entity"
	"render-engine/ddd/domain/service"
	"render-engine/ddd/domain/vo"
	"render-engine/pkg/errno"
	"render-engine/pkg/logger"
)

// PlanSegments 把序列切成窗口[ i*dur, min((i+1)*dur, total) )。
// 首段无重叠，后续段带配置的前导重叠，拼接时掐除。
func (a *renderAppImpl) PlanSegments(ctx context.Context, req *cqe.CreateSegmentJobsReq) ([]dto.RenderSegmentDto, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rr := req.ToRenderRequest(a.cfg.Render.DefaultProfile)
	segments, err := a.planSegments(ctx, rr, req.SegmentDurationMs)
	if err != nil {
		return nil, err
	}
	return dto.NewRenderSegmentDtos(segments), nil
}

func (a *renderAppImpl) planSegments(ctx context.Context, rr vo.RenderRequest, durationOverrideMs int64) ([]vo.RenderSegment, error) {
	totalMs, err := a.compiler.SequenceDurationMs(ctx, rr.ProjectID)
	if err != nil {
		return nil, err
	}
	if totalMs <= 0 {
		return nil, errno.NewBizError(errno.ErrInvalidWindow, fmt.Errorf("sequence duration %dms", totalMs))
	}

	durMs := durationOverrideMs
	if durMs <= 0 {
		durMs = a.cfg.Render.SegmentDurationMs
	}
	if durMs <= 0 {
		durMs = 60_000
	}
	overlapMs := a.cfg.Render.SegmentOverlapMs

	updatedAt, err := a.compiler.ProjectUpdatedAt(ctx, rr.ProjectID)
	if err != nil {
		return nil, err
	}

	count := int((totalMs + durMs - 1) / durMs)
	segments := make([]vo.RenderSegment, 0, count)
	for i := 0; i < count; i++ {
		startMs := int64(i) * durMs
		endMs := startMs + durMs
		if endMs > totalMs {
			endMs = totalMs
		}
		segOverlap := overlapMs
		if i == 0 {
			segOverlap = 0
		}
		segReq := rr.WithWindow(startMs, endMs, segOverlap, i)
		segments = append(segments, vo.RenderSegment{
			Index:     i,
			StartMs:   startMs,
			EndMs:     endMs,
			OverlapMs: segOverlap,
			CacheKey:  segReq.CacheKey(updatedAt),
		})
	}
	return segments, nil
}

// CreateSegmentJobs 为每个分段窗口走统一创建路径（锁、在途复用、背压）
func (a *renderAppImpl) CreateSegmentJobs(ctx context.Context, req *cqe.CreateSegmentJobsReq) ([]*dto.RenderJobDto, error) {
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

	segments, err := a.planSegments(ctx, rr, req.SegmentDurationMs)
	if err != nil {
		return nil, err
	}

	jobs := make([]*dto.RenderJobDto, 0, len(segments))
	for i := range segments {
		seg := segments[i]
		segReq := rr.WithWindow(seg.StartMs, seg.EndMs, seg.OverlapMs, seg.Index)
		job, err := a.createJob(ctx, segReq, vo.JobTypeSegment, &seg)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	logger.Infof("Segment jobs created project=%s count=%d", rr.ProjectID, len(jobs))
	return jobs, nil
}

// StitchSegments 校验分段集合，预编译拼接计划并作为full任务排队执行。
// 输入顺序无关：分段按序号重新排序。
func (a *renderAppImpl) StitchSegments(ctx context.Context, req *cqe.StitchSegmentsReq) (*dto.RenderJobDto, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	segJobs := make([]*entity.VideoRenderJob, 0, len(req.SegmentJobIDs))
	for _, id := range req.SegmentJobIDs {
		job, err := a.mustGetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.JobType() != vo.JobTypeSegment ||
			job.Status() != vo.JobStatusSucceeded ||
			job.ResultArtifactID() == "" ||
			job.SegmentIndex() == nil {
			return nil, errno.NewBizError(errno.ErrSegmentJobsRequired,
				fmt.Errorf("job %s type=%s status=%s", job.ID(), job.JobType(), job.Status()))
		}
		if job.TenantID() != req.TenantID || job.ProjectID() != req.ProjectID {
			return nil, errno.NewBizError(errno.ErrSegmentJobsRequired,
				fmt.Errorf("job %s belongs to another render", job.ID()))
		}
		segJobs = append(segJobs, job)
	}
	sort.Slice(segJobs, func(i, j int) bool {
		return *segJobs[i].SegmentIndex() < *segJobs[j].SegmentIndex()
	})
	for i, job := range segJobs {
		if *job.SegmentIndex() != i {
			return nil, errno.NewBizError(errno.ErrSegmentJobsRequired,
				fmt.Errorf("segment index gap at %d", i))
		}
	}

	plan, err := a.buildStitchPlan(ctx, segJobs, req)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(plan)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrInternalServer, err)
	}

	profile := req.Profile
	if profile == "" {
		profile = segJobs[0].Profile()
	}
	rr := vo.RenderRequest{
		TenantID:  req.TenantID,
		Env:       req.Env,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Profile:   profile,
	}
	requestJSON, err := json.Marshal(rr)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrInternalServer, err)
	}

	cacheKey, err := a.compiler.CacheKeyFor(ctx, rr)
	if err != nil {
		return nil, err
	}
	job := entity.NewVideoRenderJob(req.TenantID, req.Env, req.UserID, req.ProjectID, profile, vo.JobTypeFull, cacheKey, string(requestJSON))
	job.PinPlanSnapshot(string(snapshot))
	if err := a.jobRepo.Create(ctx, job); err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err)
	}
	if err := a.jobQueue.Enqueue(ctx, job.ID()); err != nil {
		logger.Errorf("任务入队失败 job_id=%s error=%v", job.ID(), err)
		job.Cancel()
		_ = a.jobRepo.Update(ctx, job)
		return nil, errno.ErrQueueFull
	}
	logger.Infof("Stitch job created job_id=%s segments=%d", job.ID(), len(segJobs))
	return dto.NewRenderJobDto(job), nil
}

// buildStitchPlan 把分段产物串成concat图：非首段先掐掉前导重叠
func (a *renderAppImpl) buildStitchPlan(ctx context.Context, segJobs []*entity.VideoRenderJob, req *cqe.StitchSegmentsReq) (*vo.RenderPlan, error) {
	profileName := req.Profile
	if profileName == "" {
		profileName = segJobs[0].Profile()
	}
	profile, ok := vo.LookupProfile(profileName)
	if !ok {
		return nil, errno.NewBizError(errno.ErrUnknownProfile, fmt.Errorf("profile %q", profileName))
	}

	plan := &vo.RenderPlan{ProfileName: profile.Name}
	concatIn := make([]string, 0, len(segJobs)*2)
	for i, job := range segJobs {
		artifact, err := a.media.GetArtifact(ctx, job.ResultArtifactID())
		if err != nil {
			return nil, err
		}
		if artifact == nil || artifact.URI == "" {
			return nil, errno.NewBizError(errno.ErrArtifactNotFound,
				fmt.Errorf("segment job %s artifact %s", job.ID(), job.ResultArtifactID()))
		}
		idx := len(plan.Inputs)
		plan.Inputs = append(plan.Inputs, vo.PlanInput{URI: artifact.URI, Kind: vo.InputKindVideo, ClipID: job.ID()})

		vLabel := fmt.Sprintf("[sv%d]", i)
		aLabel := fmt.Sprintf("[sa%d]", i)
		if overlap := job.OverlapMs(); overlap > 0 {
			headSec := float64(overlap) / 1000.0
			plan.VideoFilters = append(plan.VideoFilters,
				fmt.Sprintf("[%d:v]%s%s", idx, service.TrimHeadExpr(headSec), vLabel))
			plan.AudioFilters = append(plan.AudioFilters,
				fmt.Sprintf("[%d:a]%s%s", idx, service.ATrimHeadExpr(headSec), aLabel))
		} else {
			plan.VideoFilters = append(plan.VideoFilters,
				fmt.Sprintf("[%d:v]null%s", idx, vLabel))
			plan.AudioFilters = append(plan.AudioFilters,
				fmt.Sprintf("[%d:a]anull%s", idx, aLabel))
		}
		concatIn = append(concatIn, vLabel, aLabel)
	}

	// 可选的成片响度归一化挂在concat之后
	audioOut := "[aout]"
	if req.NormalizeAudio {
		audioOut = "[acat]"
		lufs := req.TargetLUFS
		if lufs == 0 {
			lufs = a.cfg.Render.TargetLUFS
		}
		plan.AudioFilters = append(plan.AudioFilters,
			fmt.Sprintf("[acat]%s[aout]", service.LoudnormExpr(lufs)))
	}
	plan.VideoFilters = append(plan.VideoFilters,
		fmt.Sprintf("%s%s[vout]%s", strings.Join(concatIn, ""), service.ConcatExpr(len(segJobs)), audioOut))

	plan.Meta.Encoder = profile.VideoCodec
	plan.OutputArgs = []string{
		"-c:v", profile.VideoCodec,
		"-b:v", profile.VideoBitrate,
		"-pix_fmt", profile.PixelFormat,
		"-r", fmt.Sprintf("%d", profile.FPS),
		"-s", profile.Resolution(),
		"-c:a", profile.AudioCodec,
		"-b:a", profile.AudioBitrate,
	}
	plan.OutputPath = filepath.Join(a.cfg.Render.FFmpeg.TempDir, "renders",
		fmt.Sprintf("%s_stitched_%s.mp4", req.ProjectID, segJobs[0].RenderCacheKey()[:8]))
	return plan, nil
}
