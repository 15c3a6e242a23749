package entity

import (
	"time"

	"github.com/google/uuid"

	"render-engine/ddd/domain/vo"
)

// VideoRenderJob 渲染任务聚合根。状态只通过生命周期方法变更，
// 终态（succeeded/failed/cancelled）不可再修改（resume除外）。
type VideoRenderJob struct {
	id        string
	tenantID  string
	env       string
	userID    string
	projectID string
	profile   string
	jobType   vo.JobType
	status    vo.JobStatus
	progress  int

	renderCacheKey string
	requestJSON    string
	planSnapshot   string
	planPinned     bool

	resultAssetID    string
	resultArtifactID string
	errorMessage     string

	segmentIndex   *int
	segmentStartMs *int64
	segmentEndMs   *int64
	overlapMs      int64

	createdAt time.Time
	updatedAt time.Time
}

// NewVideoRenderJob 创建新的渲染任务（queued状态，自动生成ID）
func NewVideoRenderJob(tenantID, env, userID, projectID, profile string, jobType vo.JobType, cacheKey, requestJSON string) *VideoRenderJob {
	now := time.Now()
	return &VideoRenderJob{
		id:             uuid.NewString(),
		tenantID:       tenantID,
		env:            env,
		userID:         userID,
		projectID:      projectID,
		profile:        profile,
		jobType:        jobType,
		status:         vo.JobStatusQueued,
		renderCacheKey: cacheKey,
		requestJSON:    requestJSON,
		createdAt:      now,
		updatedAt:      now,
	}
}

// RestoreVideoRenderJob 从持久化数据还原任务实体
func RestoreVideoRenderJob(
	id, tenantID, env, userID, projectID, profile string,
	jobType vo.JobType, status vo.JobStatus, progress int,
	cacheKey, requestJSON, planSnapshot string, planPinned bool,
	resultAssetID, resultArtifactID, errorMessage string,
	segmentIndex *int, segmentStartMs, segmentEndMs *int64, overlapMs int64,
	createdAt, updatedAt time.Time,
) *VideoRenderJob {
	return &VideoRenderJob{
		id:               id,
		tenantID:         tenantID,
		env:              env,
		userID:           userID,
		projectID:        projectID,
		profile:          profile,
		jobType:          jobType,
		status:           status,
		progress:         progress,
		renderCacheKey:   cacheKey,
		requestJSON:      requestJSON,
		planSnapshot:     planSnapshot,
		planPinned:       planPinned,
		resultAssetID:    resultAssetID,
		resultArtifactID: resultArtifactID,
		errorMessage:     errorMessage,
		segmentIndex:     segmentIndex,
		segmentStartMs:   segmentStartMs,
		segmentEndMs:     segmentEndMs,
		overlapMs:        overlapMs,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

// ID 任务ID
func (j *VideoRenderJob) ID() string { return j.id }

// TenantID 租户ID
func (j *VideoRenderJob) TenantID() string { return j.tenantID }

// Env 环境
func (j *VideoRenderJob) Env() string { return j.env }

// UserID 用户ID
func (j *VideoRenderJob) UserID() string { return j.userID }

// ProjectID 项目ID
func (j *VideoRenderJob) ProjectID() string { return j.projectID }

// Profile 输出档位
func (j *VideoRenderJob) Profile() string { return j.profile }

// JobType 任务类型
func (j *VideoRenderJob) JobType() vo.JobType { return j.jobType }

// Status 当前状态
func (j *VideoRenderJob) Status() vo.JobStatus { return j.status }

// Progress 进度（0-100）
func (j *VideoRenderJob) Progress() int { return j.progress }

// RenderCacheKey 缓存键
func (j *VideoRenderJob) RenderCacheKey() string { return j.renderCacheKey }

// RequestJSON 序列化的原始请求
func (j *VideoRenderJob) RequestJSON() string { return j.requestJSON }

// PlanSnapshot 计划快照
func (j *VideoRenderJob) PlanSnapshot() string { return j.planSnapshot }

// PlanPinned 快照是否锁定为执行计划（拼接任务为true）
func (j *VideoRenderJob) PlanPinned() bool { return j.planPinned }

// ResultAssetID 结果资产ID
func (j *VideoRenderJob) ResultAssetID() string { return j.resultAssetID }

// ResultArtifactID 结果产物ID
func (j *VideoRenderJob) ResultArtifactID() string { return j.resultArtifactID }

// ErrorMessage 失败信息
func (j *VideoRenderJob) ErrorMessage() string { return j.errorMessage }

// SegmentIndex 分段序号
func (j *VideoRenderJob) SegmentIndex() *int { return j.segmentIndex }

// SegmentStartMs 分段起点
func (j *VideoRenderJob) SegmentStartMs() *int64 { return j.segmentStartMs }

// SegmentEndMs 分段终点
func (j *VideoRenderJob) SegmentEndMs() *int64 { return j.segmentEndMs }

// OverlapMs 分段重叠
func (j *VideoRenderJob) OverlapMs() int64 { return j.overlapMs }

// CreatedAt 创建时间
func (j *VideoRenderJob) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt 更新时间
func (j *VideoRenderJob) UpdatedAt() time.Time { return j.updatedAt }

// SetPlanSnapshot 记录提交时的dry-run校验快照；执行时仍会重新编译
func (j *VideoRenderJob) SetPlanSnapshot(snapshot string) {
	j.planSnapshot = snapshot
	j.touch()
}

// PinPlanSnapshot 记录锁定的执行计划快照（拼接任务：产物串接图
// 不依赖时间线当前状态，执行时按原样使用）
func (j *VideoRenderJob) PinPlanSnapshot(snapshot string) {
	j.planSnapshot = snapshot
	j.planPinned = true
	j.touch()
}

// SetSegment 标记分段上下文
func (j *VideoRenderJob) SetSegment(index int, startMs, endMs, overlapMs int64) {
	j.segmentIndex = &index
	j.segmentStartMs = &startMs
	j.segmentEndMs = &endMs
	j.overlapMs = overlapMs
	j.touch()
}

// SetProgress 更新进度
func (j *VideoRenderJob) SetProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.progress = progress
	j.touch()
}

// Start 进入running
func (j *VideoRenderJob) Start() bool {
	if !j.status.CanTransitionTo(vo.JobStatusRunning) {
		return false
	}
	j.status = vo.JobStatusRunning
	j.touch()
	return true
}

// Succeed 标记成功并记录结果
func (j *VideoRenderJob) Succeed(resultAssetID, resultArtifactID string) bool {
	if !j.status.CanTransitionTo(vo.JobStatusSucceeded) {
		return false
	}
	j.status = vo.JobStatusSucceeded
	j.progress = 100
	j.resultAssetID = resultAssetID
	j.resultArtifactID = resultArtifactID
	j.errorMessage = ""
	j.touch()
	return true
}

// MarkSucceededWithResults 直接以succeeded状态落库（缓存命中的廉价副本）
func (j *VideoRenderJob) MarkSucceededWithResults(resultAssetID, resultArtifactID string) {
	j.status = vo.JobStatusSucceeded
	j.progress = 100
	j.resultAssetID = resultAssetID
	j.resultArtifactID = resultArtifactID
	j.touch()
}

// Fail 标记失败并保留错误信息
func (j *VideoRenderJob) Fail(message string) bool {
	if !j.status.CanTransitionTo(vo.JobStatusFailed) {
		return false
	}
	j.status = vo.JobStatusFailed
	j.errorMessage = message
	j.touch()
	return true
}

// Cancel 取消任务；对不可取消状态是no-op
func (j *VideoRenderJob) Cancel() bool {
	if !j.status.CanTransitionTo(vo.JobStatusCancelled) {
		return false
	}
	j.status = vo.JobStatusCancelled
	j.touch()
	return true
}

// Resume 把failed/cancelled任务重新排队，进度清零
func (j *VideoRenderJob) Resume() bool {
	if !j.status.CanTransitionTo(vo.JobStatusQueued) {
		return false
	}
	j.status = vo.JobStatusQueued
	j.progress = 0
	j.errorMessage = ""
	j.touch()
	return true
}

func (j *VideoRenderJob) touch() {
	j.updatedAt = time.Now()
}
