package cqe

import (
	"render-engine/ddd/domain/vo"
	"render-engine/pkg/errno"
)

// CreateRenderJobReq 创建渲染任务请求。租户/环境/用户来自请求上下文，
// 其余来自请求体。
type CreateRenderJobReq struct {
	TenantID string `json:"-"`
	Env      string `json:"-"`
	UserID   string `json:"-"`

	ProjectID string `json:"project_id" binding:"required"`
	Profile   string `json:"profile"`

	StartMs   *int64 `json:"start_ms"`
	EndMs     *int64 `json:"end_ms"`
	OverlapMs int64  `json:"overlap_ms"`

	NormalizeAudio bool    `json:"normalize_audio"`
	TargetLUFS     float64 `json:"target_lufs"`
	EnableDucking  bool    `json:"enable_ducking"`
	VoiceEnhance   bool    `json:"voice_enhance"`
	PreferProxies  bool    `json:"prefer_proxies"`
	BurnCaptions   bool    `json:"burn_captions"`
	ForceCPU       bool    `json:"force_cpu"`
	DryRun         bool    `json:"dry_run"`
}

func (req *CreateRenderJobReq) Validate() error {
	if req.TenantID == "" {
		return errno.ErrTenantRequired
	}
	if req.ProjectID == "" {
		return errno.ErrProjectRequired
	}
	if (req.StartMs == nil) != (req.EndMs == nil) {
		return errno.ErrInvalidWindow
	}
	if req.StartMs != nil && *req.EndMs <= *req.StartMs {
		return errno.ErrInvalidWindow
	}
	return nil
}

// ToRenderRequest 转换为领域请求，空档位回落到默认档位
func (req *CreateRenderJobReq) ToRenderRequest(defaultProfile string) vo.RenderRequest {
	profile := req.Profile
	if profile == "" {
		profile = defaultProfile
	}
	return vo.RenderRequest{
		TenantID:       req.TenantID,
		Env:            req.Env,
		UserID:         req.UserID,
		ProjectID:      req.ProjectID,
		Profile:        profile,
		StartMs:        req.StartMs,
		EndMs:          req.EndMs,
		OverlapMs:      req.OverlapMs,
		NormalizeAudio: req.NormalizeAudio,
		TargetLUFS:     req.TargetLUFS,
		EnableDucking:  req.EnableDucking,
		VoiceEnhance:   req.VoiceEnhance,
		PreferProxies:  req.PreferProxies,
		BurnCaptions:   req.BurnCaptions,
		ForceCPU:       req.ForceCPU,
		DryRun:         req.DryRun,
	}
}

// CreateSegmentJobsReq 分段渲染请求
type CreateSegmentJobsReq struct {
	CreateRenderJobReq

	// SegmentDurationMs 覆盖配置的分段时长（可选）
	SegmentDurationMs int64 `json:"segment_duration_ms"`
}

// StitchSegmentsReq 拼接已完成分段的请求
type StitchSegmentsReq struct {
	TenantID string `json:"-"`
	Env      string `json:"-"`
	UserID   string `json:"-"`

	ProjectID     string   `json:"project_id" binding:"required"`
	Profile       string   `json:"profile"`
	SegmentJobIDs []string `json:"segment_job_ids" binding:"required"`

	// NormalizeAudio 成片响度归一化；TargetLUFS为0时用配置默认值
	NormalizeAudio bool    `json:"normalize_audio"`
	TargetLUFS     float64 `json:"target_lufs"`
}

func (req *StitchSegmentsReq) Validate() error {
	if req.TenantID == "" {
		return errno.ErrTenantRequired
	}
	if req.ProjectID == "" {
		return errno.ErrProjectRequired
	}
	if len(req.SegmentJobIDs) == 0 {
		return errno.ErrSegmentJobsRequired
	}
	return nil
}

// ListRenderJobsReq 任务列表查询
type ListRenderJobsReq struct {
	TenantID  string `json:"-"`
	Env       string `json:"-"`
	ProjectID string `form:"project_id"`
	Status    string `form:"status"`
	JobType   string `form:"job_type"`
	Page      int    `form:"page"`
	Size      int    `form:"size"`
}

func (req *ListRenderJobsReq) Validate() error {
	if req.TenantID == "" {
		return errno.ErrTenantRequired
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 || req.Size > 200 {
		req.Size = 20
	}
	return nil
}
