package vo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RenderRequest 渲染请求，不可变输入
type RenderRequest struct {
	TenantID  string `json:"tenant_id"`
	Env       string `json:"env"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	Profile   string `json:"profile"`

	// 可选时间窗口（毫秒）
	StartMs   *int64 `json:"start_ms,omitempty"`
	EndMs     *int64 `json:"end_ms,omitempty"`
	OverlapMs int64  `json:"overlap_ms,omitempty"`

	// 分段渲染上下文
	SegmentIndex *int `json:"segment_index,omitempty"`

	// 音频处理开关
	NormalizeAudio bool    `json:"normalize_audio"`
	TargetLUFS     float64 `json:"target_lufs,omitempty"`
	EnableDucking  bool    `json:"enable_ducking"`
	VoiceEnhance   bool    `json:"voice_enhance"`

	PreferProxies bool `json:"prefer_proxies"`
	BurnCaptions  bool `json:"burn_captions"`
	ForceCPU      bool `json:"force_cpu"`
	DryRun        bool `json:"dry_run"`
}

// HasWindow 是否指定了时间窗口
func (r RenderRequest) HasWindow() bool {
	return r.StartMs != nil && r.EndMs != nil
}

// WindowStartMs 窗口起点，未指定时为0
func (r RenderRequest) WindowStartMs() int64 {
	if r.StartMs != nil {
		return *r.StartMs
	}
	return 0
}

// WindowEndMs 窗口终点，未指定时为-1（无界）
func (r RenderRequest) WindowEndMs() int64 {
	if r.EndMs != nil {
		return *r.EndMs
	}
	return -1
}

// CacheKey 派生内容寻址缓存键。键是(项目, 档位, 归一化参数, 项目最后修改时间,
// 时间窗口)的纯函数：项目内容一旦变更，更新时间前移即令全部旧键失效。
func (r RenderRequest) CacheKey(projectUpdatedAt time.Time) string {
	window := "full"
	if r.HasWindow() {
		window = fmt.Sprintf("%d-%d", *r.StartMs, *r.EndMs)
	}
	payload := fmt.Sprintf("%s|%s|norm=%t|lufs=%.1f|mod=%d|win=%s",
		r.ProjectID,
		r.Profile,
		r.NormalizeAudio,
		r.TargetLUFS,
		projectUpdatedAt.UnixNano(),
		window,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// WithWindow 返回带指定窗口的请求副本
func (r RenderRequest) WithWindow(startMs, endMs, overlapMs int64, segmentIndex int) RenderRequest {
	out := r
	out.StartMs = &startMs
	out.EndMs = &endMs
	out.OverlapMs = overlapMs
	out.SegmentIndex = &segmentIndex
	return out
}
