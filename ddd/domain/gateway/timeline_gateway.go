package gateway

import (
	"context"
	"time"
)

// Project 时间线项目
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sequence 序列
type Sequence struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	DurationMs int64  `json:"duration_ms"`
	FPS        int    `json:"fps"`
}

// Track 轨道：序列内的有序剪辑通道
type Track struct {
	ID         string `json:"id"`
	SequenceID string `json:"sequence_id"`
	Kind       string `json:"kind"`  // video | audio
	Order      int    `json:"order"` // 合成顺序，升序叠加
	AudioRole  string `json:"audio_role,omitempty"`
	Muted      bool   `json:"muted"`
}

// Clip 剪辑：放置在轨道上的媒体引用
type Clip struct {
	ID      string `json:"id"`
	TrackID string `json:"track_id"`
	AssetID string `json:"asset_id"`
	StartMs int64  `json:"start_ms"` // 时间线位置
	InMs    int64  `json:"in_ms"`    // 源内起点
	OutMs   int64  `json:"out_ms"`   // 源内终点（不含）

	Speed         float64 `json:"speed,omitempty"` // 0表示1.0
	OpticalFlow   bool    `json:"optical_flow"`    // 慢动作是否选用光流插帧
	Volume        float64 `json:"volume,omitempty"`
	BlendMode     string  `json:"blend_mode,omitempty"` // normal | add | screen | multiply | overlay
	MaskAssetID   string  `json:"mask_asset_id,omitempty"`
	Stabilize     bool    `json:"stabilize"`
	HasAudio      bool    `json:"has_audio"`
}

// EffectiveSpeed 返回归一化后的速度因子
func (c Clip) EffectiveSpeed() float64 {
	if c.Speed <= 0 {
		return 1.0
	}
	return c.Speed
}

// SourceDurationMs 源内截取长度
func (c Clip) SourceDurationMs() int64 {
	if c.OutMs <= c.InMs {
		return 0
	}
	return c.OutMs - c.InMs
}

// TimelineDurationMs 速度调整后占用的时间线长度
func (c Clip) TimelineDurationMs() int64 {
	return int64(float64(c.SourceDurationMs()) / c.EffectiveSpeed())
}

// EndMs 时间线上的结束位置
func (c Clip) EndMs() int64 {
	return c.StartMs + c.TimelineDurationMs()
}

// Transition 相邻剪辑间的转场
type Transition struct {
	ID         string `json:"id"`
	SequenceID string `json:"sequence_id"`
	Type       string `json:"type"`
	FromClipID string `json:"from_clip_id"`
	ToClipID   string `json:"to_clip_id"`
	DurationMs int64  `json:"duration_ms"`
}

// FilterSpec 滤镜栈中的一个滤镜
type FilterSpec struct {
	Type        string             `json:"type"`
	Params      map[string]float64 `json:"params,omitempty"`
	MaskAssetID string             `json:"mask_asset_id,omitempty"`
	Region      string             `json:"region,omitempty"` // 区域滤镜的语义区域名
}

// FilterTarget 滤镜栈挂载目标的种类
type FilterTarget string

const (
	// FilterTargetClip 剪辑级
	FilterTargetClip FilterTarget = "clip"
	// FilterTargetTrack 轨道级
	FilterTargetTrack FilterTarget = "track"
	// FilterTargetSequence 序列级
	FilterTargetSequence FilterTarget = "sequence"
)

// AutomationKeyframe 自动化关键帧（目前仅音量）
type AutomationKeyframe struct {
	TargetID string  `json:"target_id"`
	Param    string  `json:"param"`
	AtMs     int64   `json:"at_ms"`
	Value    float64 `json:"value"`
}

// TimelineGateway 时间线协作方只读网关
type TimelineGateway interface {
	// GetProject 获取项目
	GetProject(ctx context.Context, projectID string) (*Project, error)

	// ListSequencesForProject 获取项目下的序列
	ListSequencesForProject(ctx context.Context, projectID string) ([]Sequence, error)

	// ListTracksForSequence 获取序列下的轨道
	ListTracksForSequence(ctx context.Context, sequenceID string) ([]Track, error)

	// ListClipsForTrack 获取轨道上的剪辑
	ListClipsForTrack(ctx context.Context, trackID string) ([]Clip, error)

	// ListTransitionsForSequence 获取序列内的转场
	ListTransitionsForSequence(ctx context.Context, sequenceID string) ([]Transition, error)

	// GetFilterStackForTarget 获取目标上的滤镜栈（有序）
	GetFilterStackForTarget(ctx context.Context, target FilterTarget, targetID string) ([]FilterSpec, error)

	// ListAutomation 获取目标参数的自动化关键帧
	ListAutomation(ctx context.Context, targetID, param string) ([]AutomationKeyframe, error)
}
