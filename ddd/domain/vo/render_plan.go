package vo

// InputKind 计划输入的种类
type InputKind string

const (
	// InputKindVideo 视频/音视频源
	InputKindVideo InputKind = "video"
	// InputKindAudio 纯音频源
	InputKindAudio InputKind = "audio"
	// InputKindMask 剪辑级遮罩
	InputKindMask InputKind = "mask"
	// InputKindFilterMask 滤镜级区域遮罩
	InputKindFilterMask InputKind = "filter_mask"
)

// PlanInput 渲染计划中的一个有序输入
type PlanInput struct {
	URI    string    `json:"uri"`
	Kind   InputKind `json:"kind"`
	ClipID string    `json:"clip_id,omitempty"`
}

// DependencyNotice 记录某个效果依赖的辅助分析产物是否找到；非致命
type DependencyNotice struct {
	Type    string `json:"type"`
	AssetID string `json:"asset_id"`
	Found   bool   `json:"found"`
}

// EffectDetail 每个效果的展开明细，供调用方排查
type EffectDetail struct {
	ClipID string `json:"clip_id"`
	Effect string `json:"effect"`
	Detail string `json:"detail"`
}

// PlanMeta 计划的结构化附加信息。替代开放的meta字典：
// 固定字段 + Extra 做前向兼容扩展。
type PlanMeta struct {
	Encoder           string             `json:"encoder,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	DependencyNotices []DependencyNotice `json:"dependency_notices,omitempty"`
	EffectDetails     []EffectDetail     `json:"effect_details,omitempty"`
	Extra             map[string]string  `json:"extra,omitempty"`
}

// AddWarning 追加一条非致命警告
func (m *PlanMeta) AddWarning(w string) {
	m.Warnings = append(m.Warnings, w)
}

// AddDependencyNotice 追加依赖通知，按(type, asset)去重
func (m *PlanMeta) AddDependencyNotice(n DependencyNotice) {
	for _, existing := range m.DependencyNotices {
		if existing.Type == n.Type && existing.AssetID == n.AssetID {
			return
		}
	}
	m.DependencyNotices = append(m.DependencyNotices, n)
}

// AddEffectDetail 追加效果明细
func (m *PlanMeta) AddEffectDetail(d EffectDetail) {
	m.EffectDetails = append(m.EffectDetails, d)
}

// SetExtra 设置扩展字段
func (m *PlanMeta) SetExtra(key, value string) {
	if m.Extra == nil {
		m.Extra = make(map[string]string)
	}
	m.Extra[key] = value
}

// RenderPlan 编译后的转码器调用计划。构建后不再修改；
// 仅拼接阶段会基于既有产物构建新的计划。
type RenderPlan struct {
	Inputs       []PlanInput `json:"inputs"`
	VideoFilters []string    `json:"video_filters"`
	AudioFilters []string    `json:"audio_filters"`
	OutputArgs   []string    `json:"output_args"`
	OutputPath   string      `json:"output_path"`
	ProfileName  string      `json:"profile_name"`
	Meta         PlanMeta    `json:"meta"`
}

// FilterComplex 把视频和音频滤镜图拼成 -filter_complex 参数值
func (p RenderPlan) FilterComplex() string {
	graph := ""
	for i, f := range p.VideoFilters {
		if i > 0 {
			graph += ";"
		}
		graph += f
	}
	for _, f := range p.AudioFilters {
		if graph != "" {
			graph += ";"
		}
		graph += f
	}
	return graph
}

// TransitionPlan 解析后的转场：类型、相邻剪辑、时长、时间线起点和滤镜别名
type TransitionPlan struct {
	TransitionID string  `json:"transition_id"`
	Type         string  `json:"type"`
	FromClipID   string  `json:"from_clip_id"`
	ToClipID     string  `json:"to_clip_id"`
	DurationSec  float64 `json:"duration_sec"`
	StartSec     float64 `json:"start_sec"`
	FromLabel    string  `json:"from_label"`
	ToLabel      string  `json:"to_label"`
	Order        int     `json:"order"`
}

// RenderSegment 计划出的分段窗口；瞬态对象，用于创建分段任务
type RenderSegment struct {
	Index     int    `json:"index"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	OverlapMs int64  `json:"overlap_ms"`
	CacheKey  string `json:"cache_key"`
}
