package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/vo"
	"render-engine/pkg/errno"
	"render-engine/pkg/logger"
)

// 慢动作质量档位
const (
	SlowMoQualityHigh   = "high"
	SlowMoQualityMedium = "medium"
	SlowMoQualityFast   = "fast"
)

// 对白窗口内背景音轨的固定衰减量（dB）
const duckAttenuationDB = 12

// PlanCompiler 把渲染请求和时间线/媒体状态编译为转码器调用计划。
// 除只读的遮罩/代理查询外无副作用；同一输入总是产出相同的计划。
type PlanCompiler struct {
	timeline      gateway.TimelineGateway
	media         gateway.MediaGateway
	encoders      *EncoderResolver
	transitions   *TransitionPlanner
	outputDir     string
	slowMoQuality string
	targetLUFS    float64
}

// NewPlanCompiler 创建计划编译器
func NewPlanCompiler(
	timeline gateway.TimelineGateway,
	media gateway.MediaGateway,
	encoders *EncoderResolver,
	transitions *TransitionPlanner,
	outputDir, slowMoQuality string,
	targetLUFS float64,
) *PlanCompiler {
	if slowMoQuality == "" {
		slowMoQuality = SlowMoQualityHigh
	}
	if targetLUFS == 0 {
		targetLUFS = -14
	}
	return &PlanCompiler{
		timeline:      timeline,
		media:         media,
		encoders:      encoders,
		transitions:   transitions,
		outputDir:     outputDir,
		slowMoQuality: slowMoQuality,
		targetLUFS:    targetLUFS,
	}
}

// CacheKeyFor 解析项目修改时间并派生请求的缓存键
func (c *PlanCompiler) CacheKeyFor(ctx context.Context, req vo.RenderRequest) (string, error) {
	project, err := c.timeline.GetProject(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", errno.NewBizError(errno.ErrProjectNotFound, fmt.Errorf("project %s", req.ProjectID))
	}
	return req.CacheKey(project.UpdatedAt), nil
}

// SequenceDurationMs 返回项目首个序列的总时长（分段规划用）
func (c *PlanCompiler) SequenceDurationMs(ctx context.Context, projectID string) (int64, error) {
	sequences, err := c.timeline.ListSequencesForProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if len(sequences) == 0 {
		return 0, errno.NewBizError(errno.ErrSequenceNotFound, fmt.Errorf("project %s", projectID))
	}
	return sequences[0].DurationMs, nil
}

// ProjectUpdatedAt 返回项目最后修改时间
func (c *PlanCompiler) ProjectUpdatedAt(ctx context.Context, projectID string) (time.Time, error) {
	project, err := c.timeline.GetProject(ctx, projectID)
	if err != nil {
		return time.Time{}, err
	}
	if project == nil {
		return time.Time{}, errno.NewBizError(errno.ErrProjectNotFound, fmt.Errorf("project %s", projectID))
	}
	return project.UpdatedAt, nil
}

// clipStream 单个剪辑在图中的可寻址状态
type clipStream struct {
	clip        gateway.Clip
	track       gateway.Track
	inputIndex  int
	videoLabel  string
	placeholder bool
}

// compileState 一次编译的累积状态
type compileState struct {
	req     vo.RenderRequest
	profile vo.OutputProfile
	plan    *vo.RenderPlan

	// effStartMs 图的时间零点：窗口起点减去分段重叠，首段/无窗口为0
	effStartMs    int64
	labelSeq      int
	artifactCache map[string][]gateway.Artifact
}

func (s *compileState) nextLabel(prefix string) string {
	s.labelSeq++
	return fmt.Sprintf("%s%d", prefix, s.labelSeq)
}

// addInput 追加一个有序输入并返回其输入序号
func (s *compileState) addInput(uri string, kind vo.InputKind, clipID string) int {
	s.plan.Inputs = append(s.plan.Inputs, vo.PlanInput{URI: uri, Kind: kind, ClipID: clipID})
	return len(s.plan.Inputs) - 1
}

// Compile 编译渲染计划。失败语义见错误码：未知滤镜/转场类型、
// 非正转场时长、项目/序列缺失总是致命；源媒体缺失在dry-run下降级为警告。
func (c *PlanCompiler) Compile(ctx context.Context, req vo.RenderRequest) (*vo.RenderPlan, error) {
	profile, ok := vo.LookupProfile(req.Profile)
	if !ok {
		return nil, errno.NewBizError(errno.ErrUnknownProfile, fmt.Errorf("profile %q", req.Profile))
	}
	if req.HasWindow() && *req.EndMs <= *req.StartMs {
		return nil, errno.NewBizError(errno.ErrInvalidWindow, fmt.Errorf("window [%d,%d)", *req.StartMs, *req.EndMs))
	}

	project, err := c.timeline.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, errno.NewBizError(errno.ErrProjectNotFound, fmt.Errorf("project %s", req.ProjectID))
	}
	sequences, err := c.timeline.ListSequencesForProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(sequences) == 0 {
		return nil, errno.NewBizError(errno.ErrSequenceNotFound, fmt.Errorf("project %s", req.ProjectID))
	}
	seq := sequences[0]

	tracks, err := c.timeline.ListTracksForSequence(ctx, seq.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Order < tracks[j].Order })

	effStart := int64(0)
	if req.HasWindow() {
		effStart = *req.StartMs - req.OverlapMs
		if effStart < 0 {
			effStart = 0
		}
	}
	state := &compileState{
		req:           req,
		profile:       profile,
		plan:          &vo.RenderPlan{ProfileName: profile.Name},
		effStartMs:    effStart,
		artifactCache: make(map[string][]gateway.Artifact),
	}

	// 步骤1：收集窗口内的剪辑，按(时间线起点, 剪辑ID)排序
	videoStreams := make([]*clipStream, 0)
	audioStreams := make([]*clipStream, 0)
	allClips := make(map[string]gateway.Clip)

	for _, track := range tracks {
		clips, err := c.timeline.ListClipsForTrack(ctx, track.ID)
		if err != nil {
			return nil, err
		}
		clips = filterClipsToWindow(clips, req)
		sort.Slice(clips, func(i, j int) bool {
			if clips[i].StartMs != clips[j].StartMs {
				return clips[i].StartMs < clips[j].StartMs
			}
			return clips[i].ID < clips[j].ID
		})
		for _, clip := range clips {
			allClips[clip.ID] = clip
			cs := &clipStream{clip: clip, track: track}
			if track.Kind == "video" {
				videoStreams = append(videoStreams, cs)
			}
			if track.Kind == "audio" || (track.Kind == "video" && clip.HasAudio) {
				audioStreams = append(audioStreams, cs)
			}
		}
	}

	// 步骤2+3：解析来源并构建每剪辑视频链
	clipLabels := make(map[string]string, len(videoStreams))
	for _, cs := range videoStreams {
		if err := c.resolveClipInput(ctx, state, cs); err != nil {
			return nil, err
		}
		if err := c.buildClipVideoChain(ctx, state, cs, profile); err != nil {
			return nil, err
		}
		clipLabels[cs.clip.ID] = cs.videoLabel
	}
	// 音频轨剪辑的输入（视频剪辑复用同一输入）
	for _, cs := range audioStreams {
		if cs.track.Kind == "audio" {
			if err := c.resolveClipInput(ctx, state, cs); err != nil {
				return nil, err
			}
		}
	}

	// 步骤6（前置）：转场计划，视频侧插入图中，音频侧交给混音阶段
	transitions, err := c.timeline.ListTransitionsForSequence(ctx, seq.ID)
	if err != nil {
		return nil, err
	}
	transitionPlans, err := c.transitions.Plan(transitions, allClips, clipLabels)
	if err != nil {
		return nil, err
	}
	for _, tp := range transitionPlans {
		state.plan.Meta.AddEffectDetail(vo.EffectDetail{
			ClipID: tp.FromClipID,
			Effect: "transition",
			Detail: fmt.Sprintf("%s order=%d start=%.3fs", tp.Type, tp.Order, tp.StartSec),
		})
	}

	// 步骤4：轨内按转场/拼接折叠，轨间按升序成对合成
	videoOut, err := c.compositeVideo(state, videoStreams, transitionPlans)
	if err != nil {
		return nil, err
	}

	// 步骤5：轨级与序列级滤镜，最后是字幕烧录
	videoOut, err = c.appendStackFilters(ctx, state, tracks, seq.ID, videoOut)
	if err != nil {
		return nil, err
	}
	if req.BurnCaptions && videoOut != "" {
		videoOut = c.burnCaptions(ctx, state, videoStreams, videoOut)
	}
	if videoOut != "" && videoOut != "[vout]" {
		state.plan.VideoFilters = append(state.plan.VideoFilters,
			fmt.Sprintf("%snull[vout]", videoOut))
	}

	// 步骤7：音频路径
	if err := c.buildAudioGraph(ctx, state, audioStreams, tracks, transitionPlans, seq); err != nil {
		return nil, err
	}

	// 步骤8：输出参数
	encoder := c.encoders.Resolve(profile, req.ForceCPU)
	state.plan.Meta.Encoder = encoder
	state.plan.OutputArgs = buildOutputArgs(profile, encoder, req)
	state.plan.OutputPath = filepath.Join(c.outputDir, "renders",
		fmt.Sprintf("%s_%s.mp4", req.ProjectID, shortKey(req.CacheKey(project.UpdatedAt))))

	logger.Debugf("Render plan compiled project=%s inputs=%d video_filters=%d audio_filters=%d warnings=%d",
		req.ProjectID, len(state.plan.Inputs), len(state.plan.VideoFilters),
		len(state.plan.AudioFilters), len(state.plan.Meta.Warnings))

	return state.plan, nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// filterClipsToWindow 保留与扩展窗口[start-overlap, end+overlap]相交的剪辑
func filterClipsToWindow(clips []gateway.Clip, req vo.RenderRequest) []gateway.Clip {
	if !req.HasWindow() {
		return clips
	}
	lo := *req.StartMs - req.OverlapMs
	hi := *req.EndMs + req.OverlapMs
	kept := clips[:0]
	for _, clip := range clips {
		if clip.EndMs() > lo && clip.StartMs < hi {
			kept = append(kept, clip)
		}
	}
	return kept
}

// resolveClipInput 解析剪辑来源（或代理），登记为有序输入。
// 本地媒体缺失除dry-run外是致命错误；dry-run用占位输入顶位，
// 保证输入序号与滤镜引用的对齐。
func (c *PlanCompiler) resolveClipInput(ctx context.Context, state *compileState, cs *clipStream) error {
	asset, err := c.media.GetAsset(ctx, cs.clip.AssetID)
	if err != nil {
		return err
	}

	kind := vo.InputKindVideo
	if cs.track.Kind == "audio" {
		kind = vo.InputKindAudio
	}

	uri := ""
	if asset != nil {
		uri = asset.LocalPath
		if uri == "" {
			uri = asset.URI
		}
	}
	if uri == "" {
		if !state.req.DryRun {
			return errno.NewBizError(errno.ErrSourceMediaMissing,
				fmt.Errorf("clip %s asset %s", cs.clip.ID, cs.clip.AssetID))
		}
		cs.placeholder = true
		cs.inputIndex = state.addInput("placeholder://"+cs.clip.AssetID, kind, cs.clip.ID)
		state.plan.Meta.AddWarning(fmt.Sprintf(
			"source media missing for clip %s (asset %s); placeholder substituted for dry-run", cs.clip.ID, cs.clip.AssetID))
		return nil
	}

	// 代理替换：偏好最小/压缩最狠的可用代理
	if state.req.PreferProxies && kind == vo.InputKindVideo {
		if proxy := c.pickProxy(ctx, state, cs.clip.AssetID); proxy != nil {
			uri = proxy.URI
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{
				ClipID: cs.clip.ID,
				Effect: "proxy",
				Detail: proxy.Kind,
			})
		} else {
			state.plan.Meta.AddWarning(fmt.Sprintf("no proxy available for clip %s; using original media", cs.clip.ID))
		}
	}

	cs.inputIndex = state.addInput(uri, kind, cs.clip.ID)
	return nil
}

// pickProxy 确定性选择代理：video_proxy_360p优先于video_proxy
func (c *PlanCompiler) pickProxy(ctx context.Context, state *compileState, assetID string) *gateway.Artifact {
	artifacts := c.artifactsFor(ctx, state, assetID)
	for _, kind := range []string{gateway.ArtifactKindProxy360p, gateway.ArtifactKindProxy} {
		for i := range artifacts {
			if artifacts[i].Kind == kind {
				return &artifacts[i]
			}
		}
	}
	return nil
}

func (c *PlanCompiler) artifactsFor(ctx context.Context, state *compileState, assetID string) []gateway.Artifact {
	if cached, ok := state.artifactCache[assetID]; ok {
		return cached
	}
	artifacts, err := c.media.ListArtifactsForAsset(ctx, assetID)
	if err != nil {
		artifacts = nil
	}
	state.artifactCache[assetID] = artifacts
	return artifacts
}

func (c *PlanCompiler) findArtifact(ctx context.Context, state *compileState, assetID, kind string) *gateway.Artifact {
	for _, a := range c.artifactsFor(ctx, state, assetID) {
		if a.Kind == kind {
			out := a
			return &out
		}
	}
	return nil
}

// buildClipVideoChain 构建单个剪辑的视频滤镜链，固定顺序：
// 遮罩合成 → 防抖 → 速度 → 慢动作插帧 → 剪辑滤镜栈。
func (c *PlanCompiler) buildClipVideoChain(ctx context.Context, state *compileState, cs *clipStream, profile vo.OutputProfile) error {
	cur := fmt.Sprintf("[%d:v]", cs.inputIndex)
	chain := make([]string, 0, 4)

	flush := func() {
		if len(chain) == 0 {
			return
		}
		label := "[" + state.nextLabel("v") + "]"
		entry := cur
		for i, f := range chain {
			if i > 0 {
				entry += ","
			}
			entry += f
		}
		entry += label
		state.plan.VideoFilters = append(state.plan.VideoFilters, entry)
		cur = label
		chain = chain[:0]
	}

	// (a) 剪辑级遮罩
	if cs.clip.MaskAssetID != "" {
		maskAsset, err := c.media.GetAsset(ctx, cs.clip.MaskAssetID)
		if err != nil {
			return err
		}
		if maskAsset != nil && (maskAsset.LocalPath != "" || maskAsset.URI != "") {
			maskURI := maskAsset.LocalPath
			if maskURI == "" {
				maskURI = maskAsset.URI
			}
			maskIdx := state.addInput(maskURI, vo.InputKindMask, cs.clip.ID)
			label := "[" + state.nextLabel("v") + "]"
			state.plan.VideoFilters = append(state.plan.VideoFilters,
				fmt.Sprintf("%s[%d:v]alphamerge%s", cur, maskIdx, label))
			cur = label
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: gateway.ArtifactKindMask, AssetID: cs.clip.MaskAssetID, Found: true,
			})
		} else {
			state.plan.Meta.AddWarning(fmt.Sprintf("mask asset %s missing for clip %s", cs.clip.MaskAssetID, cs.clip.ID))
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: gateway.ArtifactKindMask, AssetID: cs.clip.MaskAssetID, Found: false,
			})
		}
	}

	// (b) 防抖：依赖预计算的变换产物，缺失时跳过并警告
	if cs.clip.Stabilize {
		if transform := c.findArtifact(ctx, state, cs.clip.AssetID, gateway.ArtifactKindStabTransform); transform != nil {
			chain = append(chain, VidstabExpr(transform.URI))
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: gateway.ArtifactKindStabTransform, AssetID: cs.clip.AssetID, Found: true,
			})
		} else {
			state.plan.Meta.AddWarning(fmt.Sprintf("stabilisation transform missing for clip %s; skipped", cs.clip.ID))
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: gateway.ArtifactKindStabTransform, AssetID: cs.clip.AssetID, Found: false,
			})
		}
	}

	// (c) 速度变更
	speed := cs.clip.EffectiveSpeed()
	if speed != 1.0 {
		chain = append(chain, SetptsExpr(speed))
	}

	// (d) 慢动作插帧：质量→模式查表
	if speed < 1.0 {
		if cs.clip.OpticalFlow && c.slowMoQuality != SlowMoQualityFast {
			chain = append(chain, MinterpolateExpr(profile.FPS))
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{
				ClipID: cs.clip.ID, Effect: "slow_motion", Detail: "minterpolate",
			})
		} else {
			chain = append(chain, TblendExpr())
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{
				ClipID: cs.clip.ID, Effect: "slow_motion", Detail: "tblend",
			})
			// 请求了高/中质量却落到混帧回退时提示；明确不用光流不算降级
			if !cs.clip.OpticalFlow && (c.slowMoQuality == SlowMoQualityHigh || c.slowMoQuality == SlowMoQualityMedium) {
				state.plan.Meta.AddWarning(fmt.Sprintf(
					"slow motion on clip %s fell back to frame blending (%s quality requested)", cs.clip.ID, c.slowMoQuality))
			}
		}
	}

	// 速度调整后流时间即时间线时间，窗口裁掉的头部在此掐除
	if state.effStartMs > 0 && cs.clip.StartMs < state.effStartMs {
		chain = append(chain, TrimHeadExpr(float64(state.effStartMs-cs.clip.StartMs)/1000.0))
	}

	// (e) 剪辑滤镜栈，有序展开
	specs, err := c.timeline.GetFilterStackForTarget(ctx, gateway.FilterTargetClip, cs.clip.ID)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		expr, err := VideoFilterExpr(spec)
		if err != nil {
			return err
		}
		mask := c.resolveFilterMask(ctx, state, cs.clip, spec)
		if mask == nil {
			if spec.Region != "" {
				state.plan.Meta.AddWarning(fmt.Sprintf(
					"region mask %q unavailable for clip %s; filter %s applied globally", spec.Region, cs.clip.ID, spec.Type))
				state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
					Type: gateway.ArtifactKindRegionSummary, AssetID: cs.clip.AssetID, Found: false,
				})
			}
			chain = append(chain, expr)
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{ClipID: cs.clip.ID, Effect: spec.Type, Detail: expr})
			continue
		}

		// 遮罩滤镜展开：split → 支路滤镜 → alphamerge → overlay
		flush()
		maskIdx := state.addInput(mask.URI, vo.InputKindFilterMask, cs.clip.ID)
		base := "[" + state.nextLabel("v") + "]"
		branch := "[" + state.nextLabel("v") + "]"
		filtered := "[" + state.nextLabel("v") + "]"
		merged := "[" + state.nextLabel("v") + "]"
		out := "[" + state.nextLabel("v") + "]"
		state.plan.VideoFilters = append(state.plan.VideoFilters,
			fmt.Sprintf("%ssplit=2%s%s", cur, base, branch),
			fmt.Sprintf("%s%s%s", branch, expr, filtered),
			fmt.Sprintf("%s[%d:v]alphamerge%s", filtered, maskIdx, merged),
			fmt.Sprintf("%s%soverlay%s", base, merged, out),
		)
		cur = out
		state.plan.Meta.AddEffectDetail(vo.EffectDetail{ClipID: cs.clip.ID, Effect: spec.Type, Detail: "masked:" + expr})
		state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
			Type: gateway.ArtifactKindMask, AssetID: cs.clip.AssetID, Found: true,
		})
	}

	flush()
	cs.videoLabel = cur
	return nil
}

// resolveFilterMask 解析滤镜的遮罩：显式遮罩优先，其次按语义区域自动解析
func (c *PlanCompiler) resolveFilterMask(ctx context.Context, state *compileState, clip gateway.Clip, spec gateway.FilterSpec) *gateway.Artifact {
	if spec.MaskAssetID != "" {
		for _, a := range c.artifactsFor(ctx, state, spec.MaskAssetID) {
			if a.Kind == gateway.ArtifactKindMask {
				out := a
				return &out
			}
		}
		// 显式遮罩可能直接是资产
		if asset, err := c.media.GetAsset(ctx, spec.MaskAssetID); err == nil && asset != nil && asset.URI != "" {
			return &gateway.Artifact{ID: asset.ID, AssetID: asset.ID, Kind: gateway.ArtifactKindMask, URI: asset.URI}
		}
		return nil
	}
	if spec.Region == "" {
		return nil
	}
	for _, a := range c.artifactsFor(ctx, state, clip.AssetID) {
		if a.Kind == gateway.ArtifactKindMask && a.Region == spec.Region {
			out := a
			return &out
		}
	}
	return nil
}

// compositeVideo 折叠轨内剪辑流并按轨道升序成对合成
func (c *PlanCompiler) compositeVideo(state *compileState, streams []*clipStream, transitionPlans []vo.TransitionPlan) (string, error) {
	if len(streams) == 0 {
		return "", nil
	}

	windowStartSec := float64(state.effStartMs) / 1000.0

	// 转场配对索引
	transitionByPair := make(map[string]vo.TransitionPlan, len(transitionPlans))
	for _, tp := range transitionPlans {
		transitionByPair[tp.FromClipID+"|"+tp.ToClipID] = tp
	}

	// 按轨道分组（streams已按轨道Order/时间有序）
	type trackGroup struct {
		track  gateway.Track
		labels []string
		clips  []gateway.Clip
	}
	groups := make([]*trackGroup, 0)
	byTrack := make(map[string]*trackGroup)
	for _, cs := range streams {
		g, ok := byTrack[cs.track.ID]
		if !ok {
			g = &trackGroup{track: cs.track}
			byTrack[cs.track.ID] = g
			groups = append(groups, g)
		}
		g.labels = append(g.labels, cs.videoLabel)
		g.clips = append(g.clips, cs.clip)
	}

	// 轨内折叠：相邻剪辑有转场时用xfade，否则首尾拼接
	trackLabels := make([]string, 0, len(groups))
	trackModes := make([]string, 0, len(groups))
	for _, g := range groups {
		cur := g.labels[0]
		for i := 1; i < len(g.labels); i++ {
			out := "[" + state.nextLabel("tv") + "]"
			if tp, ok := transitionByPair[g.clips[i-1].ID+"|"+g.clips[i].ID]; ok {
				offset := tp.StartSec - windowStartSec
				if offset < 0 {
					offset = 0
				}
				state.plan.VideoFilters = append(state.plan.VideoFilters,
					fmt.Sprintf("%s%s%s%s", cur, g.labels[i], XfadeExpr(tp.Type, tp.DurationSec, offset), out))
			} else {
				state.plan.VideoFilters = append(state.plan.VideoFilters,
					fmt.Sprintf("%s%sconcat=n=2:v=1:a=0%s", cur, g.labels[i], out))
			}
			cur = out
		}
		trackLabels = append(trackLabels, cur)
		mode := ""
		if len(g.clips) > 0 {
			mode = g.clips[0].BlendMode
		}
		trackModes = append(trackModes, mode)
	}

	// 轨间成对合成，上层轨道的混合模式决定滤镜
	cur := trackLabels[0]
	for i := 1; i < len(trackLabels); i++ {
		out := "[" + state.nextLabel("mix") + "]"
		state.plan.VideoFilters = append(state.plan.VideoFilters,
			fmt.Sprintf("%s%s%s%s", cur, trackLabels[i], BlendExpr(trackModes[i]), out))
		cur = out
	}
	return cur, nil
}

// appendStackFilters 把轨级和序列级滤镜栈追加到合成流之后
func (c *PlanCompiler) appendStackFilters(ctx context.Context, state *compileState, tracks []gateway.Track, sequenceID, cur string) (string, error) {
	if cur == "" {
		return cur, nil
	}
	exprs := make([]string, 0)
	for _, track := range tracks {
		if track.Kind != "video" {
			continue
		}
		specs, err := c.timeline.GetFilterStackForTarget(ctx, gateway.FilterTargetTrack, track.ID)
		if err != nil {
			return "", err
		}
		for _, spec := range specs {
			expr, err := VideoFilterExpr(spec)
			if err != nil {
				return "", err
			}
			exprs = append(exprs, expr)
		}
	}
	specs, err := c.timeline.GetFilterStackForTarget(ctx, gateway.FilterTargetSequence, sequenceID)
	if err != nil {
		return "", err
	}
	for _, spec := range specs {
		expr, err := VideoFilterExpr(spec)
		if err != nil {
			return "", err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 0 {
		return cur, nil
	}
	out := "[" + state.nextLabel("seq") + "]"
	entry := cur
	for i, e := range exprs {
		if i > 0 {
			entry += ","
		}
		entry += e
	}
	entry += out
	state.plan.VideoFilters = append(state.plan.VideoFilters, entry)
	return out, nil
}

// burnCaptions 查找字幕产物并烧录；缺失时记录依赖通知
func (c *PlanCompiler) burnCaptions(ctx context.Context, state *compileState, streams []*clipStream, cur string) string {
	for _, cs := range streams {
		if caption := c.findArtifact(ctx, state, cs.clip.AssetID, gateway.ArtifactKindCaptions); caption != nil {
			out := "[" + state.nextLabel("cap") + "]"
			state.plan.VideoFilters = append(state.plan.VideoFilters,
				fmt.Sprintf("%s%s%s", cur, SubtitlesExpr(caption.URI), out))
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: gateway.ArtifactKindCaptions, AssetID: cs.clip.AssetID, Found: true,
			})
			return out
		}
		state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
			Type: gateway.ArtifactKindCaptions, AssetID: cs.clip.AssetID, Found: false,
		})
	}
	state.plan.Meta.AddWarning("caption burn-in requested but no captions artifact found")
	return cur
}

// buildOutputArgs 从解析后的档位和编码器构建输出参数
func buildOutputArgs(profile vo.OutputProfile, encoder string, req vo.RenderRequest) []string {
	args := []string{
		"-c:v", encoder,
		"-b:v", profile.VideoBitrate,
		"-pix_fmt", profile.PixelFormat,
		"-r", strconv.Itoa(profile.FPS),
		"-s", profile.Resolution(),
		"-c:a", profile.AudioCodec,
		"-b:a", profile.AudioBitrate,
	}
	if profile.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(profile.Threads))
	}
	// 滤镜图的输出已从窗口起点（含分段重叠前导）开始，-t限定总长即可
	if req.HasWindow() {
		effStart := *req.StartMs - req.OverlapMs
		if effStart < 0 {
			effStart = 0
		}
		args = append(args, "-t", msToSeconds(*req.EndMs-effStart))
	}
	return args
}
