package service

import (
	"context"
	"fmt"
	"strings"

	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/vo"
)

// 触发闪避的对白类角色与被衰减的背景类角色。
// 其余角色（含generic）在混音中原样保留。
var (
	duckingTriggerRoles = map[string]bool{"dialogue": true, "speech": true, "voice": true}
	duckingTargetRoles  = map[string]bool{"music": true, "background": true}
)

// 语音增强产物种类
const artifactKindVoiceEnhanced = "audio_voice_enhanced"

// timeSpan 时间线上的毫秒区间
type timeSpan struct {
	startMs, endMs int64
}

// buildAudioGraph 构建音频路径：每剪辑截取/延迟/音量/自动化/闪避，
// 轨内按转场交叉淡化折叠，再统一混音、掐头淡入淡出、响度归一化。
func (c *PlanCompiler) buildAudioGraph(
	ctx context.Context,
	state *compileState,
	streams []*clipStream,
	tracks []gateway.Track,
	transitionPlans []vo.TransitionPlan,
	seq gateway.Sequence,
) error {
	req := state.req
	wStartMs := state.effStartMs
	wEndMs := seq.DurationMs
	if req.HasWindow() {
		wEndMs = *req.EndMs
		if seq.DurationMs > 0 && wEndMs > seq.DurationMs {
			wEndMs = seq.DurationMs
		}
	}

	// 对白跨度先行收集，供背景轨闪避窗口计算
	dialogueSpans := make([]timeSpan, 0)
	for _, cs := range streams {
		if cs.track.Muted {
			continue
		}
		if duckingTriggerRoles[cs.track.AudioRole] {
			dialogueSpans = append(dialogueSpans, timeSpan{cs.clip.StartMs, cs.clip.EndMs()})
		}
	}

	transitionByPair := make(map[string]vo.TransitionPlan, len(transitionPlans))
	for _, tp := range transitionPlans {
		transitionByPair[tp.FromClipID+"|"+tp.ToClipID] = tp
	}

	type trackGroup struct {
		track  gateway.Track
		labels []string
		clips  []gateway.Clip
	}
	groups := make([]*trackGroup, 0)
	byTrack := make(map[string]*trackGroup)

	for _, cs := range streams {
		if cs.track.Muted {
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{
				ClipID: cs.clip.ID, Effect: "audio_muted", Detail: "track " + cs.track.ID,
			})
			continue
		}
		label, err := c.buildClipAudioChain(ctx, state, cs, dialogueSpans, wStartMs, wEndMs)
		if err != nil {
			return err
		}
		if label == "" {
			continue
		}
		g, ok := byTrack[cs.track.ID]
		if !ok {
			g = &trackGroup{track: cs.track}
			byTrack[cs.track.ID] = g
			groups = append(groups, g)
		}
		g.labels = append(g.labels, label)
		g.clips = append(g.clips, cs.clip)
	}
	if len(groups) == 0 {
		return nil
	}

	// 轨内折叠：同轨相邻剪辑有转场时交叉淡化
	mixInputs := make([]string, 0, len(groups))
	for _, g := range groups {
		cur := g.labels[0]
		for i := 1; i < len(g.labels); i++ {
			if tp, ok := transitionByPair[g.clips[i-1].ID+"|"+g.clips[i].ID]; ok {
				out := "[" + state.nextLabel("ax") + "]"
				state.plan.AudioFilters = append(state.plan.AudioFilters,
					fmt.Sprintf("%s%s%s%s", cur, g.labels[i], ACrossfadeExpr(tp.DurationSec), out))
				cur = out
			} else {
				mixInputs = append(mixInputs, cur)
				cur = g.labels[i]
			}
		}
		mixInputs = append(mixInputs, cur)
	}

	// 混音与收尾
	cur := mixInputs[0]
	if len(mixInputs) > 1 {
		out := "[" + state.nextLabel("amix") + "]"
		state.plan.AudioFilters = append(state.plan.AudioFilters,
			fmt.Sprintf("%s%s%s", strings.Join(mixInputs, ""), AMixExpr(len(mixInputs)), out))
		cur = out
	}

	totalSec := float64(wEndMs-wStartMs) / 1000.0
	tail := []string{AFadeInExpr()}
	if totalSec > 0.02 {
		tail = append(tail, AFadeOutExpr(totalSec-0.02))
	}
	if req.NormalizeAudio {
		lufs := c.targetLUFS
		if req.TargetLUFS != 0 {
			lufs = req.TargetLUFS
		}
		tail = append(tail, LoudnormExpr(lufs))
	}
	state.plan.AudioFilters = append(state.plan.AudioFilters,
		fmt.Sprintf("%s%s[aout]", cur, strings.Join(tail, ",")))
	return nil
}

// buildClipAudioChain 构建单剪辑音频链，返回流别名；无音频时返回空串
func (c *PlanCompiler) buildClipAudioChain(
	ctx context.Context,
	state *compileState,
	cs *clipStream,
	dialogueSpans []timeSpan,
	wStartMs, wEndMs int64,
) (string, error) {
	clip := cs.clip
	speed := clip.EffectiveSpeed()

	// 可见时间线跨度与窗口求交
	visStart := clip.StartMs
	if visStart < wStartMs {
		visStart = wStartMs
	}
	visEnd := clip.EndMs()
	if wEndMs > 0 && visEnd > wEndMs {
		visEnd = wEndMs
	}
	if visEnd <= visStart {
		return "", nil
	}

	// 时间线被窗口裁掉的头部换算回源内偏移（源速率=speed倍时间线速率）
	srcInMs := clip.InMs + int64(float64(visStart-clip.StartMs)*speed)
	srcOutMs := clip.InMs + int64(float64(visEnd-clip.StartMs)*speed)
	if srcOutMs > clip.OutMs {
		srcOutMs = clip.OutMs
	}
	if srcOutMs <= srcInMs {
		return "", nil
	}

	inputIdx := cs.inputIndex
	// 语音增强：对白类角色优先使用增强产物
	if state.req.VoiceEnhance && duckingTriggerRoles[cs.track.AudioRole] {
		if enhanced := c.findArtifact(ctx, state, clip.AssetID, artifactKindVoiceEnhanced); enhanced != nil {
			inputIdx = state.addInput(enhanced.URI, vo.InputKindAudio, clip.ID)
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{
				ClipID: clip.ID, Effect: "voice_enhance", Detail: enhanced.Kind,
			})
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: artifactKindVoiceEnhanced, AssetID: clip.AssetID, Found: true,
			})
		} else {
			state.plan.Meta.AddWarning(fmt.Sprintf("voice-enhanced audio unavailable for clip %s; using original track", clip.ID))
			state.plan.Meta.AddDependencyNotice(vo.DependencyNotice{
				Type: artifactKindVoiceEnhanced, AssetID: clip.AssetID, Found: false,
			})
		}
	}

	chain := []string{ATrimExpr(srcInMs, srcOutMs)}
	if delayMs := visStart - wStartMs; delayMs > 0 {
		chain = append(chain, ADelayExpr(delayMs))
	}
	if clip.Volume > 0 && clip.Volume != 1.0 {
		chain = append(chain, VolumeExpr(clip.Volume))
	}

	keyframes, err := c.timeline.ListAutomation(ctx, clip.ID, "volume")
	if err != nil {
		return "", err
	}
	if expr := AutomationVolumeExpr(keyframes); expr != "" {
		chain = append(chain, expr)
		state.plan.Meta.AddEffectDetail(vo.EffectDetail{
			ClipID: clip.ID, Effect: "volume_automation", Detail: fmt.Sprintf("%d keyframes", len(keyframes)),
		})
	}

	// 闪避：背景类角色在对白窗口内衰减
	if state.req.EnableDucking && duckingTargetRoles[cs.track.AudioRole] {
		windows := make([]TimeWindow, 0, len(dialogueSpans))
		for _, d := range dialogueSpans {
			if d.endMs <= clip.StartMs || d.startMs >= clip.EndMs() {
				continue
			}
			start := float64(d.startMs-wStartMs) / 1000.0
			if start < 0 {
				start = 0
			}
			windows = append(windows, TimeWindow{
				StartSec: start,
				EndSec:   float64(d.endMs-wStartMs) / 1000.0,
			})
		}
		if expr := DuckingExpr(duckAttenuationDB, windows); expr != "" {
			chain = append(chain, expr)
			state.plan.Meta.AddEffectDetail(vo.EffectDetail{
				ClipID: clip.ID, Effect: "ducking", Detail: fmt.Sprintf("%d windows", len(windows)),
			})
		}
	}

	label := "[" + state.nextLabel("a") + "]"
	state.plan.AudioFilters = append(state.plan.AudioFilters,
		fmt.Sprintf("[%d:a]%s%s", inputIdx, strings.Join(chain, ","), label))
	return label, nil
}
