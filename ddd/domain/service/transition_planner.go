package service

import (
	"fmt"
	"sort"

	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/vo"
	"render-engine/pkg/errno"
)

// TransitionPlanner 把序列转场解析为有序的转场计划。
// 纯函数：不读写任何状态。
type TransitionPlanner struct{}

// NewTransitionPlanner 创建转场规划器
func NewTransitionPlanner() *TransitionPlanner {
	return &TransitionPlanner{}
}

// Plan 解析转场。labels把剪辑ID映射为滤镜图别名，由调用方分配。
//
// 时长收敛到相邻剪辑速度调整后长度的较小者；起点取
// max(to剪辑起点-时长, from剪辑起点)并夹进from剪辑跨度，端点剪辑缺失时记0。
// 结果按(起点, 转场ID)升序排序，order为连续的0..N-1。
func (p *TransitionPlanner) Plan(
	transitions []gateway.Transition,
	clips map[string]gateway.Clip,
	labels map[string]string,
) ([]vo.TransitionPlan, error) {
	plans := make([]vo.TransitionPlan, 0, len(transitions))

	for _, tr := range transitions {
		if tr.DurationMs <= 0 {
			return nil, errno.NewBizError(errno.ErrInvalidTransition,
				fmt.Errorf("transition %s duration %dms", tr.ID, tr.DurationMs))
		}
		xfade, ok := XfadeName(tr.Type)
		if !ok {
			return nil, errno.NewBizError(errno.ErrUnknownTransitionType,
				fmt.Errorf("transition %s type %q", tr.ID, tr.Type))
		}

		durationSec := float64(tr.DurationMs) / 1000.0
		fromClip, hasFrom := clips[tr.FromClipID]
		toClip, hasTo := clips[tr.ToClipID]

		if hasFrom {
			if l := float64(fromClip.TimelineDurationMs()) / 1000.0; l > 0 && l < durationSec {
				durationSec = l
			}
		}
		if hasTo {
			if l := float64(toClip.TimelineDurationMs()) / 1000.0; l > 0 && l < durationSec {
				durationSec = l
			}
		}

		startSec := 0.0
		if hasFrom && hasTo {
			fromStart := float64(fromClip.StartMs) / 1000.0
			fromEnd := float64(fromClip.EndMs()) / 1000.0
			toStart := float64(toClip.StartMs) / 1000.0

			startSec = toStart - durationSec
			if startSec < fromStart {
				startSec = fromStart
			}
			if startSec > fromEnd {
				startSec = fromEnd
			}
		}

		plans = append(plans, vo.TransitionPlan{
			TransitionID: tr.ID,
			Type:         xfade,
			FromClipID:   tr.FromClipID,
			ToClipID:     tr.ToClipID,
			DurationSec:  durationSec,
			StartSec:     startSec,
			FromLabel:    labels[tr.FromClipID],
			ToLabel:      labels[tr.ToClipID],
		})
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].StartSec != plans[j].StartSec {
			return plans[i].StartSec < plans[j].StartSec
		}
		return plans[i].TransitionID < plans[j].TransitionID
	})
	for i := range plans {
		plans[i].Order = i
	}

	return plans, nil
}
