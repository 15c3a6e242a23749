package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"render-engine/ddd/domain/gateway"
	"render-engine/pkg/errno"
)

// 滤镜表达式库：把(滤镜类型, 参数)纯映射为转码器滤镜表达式字符串。
// 表达式语法是与转码器的二进制兼容边界，改动任何格式都会破坏既有产出。

// formatFloat 输出不带多余尾零的十进制（1500ms -> "1.5"）
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// msToSeconds 毫秒转秒的精确字符串形式
func msToSeconds(ms int64) string {
	return formatFloat(float64(ms) / 1000.0)
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

// VideoFilterExpr 展开单个视频滤镜。未知类型返回校验错误（致命）。
func VideoFilterExpr(spec gateway.FilterSpec) (string, error) {
	switch spec.Type {
	case "brightness":
		return fmt.Sprintf("eq=brightness=%s", formatFloat(paramOr(spec.Params, "value", 0))), nil
	case "contrast":
		return fmt.Sprintf("eq=contrast=%s", formatFloat(paramOr(spec.Params, "value", 1))), nil
	case "saturation":
		return fmt.Sprintf("eq=saturation=%s", formatFloat(paramOr(spec.Params, "value", 1))), nil
	case "gamma":
		return fmt.Sprintf("eq=gamma=%s", formatFloat(paramOr(spec.Params, "value", 1))), nil
	case "hue":
		return fmt.Sprintf("hue=h=%s", formatFloat(paramOr(spec.Params, "degrees", 0))), nil
	case "blur":
		return fmt.Sprintf("gblur=sigma=%s", formatFloat(paramOr(spec.Params, "sigma", 2))), nil
	case "sharpen":
		amount := paramOr(spec.Params, "amount", 1)
		return fmt.Sprintf("unsharp=5:5:%s:5:5:0", formatFloat(amount)), nil
	case "vignette":
		return "vignette", nil
	case "grayscale":
		return "hue=s=0", nil
	case "sepia":
		return "colorchannelmixer=.393:.769:.189:0:.349:.686:.168:0:.272:.534:.131", nil
	case "denoise":
		return fmt.Sprintf("hqdn3d=%s", formatFloat(paramOr(spec.Params, "strength", 4))), nil
	default:
		return "", errno.NewBizError(errno.ErrUnknownFilterType, fmt.Errorf("filter type %q", spec.Type))
	}
}

// xfadeCatalog 时间线转场类型到xfade转场名的目录
var xfadeCatalog = map[string]string{
	"crossfade":    "fade",
	"fade":         "fade",
	"fade_black":   "fadeblack",
	"fade_white":   "fadewhite",
	"dissolve":     "dissolve",
	"wipe_left":    "wipeleft",
	"wipe_right":   "wiperight",
	"wipe_up":      "wipeup",
	"wipe_down":    "wipedown",
	"slide_left":   "slideleft",
	"slide_right":  "slideright",
	"circle_open":  "circleopen",
	"circle_close": "circleclose",
}

// XfadeName 解析转场类型；未知类型不可恢复
func XfadeName(transitionType string) (string, bool) {
	name, ok := xfadeCatalog[transitionType]
	return name, ok
}

// XfadeExpr 视频侧转场表达式
func XfadeExpr(xfadeName string, durationSec, offsetSec float64) string {
	return fmt.Sprintf("xfade=transition=%s:duration=%s:offset=%s",
		xfadeName, formatFloat(durationSec), formatFloat(offsetSec))
}

// ACrossfadeExpr 音频侧转场表达式
func ACrossfadeExpr(durationSec float64) string {
	return fmt.Sprintf("acrossfade=d=%s", formatFloat(durationSec))
}

// SetptsExpr 速度变更（speed=0.5 -> setpts=PTS/0.5）
func SetptsExpr(speed float64) string {
	return fmt.Sprintf("setpts=PTS/%s", formatFloat(speed))
}

// MinterpolateExpr 光流慢动作插帧
func MinterpolateExpr(fps int) string {
	return fmt.Sprintf("minterpolate=fps=%d:mi_mode=mci:mc_mode=aobmc:vsbmc=1", fps)
}

// TblendExpr 慢动作的混帧回退
func TblendExpr() string {
	return "tblend=all_mode=average"
}

// VidstabExpr 防抖变换，transformPath为预计算的变换产物本地路径
func VidstabExpr(transformPath string) string {
	return fmt.Sprintf("vidstabtransform=input=%s:zoom=0:smoothing=10", transformPath)
}

// ScaleExpr 缩放到目标档位
func ScaleExpr(width, height int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height)
}

// BlendExpr 多流合成；normal或未知模式退回普通overlay
func BlendExpr(mode string) string {
	switch mode {
	case "add":
		return "blend=all_mode=addition"
	case "screen":
		return "blend=all_mode=screen"
	case "multiply":
		return "blend=all_mode=multiply"
	case "overlay":
		return "blend=all_mode=overlay"
	default:
		return "overlay"
	}
}

// SubtitlesExpr 字幕烧录
func SubtitlesExpr(captionPath string) string {
	escaped := strings.ReplaceAll(captionPath, `\`, `/`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	escaped = strings.ReplaceAll(escaped, ":", `\:`)
	return fmt.Sprintf("subtitles='%s'", escaped)
}

// ATrimExpr 音频截取，[start,end)（源内秒）
func ATrimExpr(startMs, endMs int64) string {
	return fmt.Sprintf("atrim=start=%s:end=%s,asetpts=PTS-STARTPTS", msToSeconds(startMs), msToSeconds(endMs))
}

// ADelayExpr 把音频流延迟到时间线位置（adelay按毫秒计）
func ADelayExpr(delayMs int64) string {
	return fmt.Sprintf("adelay=%d|%d", delayMs, delayMs)
}

// VolumeExpr 固定音量
func VolumeExpr(volume float64) string {
	return fmt.Sprintf("volume=%s", formatFloat(volume))
}

// AutomationVolumeExpr 把音量关键帧渲染为分段条件表达式。
// 关键帧按时间排序后逐段取最近一帧的值。
func AutomationVolumeExpr(keyframes []gateway.AutomationKeyframe) string {
	if len(keyframes) == 0 {
		return ""
	}
	sorted := make([]gateway.AutomationKeyframe, len(keyframes))
	copy(sorted, keyframes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AtMs < sorted[j].AtMs })

	// if(lt(t,k1),v0, if(lt(t,k2),v1, ... vN))
	expr := formatFloat(sorted[len(sorted)-1].Value)
	for i := len(sorted) - 1; i > 0; i-- {
		expr = fmt.Sprintf("if(lt(t,%s),%s,%s)",
			msToSeconds(sorted[i].AtMs), formatFloat(sorted[i-1].Value), expr)
	}
	return fmt.Sprintf("volume='%s':eval=frame", expr)
}

// TimeWindow 流内相对秒的使能窗口
type TimeWindow struct {
	StartSec float64
	EndSec   float64
}

// DuckingExpr 在对白窗口内衰减背景音轨。enable窗口是流内相对秒。
func DuckingExpr(depthDB float64, windows []TimeWindow) string {
	if len(windows) == 0 {
		return ""
	}
	terms := make([]string, 0, len(windows))
	for _, w := range windows {
		terms = append(terms, fmt.Sprintf("between(t,%s,%s)", formatFloat(w.StartSec), formatFloat(w.EndSec)))
	}
	return fmt.Sprintf("volume=dB=-%s:enable='%s'", formatFloat(depthDB), strings.Join(terms, "+"))
}

// AMixExpr 多路混音（两路及以上）
func AMixExpr(inputs int) string {
	return fmt.Sprintf("amix=inputs=%d:duration=longest:normalize=1", inputs)
}

// AFadeInExpr 固定的短淡入
func AFadeInExpr() string {
	return "afade=t=in:st=0:d=0.02"
}

// AFadeOutExpr 固定的短淡出，startSec为淡出起点
func AFadeOutExpr(startSec float64) string {
	return fmt.Sprintf("afade=t=out:st=%s:d=0.02", formatFloat(startSec))
}

// LoudnormExpr 响度归一化到目标LUFS
func LoudnormExpr(targetLUFS float64) string {
	return fmt.Sprintf("loudnorm=I=%s:TP=-1.5:LRA=11", formatFloat(targetLUFS))
}

// TrimHeadExpr 视频流掐头（拼接时去除重叠）
func TrimHeadExpr(startSec float64) string {
	return fmt.Sprintf("trim=start=%s,setpts=PTS-STARTPTS", formatFloat(startSec))
}

// ATrimHeadExpr 音频流掐头（拼接时去除重叠）
func ATrimHeadExpr(startSec float64) string {
	return fmt.Sprintf("atrim=start=%s,asetpts=PTS-STARTPTS", formatFloat(startSec))
}

// ConcatExpr 视音频成对拼接
func ConcatExpr(segments int) string {
	return fmt.Sprintf("concat=n=%d:v=1:a=1", segments)
}
