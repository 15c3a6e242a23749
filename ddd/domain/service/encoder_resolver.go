package service

import (
	"os/exec"
	"strings"
	"sync"

	"render-engine/ddd/domain/vo"
	"render-engine/pkg/logger"
)

// 探测关注的硬件编码器集合
var hardwareEncoders = []string{
	"h264_nvenc", "hevc_nvenc",
	"h264_qsv", "hevc_qsv",
	"h264_vaapi", "hevc_vaapi",
	"h264_videotoolbox", "hevc_videotoolbox",
}

// ProbeFunc 返回可用编码器集合；探测失败时返回错误
type ProbeFunc func() (map[string]bool, error)

// EncoderResolver 解析输出档位实际使用的编码器。
// 可用硬件编码器探测一次后进程级缓存，读多写少，
// 惰性刷新采用幂等覆盖，无需读锁之外的同步。
type EncoderResolver struct {
	probe ProbeFunc

	mu        sync.RWMutex
	available map[string]bool
	probed    bool
}

// NewEncoderResolver 创建编码器解析器，使用ffmpeg -encoders探测
func NewEncoderResolver(binaryPath string) *EncoderResolver {
	return &EncoderResolver{probe: ffmpegProbe(binaryPath)}
}

// NewEncoderResolverWithProbe 注入探测函数（测试用）
func NewEncoderResolverWithProbe(probe ProbeFunc) *EncoderResolver {
	return &EncoderResolver{probe: probe}
}

func ffmpegProbe(binaryPath string) ProbeFunc {
	if strings.TrimSpace(binaryPath) == "" {
		binaryPath = "ffmpeg"
	}
	return func() (map[string]bool, error) {
		cmd := exec.Command(binaryPath, "-hide_banner", "-encoders")
		out, err := cmd.Output()
		if err != nil {
			return nil, err
		}
		listing := strings.ToLower(string(out))
		available := make(map[string]bool)
		for _, enc := range hardwareEncoders {
			if strings.Contains(listing, enc) {
				available[enc] = true
			}
		}
		return available, nil
	}
}

// Resolve 按顺序解析编码器：强制CPU覆盖 → 档位偏好列表中第一个可用的
// 硬件编码器 → 档位软件编码器。探测失败退化为纯软件。
func (r *EncoderResolver) Resolve(profile vo.OutputProfile, forceCPU bool) string {
	if forceCPU {
		return profile.VideoCodec
	}
	available := r.availableEncoders()
	for _, candidate := range profile.HardwareCandidates {
		if available[candidate] {
			return candidate
		}
	}
	return profile.VideoCodec
}

// Refresh 重新探测；覆盖是幂等的
func (r *EncoderResolver) Refresh() {
	available, err := r.probe()
	if err != nil {
		logger.Warnf("Hardware encoder probe failed, using software encoders error=%v", err)
		available = map[string]bool{}
	}
	r.mu.Lock()
	r.available = available
	r.probed = true
	r.mu.Unlock()
}

func (r *EncoderResolver) availableEncoders() map[string]bool {
	r.mu.RLock()
	if r.probed {
		defer r.mu.RUnlock()
		return r.available
	}
	r.mu.RUnlock()

	r.Refresh()

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available
}
