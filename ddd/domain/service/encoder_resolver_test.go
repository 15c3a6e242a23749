package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-engine/ddd/domain/vo"
)

func testProfile() vo.OutputProfile {
	p, ok := vo.LookupProfile("youtube_1080p")
	if !ok {
		panic("profile catalog missing youtube_1080p")
	}
	return p
}

func TestResolvePrefersHardwareCandidate(t *testing.T) {
	r := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		return map[string]bool{"h264_nvenc": true}, nil
	})
	assert.Equal(t, "h264_nvenc", r.Resolve(testProfile(), false))
}

func TestResolveCandidateOrder(t *testing.T) {
	profile := testProfile()
	require.NotEmpty(t, profile.HardwareCandidates)

	// 全部候选可用时取列表第一个
	r := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		all := make(map[string]bool)
		for _, c := range profile.HardwareCandidates {
			all[c] = true
		}
		return all, nil
	})
	assert.Equal(t, profile.HardwareCandidates[0], r.Resolve(profile, false))
}

func TestResolveForceCPUOverridesHardware(t *testing.T) {
	probeCalls := 0
	r := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		probeCalls++
		return map[string]bool{"h264_nvenc": true}, nil
	})
	assert.Equal(t, "libx264", r.Resolve(testProfile(), true))
	// 强制CPU不触发探测
	assert.Equal(t, 0, probeCalls)
}

func TestResolveFallsBackToSoftwareOnProbeFailure(t *testing.T) {
	r := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		return nil, errors.New("ffmpeg not found")
	})
	assert.Equal(t, "libx264", r.Resolve(testProfile(), false))
}

func TestResolveProbesOnce(t *testing.T) {
	probeCalls := 0
	r := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		probeCalls++
		return map[string]bool{}, nil
	})
	for i := 0; i < 5; i++ {
		r.Resolve(testProfile(), false)
	}
	assert.Equal(t, 1, probeCalls)
}

func TestRefreshReprobes(t *testing.T) {
	available := map[string]bool{}
	r := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		return available, nil
	})
	assert.Equal(t, "libx264", r.Resolve(testProfile(), false))

	available = map[string]bool{"h264_nvenc": true}
	r.Refresh()
	assert.Equal(t, "h264_nvenc", r.Resolve(testProfile(), false))
}
