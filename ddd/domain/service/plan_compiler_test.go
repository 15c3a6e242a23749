package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/vo"
	"render-engine/ddd/infrastructure/client"
)

var fixtureUpdatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type compilerFixture struct {
	timeline *client.MemoryTimelineGateway
	media    *client.MemoryMediaGateway
	compiler *PlanCompiler
}

func newCompilerFixture(slowMoQuality string) *compilerFixture {
	tl := client.NewMemoryTimelineGateway()
	md := client.NewMemoryMediaGateway()
	resolver := NewEncoderResolverWithProbe(func() (map[string]bool, error) {
		return map[string]bool{}, nil
	})
	return &compilerFixture{
		timeline: tl,
		media:    md,
		compiler: NewPlanCompiler(tl, md, resolver, NewTransitionPlanner(), "/tmp/render-test", slowMoQuality, 0),
	}
}

// seedBasicProject 单视频轨单剪辑[0,10s)，序列总长20s
func (f *compilerFixture) seedBasicProject() {
	f.timeline.SeedProject(gateway.Project{ID: "p1", TenantID: "t1", Name: "demo", UpdatedAt: fixtureUpdatedAt})
	f.timeline.SeedSequence(gateway.Sequence{ID: "s1", ProjectID: "p1", DurationMs: 20000, FPS: 30})
	f.timeline.SeedTrack(gateway.Track{ID: "tv", SequenceID: "s1", Kind: "video", Order: 0})
	f.timeline.SeedClip(gateway.Clip{
		ID: "c1", TrackID: "tv", AssetID: "a1",
		StartMs: 0, InMs: 0, OutMs: 10000, HasAudio: true,
	})
	f.media.SeedAsset(gateway.Asset{ID: "a1", TenantID: "t1", Kind: "video", URI: "s3://media/a1.mp4", LocalPath: "/media/a1.mp4"})
}

func baseRequest() vo.RenderRequest {
	return vo.RenderRequest{
		TenantID:  "t1",
		ProjectID: "p1",
		Profile:   "youtube_1080p",
	}
}

func windowPtr(v int64) *int64 { return &v }

func TestCacheKeyDeterminism(t *testing.T) {
	req := baseRequest()
	assert.Equal(t, req.CacheKey(fixtureUpdatedAt), req.CacheKey(fixtureUpdatedAt))

	// 项目内容变更（更新时间前移）使键失效
	assert.NotEqual(t, req.CacheKey(fixtureUpdatedAt), req.CacheKey(fixtureUpdatedAt.Add(time.Second)))

	// 不同窗口不同键
	windowed := req.WithWindow(0, 10000, 0, 0)
	assert.NotEqual(t, req.CacheKey(fixtureUpdatedAt), windowed.CacheKey(fixtureUpdatedAt))

	// 归一化参数参与键
	normalized := req
	normalized.NormalizeAudio = true
	assert.NotEqual(t, req.CacheKey(fixtureUpdatedAt), normalized.CacheKey(fixtureUpdatedAt))
}

func TestCompileBasicPlan(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()

	plan, err := f.compiler.Compile(context.Background(), baseRequest())
	require.NoError(t, err)

	require.Len(t, plan.Inputs, 1)
	assert.Equal(t, "/media/a1.mp4", plan.Inputs[0].URI)
	assert.Equal(t, vo.InputKindVideo, plan.Inputs[0].Kind)

	// 视频路径以[vout]收尾
	require.NotEmpty(t, plan.VideoFilters)
	assert.Equal(t, "[0:v]null[vout]", plan.VideoFilters[len(plan.VideoFilters)-1])

	// 音频路径：单剪辑截取 + 尾部淡入淡出，以[aout]收尾
	require.Len(t, plan.AudioFilters, 2)
	assert.Equal(t, "[0:a]atrim=start=0:end=10,asetpts=PTS-STARTPTS[a1]", plan.AudioFilters[0])
	assert.Equal(t, "[a1]afade=t=in:st=0:d=0.02,afade=t=out:st=19.98:d=0.02[aout]", plan.AudioFilters[1])

	// 探测不到硬件编码器时落到软件编码
	assert.Equal(t, "libx264", plan.Meta.Encoder)
	assert.Contains(t, plan.OutputArgs, "libx264")
	assert.Contains(t, plan.OutputArgs, "1920x1080")
	assert.NotContains(t, plan.OutputArgs, "-ss")
	assert.True(t, strings.HasPrefix(plan.OutputPath, "/tmp/render-test/renders/p1_"))
}

func TestCompileUnknownProfile(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()

	req := baseRequest()
	req.Profile = "betamax"
	_, err := f.compiler.Compile(context.Background(), req)
	require.Error(t, err)
}

func TestCompileProjectNotFound(t *testing.T) {
	f := newCompilerFixture("")
	req := baseRequest()
	req.ProjectID = "missing"
	_, err := f.compiler.Compile(context.Background(), req)
	require.Error(t, err)
}

func TestCompileInvalidWindow(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()

	req := baseRequest()
	req.StartMs = windowPtr(5000)
	req.EndMs = windowPtr(5000)
	_, err := f.compiler.Compile(context.Background(), req)
	require.Error(t, err)
}

func TestCompileMissingSourceIsFatal(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()
	f.timeline.SeedClip(gateway.Clip{ID: "c2", TrackID: "tv", AssetID: "ghost", StartMs: 10000, InMs: 0, OutMs: 1000})

	_, err := f.compiler.Compile(context.Background(), baseRequest())
	require.Error(t, err)
}

func TestCompileDryRunSubstitutesPlaceholder(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()
	f.timeline.SeedClip(gateway.Clip{ID: "c2", TrackID: "tv", AssetID: "ghost", StartMs: 10000, InMs: 0, OutMs: 1000})

	req := baseRequest()
	req.DryRun = true
	plan, err := f.compiler.Compile(context.Background(), req)
	require.NoError(t, err)

	found := false
	for _, in := range plan.Inputs {
		if in.URI == "placeholder://ghost" {
			found = true
		}
	}
	assert.True(t, found, "dry-run should keep input ordinals aligned with a placeholder")
	assert.NotEmpty(t, plan.Meta.Warnings)
}

func TestCompileWindowTrimsHeadAndEmitsDurationOnly(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()

	req := baseRequest()
	req.StartMs = windowPtr(5000)
	req.EndMs = windowPtr(10000)
	req.OverlapMs = 1000

	plan, err := f.compiler.Compile(context.Background(), req)
	require.NoError(t, err)

	// 图零点=4s，剪辑头部掐到零点
	joined := strings.Join(plan.VideoFilters, ";")
	assert.Contains(t, joined, "trim=start=4,setpts=PTS-STARTPTS")

	// 图已经从窗口起点开始：只有-t，没有-ss
	assert.NotContains(t, plan.OutputArgs, "-ss")
	require.True(t, len(plan.OutputArgs) >= 2)
	assert.Equal(t, "-t", plan.OutputArgs[len(plan.OutputArgs)-2])
	assert.Equal(t, "6", plan.OutputArgs[len(plan.OutputArgs)-1])

	// 音频同样从零点起：atrim换算回源内偏移
	assert.Contains(t, strings.Join(plan.AudioFilters, ";"), "atrim=start=4:end=10")
}

func TestCompileSlowMotionSelection(t *testing.T) {
	seed := func(f *compilerFixture, optical bool) {
		f.timeline.SeedProject(gateway.Project{ID: "p1", UpdatedAt: fixtureUpdatedAt})
		f.timeline.SeedSequence(gateway.Sequence{ID: "s1", ProjectID: "p1", DurationMs: 20000, FPS: 30})
		f.timeline.SeedTrack(gateway.Track{ID: "tv", SequenceID: "s1", Kind: "video", Order: 0})
		f.timeline.SeedClip(gateway.Clip{
			ID: "c1", TrackID: "tv", AssetID: "a1",
			StartMs: 0, InMs: 0, OutMs: 5000, Speed: 0.5, OpticalFlow: optical,
		})
		f.media.SeedAsset(gateway.Asset{ID: "a1", Kind: "video", LocalPath: "/media/a1.mp4"})
	}

	t.Run("optical flow with high quality uses minterpolate", func(t *testing.T) {
		f := newCompilerFixture(SlowMoQualityHigh)
		seed(f, true)
		plan, err := f.compiler.Compile(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Contains(t, strings.Join(plan.VideoFilters, ";"), "minterpolate=fps=30")
		assert.Empty(t, plan.Meta.Warnings)
	})

	t.Run("no optical flow falls back to tblend with warning", func(t *testing.T) {
		f := newCompilerFixture(SlowMoQualityHigh)
		seed(f, false)
		plan, err := f.compiler.Compile(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Contains(t, strings.Join(plan.VideoFilters, ";"), "tblend=all_mode=average")
		require.NotEmpty(t, plan.Meta.Warnings)
		assert.Contains(t, plan.Meta.Warnings[0], "frame blending")
	})

	t.Run("fast quality skips interpolation without warning", func(t *testing.T) {
		f := newCompilerFixture(SlowMoQualityFast)
		seed(f, true)
		plan, err := f.compiler.Compile(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Contains(t, strings.Join(plan.VideoFilters, ";"), "tblend=all_mode=average")
		assert.Empty(t, plan.Meta.Warnings)
	})
}

func TestCompileTransitionFoldsWithXfade(t *testing.T) {
	f := newCompilerFixture("")
	f.timeline.SeedProject(gateway.Project{ID: "p1", UpdatedAt: fixtureUpdatedAt})
	f.timeline.SeedSequence(gateway.Sequence{ID: "s1", ProjectID: "p1", DurationMs: 10000, FPS: 30})
	f.timeline.SeedTrack(gateway.Track{ID: "tv", SequenceID: "s1", Kind: "video", Order: 0})
	f.timeline.SeedClip(gateway.Clip{ID: "c1", TrackID: "tv", AssetID: "a1", StartMs: 0, InMs: 0, OutMs: 5000, HasAudio: true})
	f.timeline.SeedClip(gateway.Clip{ID: "c2", TrackID: "tv", AssetID: "a2", StartMs: 5000, InMs: 0, OutMs: 5000, HasAudio: true})
	f.timeline.SeedTransition(gateway.Transition{
		ID: "tr1", SequenceID: "s1", Type: "crossfade", FromClipID: "c1", ToClipID: "c2", DurationMs: 1000,
	})
	f.media.SeedAsset(gateway.Asset{ID: "a1", Kind: "video", LocalPath: "/media/a1.mp4"})
	f.media.SeedAsset(gateway.Asset{ID: "a2", Kind: "video", LocalPath: "/media/a2.mp4"})

	plan, err := f.compiler.Compile(context.Background(), baseRequest())
	require.NoError(t, err)

	videoGraph := strings.Join(plan.VideoFilters, ";")
	assert.Contains(t, videoGraph, "xfade=transition=fade:duration=1:offset=4")

	// 有转场的同轨剪辑音频走交叉淡化而不是混音
	audioGraph := strings.Join(plan.AudioFilters, ";")
	assert.Contains(t, audioGraph, "acrossfade=d=1")
	assert.NotContains(t, audioGraph, "amix")
}

func TestCompileDuckingWindows(t *testing.T) {
	f := newCompilerFixture("")
	f.timeline.SeedProject(gateway.Project{ID: "p1", UpdatedAt: fixtureUpdatedAt})
	f.timeline.SeedSequence(gateway.Sequence{ID: "s1", ProjectID: "p1", DurationMs: 20000, FPS: 30})
	f.timeline.SeedTrack(gateway.Track{ID: "td", SequenceID: "s1", Kind: "audio", Order: 0, AudioRole: "dialogue"})
	f.timeline.SeedTrack(gateway.Track{ID: "tm", SequenceID: "s1", Kind: "audio", Order: 1, AudioRole: "music"})
	f.timeline.SeedClip(gateway.Clip{ID: "d1", TrackID: "td", AssetID: "ad", StartMs: 2000, InMs: 0, OutMs: 3000})
	f.timeline.SeedClip(gateway.Clip{ID: "m1", TrackID: "tm", AssetID: "am", StartMs: 0, InMs: 0, OutMs: 20000})
	f.media.SeedAsset(gateway.Asset{ID: "ad", Kind: "audio", LocalPath: "/media/dialogue.wav"})
	f.media.SeedAsset(gateway.Asset{ID: "am", Kind: "audio", LocalPath: "/media/music.wav"})

	req := baseRequest()
	req.EnableDucking = true
	plan, err := f.compiler.Compile(context.Background(), req)
	require.NoError(t, err)

	audioGraph := strings.Join(plan.AudioFilters, ";")
	assert.Contains(t, audioGraph, "volume=dB=-12:enable='between(t,2,5)'")
	assert.Contains(t, audioGraph, "amix=inputs=2")
}

func TestCompileProxyPreference(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()
	f.media.SeedArtifact(gateway.Artifact{ID: "px1", AssetID: "a1", Kind: gateway.ArtifactKindProxy, URI: "/proxies/a1_720.mp4"})
	f.media.SeedArtifact(gateway.Artifact{ID: "px2", AssetID: "a1", Kind: gateway.ArtifactKindProxy360p, URI: "/proxies/a1_360.mp4"})

	req := baseRequest()
	req.PreferProxies = true
	plan, err := f.compiler.Compile(context.Background(), req)
	require.NoError(t, err)

	// 最小代理优先
	assert.Equal(t, "/proxies/a1_360.mp4", plan.Inputs[0].URI)
}

func TestCompileMutedTrackExcludedFromMix(t *testing.T) {
	f := newCompilerFixture("")
	f.timeline.SeedProject(gateway.Project{ID: "p1", UpdatedAt: fixtureUpdatedAt})
	f.timeline.SeedSequence(gateway.Sequence{ID: "s1", ProjectID: "p1", DurationMs: 10000, FPS: 30})
	f.timeline.SeedTrack(gateway.Track{ID: "ta", SequenceID: "s1", Kind: "audio", Order: 0, AudioRole: "music", Muted: true})
	f.timeline.SeedClip(gateway.Clip{ID: "m1", TrackID: "ta", AssetID: "am", StartMs: 0, InMs: 0, OutMs: 10000})
	f.media.SeedAsset(gateway.Asset{ID: "am", Kind: "audio", LocalPath: "/media/music.wav"})

	plan, err := f.compiler.Compile(context.Background(), baseRequest())
	require.NoError(t, err)

	// 静音轨不进混音，但保留明细
	assert.Empty(t, plan.AudioFilters)
	muted := false
	for _, d := range plan.Meta.EffectDetails {
		if d.Effect == "audio_muted" {
			muted = true
		}
	}
	assert.True(t, muted)
}

func TestCompileNormalizeAudioAppendsLoudnorm(t *testing.T) {
	f := newCompilerFixture("")
	f.seedBasicProject()

	req := baseRequest()
	req.NormalizeAudio = true
	req.TargetLUFS = -16
	plan, err := f.compiler.Compile(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, strings.Join(plan.AudioFilters, ";"), "loudnorm=I=-16:TP=-1.5:LRA=11")
}
