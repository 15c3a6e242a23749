package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-engine/ddd/domain/gateway"
)

func TestVideoFilterExpr(t *testing.T) {
	cases := []struct {
		name string
		spec gateway.FilterSpec
		want string
	}{
		{"brightness", gateway.FilterSpec{Type: "brightness", Params: map[string]float64{"value": 0.2}}, "eq=brightness=0.2"},
		{"brightness default", gateway.FilterSpec{Type: "brightness"}, "eq=brightness=0"},
		{"contrast", gateway.FilterSpec{Type: "contrast", Params: map[string]float64{"value": 1.3}}, "eq=contrast=1.3"},
		{"saturation default", gateway.FilterSpec{Type: "saturation"}, "eq=saturation=1"},
		{"hue", gateway.FilterSpec{Type: "hue", Params: map[string]float64{"degrees": 90}}, "hue=h=90"},
		{"blur", gateway.FilterSpec{Type: "blur", Params: map[string]float64{"sigma": 3.5}}, "gblur=sigma=3.5"},
		{"sharpen", gateway.FilterSpec{Type: "sharpen", Params: map[string]float64{"amount": 1.5}}, "unsharp=5:5:1.5:5:5:0"},
		{"vignette", gateway.FilterSpec{Type: "vignette"}, "vignette"},
		{"grayscale", gateway.FilterSpec{Type: "grayscale"}, "hue=s=0"},
		{"denoise", gateway.FilterSpec{Type: "denoise"}, "hqdn3d=4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := VideoFilterExpr(tc.spec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestVideoFilterExprUnknownType(t *testing.T) {
	_, err := VideoFilterExpr(gateway.FilterSpec{Type: "glitch"})
	require.Error(t, err)
}

func TestXfadeName(t *testing.T) {
	name, ok := XfadeName("crossfade")
	require.True(t, ok)
	assert.Equal(t, "fade", name)

	name, ok = XfadeName("wipe_left")
	require.True(t, ok)
	assert.Equal(t, "wipeleft", name)

	_, ok = XfadeName("star_wipe")
	assert.False(t, ok)
}

func TestXfadeExpr(t *testing.T) {
	assert.Equal(t, "xfade=transition=fade:duration=0.5:offset=9.5", XfadeExpr("fade", 0.5, 9.5))
}

func TestSpeedExprs(t *testing.T) {
	assert.Equal(t, "setpts=PTS/0.5", SetptsExpr(0.5))
	assert.Equal(t, "setpts=PTS/2", SetptsExpr(2))
	assert.Equal(t, "minterpolate=fps=30:mi_mode=mci:mc_mode=aobmc:vsbmc=1", MinterpolateExpr(30))
	assert.Equal(t, "tblend=all_mode=average", TblendExpr())
}

func TestBlendExpr(t *testing.T) {
	assert.Equal(t, "blend=all_mode=screen", BlendExpr("screen"))
	assert.Equal(t, "blend=all_mode=multiply", BlendExpr("multiply"))
	// normal和未知模式都退回overlay
	assert.Equal(t, "overlay", BlendExpr("normal"))
	assert.Equal(t, "overlay", BlendExpr(""))
	assert.Equal(t, "overlay", BlendExpr("hard_light"))
}

func TestSubtitlesExprEscaping(t *testing.T) {
	assert.Equal(t, `subtitles='/tmp/caps.srt'`, SubtitlesExpr("/tmp/caps.srt"))
	assert.Equal(t, `subtitles='C\:/media/it\'s.srt'`, SubtitlesExpr(`C:\media\it's.srt`))
}

func TestAudioExprs(t *testing.T) {
	assert.Equal(t, "atrim=start=1.5:end=4,asetpts=PTS-STARTPTS", ATrimExpr(1500, 4000))
	assert.Equal(t, "adelay=2500|2500", ADelayExpr(2500))
	assert.Equal(t, "volume=0.8", VolumeExpr(0.8))
	assert.Equal(t, "amix=inputs=3:duration=longest:normalize=1", AMixExpr(3))
	assert.Equal(t, "afade=t=in:st=0:d=0.02", AFadeInExpr())
	assert.Equal(t, "afade=t=out:st=9.98:d=0.02", AFadeOutExpr(9.98))
	assert.Equal(t, "loudnorm=I=-14:TP=-1.5:LRA=11", LoudnormExpr(-14))
	assert.Equal(t, "acrossfade=d=0.5", ACrossfadeExpr(0.5))
}

func TestAutomationVolumeExpr(t *testing.T) {
	assert.Empty(t, AutomationVolumeExpr(nil))

	// 单帧退化为常量
	assert.Equal(t, "volume='0.5':eval=frame", AutomationVolumeExpr([]gateway.AutomationKeyframe{
		{AtMs: 0, Value: 0.5},
	}))

	// 乱序输入按时间排序后分段
	got := AutomationVolumeExpr([]gateway.AutomationKeyframe{
		{AtMs: 4000, Value: 0.2},
		{AtMs: 0, Value: 1},
		{AtMs: 2000, Value: 0.6},
	})
	assert.Equal(t, "volume='if(lt(t,2),1,if(lt(t,4),0.6,0.2))':eval=frame", got)
}

func TestDuckingExpr(t *testing.T) {
	assert.Empty(t, DuckingExpr(12, nil))

	got := DuckingExpr(12, []TimeWindow{
		{StartSec: 1, EndSec: 3.5},
		{StartSec: 6, EndSec: 7},
	})
	assert.Equal(t, "volume=dB=-12:enable='between(t,1,3.5)+between(t,6,7)'", got)
}

func TestStitchExprs(t *testing.T) {
	assert.Equal(t, "trim=start=0.5,setpts=PTS-STARTPTS", TrimHeadExpr(0.5))
	assert.Equal(t, "atrim=start=0.5,asetpts=PTS-STARTPTS", ATrimHeadExpr(0.5))
	assert.Equal(t, "concat=n=3:v=1:a=1", ConcatExpr(3))
}

func TestScaleExpr(t *testing.T) {
	assert.Equal(t,
		"scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2",
		ScaleExpr(1920, 1080))
}
