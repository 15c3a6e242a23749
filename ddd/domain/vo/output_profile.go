package vo

import "fmt"

// OutputProfile 输出档位：分辨率、帧率、编码参数和硬件编码候选
type OutputProfile struct {
	Name               string
	Width              int
	Height             int
	FPS                int
	PixelFormat        string
	VideoCodec         string
	VideoBitrate       string
	AudioCodec         string
	AudioBitrate       string
	Threads            int
	HardwareCandidates []string
	TimeoutSec         int
	SegmentTimeoutSec  int
}

// Resolution 返回 WxH 形式的分辨率
func (p OutputProfile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

var profileCatalog = map[string]OutputProfile{
	"youtube_1080p": {
		Name:               "youtube_1080p",
		Width:              1920,
		Height:             1080,
		FPS:                30,
		PixelFormat:        "yuv420p",
		VideoCodec:         "libx264",
		VideoBitrate:       "8M",
		AudioCodec:         "aac",
		AudioBitrate:       "192k",
		Threads:            4,
		HardwareCandidates: []string{"h264_nvenc", "h264_qsv", "h264_videotoolbox"},
		TimeoutSec:         3600,
		SegmentTimeoutSec:  7200,
	},
	"vertical_1080x1920": {
		Name:               "vertical_1080x1920",
		Width:              1080,
		Height:             1920,
		FPS:                30,
		PixelFormat:        "yuv420p",
		VideoCodec:         "libx264",
		VideoBitrate:       "6M",
		AudioCodec:         "aac",
		AudioBitrate:       "192k",
		Threads:            4,
		HardwareCandidates: []string{"h264_nvenc", "h264_qsv", "h264_videotoolbox"},
		TimeoutSec:         3600,
		SegmentTimeoutSec:  7200,
	},
	"preview_720p": {
		Name:               "preview_720p",
		Width:              1280,
		Height:             720,
		FPS:                30,
		PixelFormat:        "yuv420p",
		VideoCodec:         "libx264",
		VideoBitrate:       "3M",
		AudioCodec:         "aac",
		AudioBitrate:       "128k",
		Threads:            2,
		HardwareCandidates: []string{"h264_nvenc", "h264_qsv"},
		TimeoutSec:         1800,
		SegmentTimeoutSec:  3600,
	},
	"proxy_360p": {
		Name:              "proxy_360p",
		Width:             640,
		Height:            360,
		FPS:               30,
		PixelFormat:       "yuv420p",
		VideoCodec:        "libx264",
		VideoBitrate:      "800k",
		AudioCodec:        "aac",
		AudioBitrate:      "96k",
		Threads:           2,
		TimeoutSec:        900,
		SegmentTimeoutSec: 1800,
	},
}

// LookupProfile 按名称查找输出档位
func LookupProfile(name string) (OutputProfile, bool) {
	p, ok := profileCatalog[name]
	return p, ok
}

// ProfileNames 返回所有已注册档位名称
func ProfileNames() []string {
	names := make([]string, 0, len(profileCatalog))
	for name := range profileCatalog {
		names = append(names, name)
	}
	return names
}
