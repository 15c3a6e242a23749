package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-engine/ddd/domain/port"
	"render-engine/ddd/domain/vo"
	"render-engine/pkg/config"
)

func TestExecuteFFmpegCommandCapturesStderrTail(t *testing.T) {
	e := NewFFmpegExecutor(&config.Config{}, nil)
	cmd := exec.Command("/bin/sh", "-c", "echo 'No such filter: posterize_deluxe' >&2; exit 1")

	err := e.executeFFmpegCommand(context.Background(), cmd, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg transcode failed")
	assert.Contains(t, err.Error(), "No such filter: posterize_deluxe")
}

func TestExecuteFailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Render.FFmpeg.BinaryPath = "/bin/false"
	cfg.Render.FFmpeg.TempDir = dir

	e := NewFFmpegExecutor(cfg, nil)
	outPath := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(outPath, []byte("partial"), 0o644))

	plan := &vo.RenderPlan{OutputPath: outPath, OutputArgs: []string{"-c:v", "libx264"}}
	_, err := e.Execute(context.Background(), plan, port.ExecuteOptions{RequestID: "req-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg transcode failed")

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}
