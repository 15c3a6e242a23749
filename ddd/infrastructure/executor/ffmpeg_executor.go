package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/port"
	"render-engine/ddd/domain/vo"
	"render-engine/pkg/config"
	"render-engine/pkg/logger"
)

// FFmpegExecutor implements port.PlanExecutor using local ffmpeg and StorageGateway.
type FFmpegExecutor struct {
	cfg     *config.Config
	storage gateway.StorageGateway
}

func NewFFmpegExecutor(cfg *config.Config, storage gateway.StorageGateway) *FFmpegExecutor {
	return &FFmpegExecutor{cfg: cfg, storage: storage}
}

// Execute materialises plan inputs locally, runs ffmpeg, uploads the result
// unless SkipUpload, and cleans temporary files.
func (e *FFmpegExecutor) Execute(ctx context.Context, plan *vo.RenderPlan, opts port.ExecuteOptions) (port.ExecuteResult, error) {
	if plan == nil {
		return port.ExecuteResult{}, errors.New("nil render plan")
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = e.cfg.Render.FFmpeg.TempDir
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	workDir := filepath.Join(tempDir, "inputs", opts.RequestID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return port.ExecuteResult{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	localInputs, err := e.materialiseInputs(ctx, plan.Inputs, workDir)
	if err != nil {
		return port.ExecuteResult{}, err
	}

	localOutputPath := plan.OutputPath
	if localOutputPath == "" {
		localOutputPath = filepath.Join(tempDir, fmt.Sprintf("render_%s.mp4", opts.RequestID))
	}
	if err := os.MkdirAll(filepath.Dir(localOutputPath), 0o755); err != nil {
		return port.ExecuteResult{}, fmt.Errorf("create output dir: %w", err)
	}

	runCtx := ctx
	timeoutSecs := opts.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = int(e.cfg.Render.FFmpeg.Timeout / time.Second)
	}
	if timeoutSecs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		defer cancel()
	}

	cmd := e.buildFFmpegCommand(runCtx, plan, localInputs, localOutputPath)
	logger.Infof("ffmpeg command request_id=%s command=%s", opts.RequestID, strings.Join(cmd.Args, " "))
	if err := e.executeFFmpegCommand(runCtx, cmd, opts.DurationSec, opts.ProgressCb); err != nil {
		// 失败残片不保留
		_ = os.Remove(localOutputPath)
		return port.ExecuteResult{}, err
	}

	if opts.SkipUpload {
		// 不上传完整成片，直接清理本地产物
		_ = os.Remove(localOutputPath)
		return port.ExecuteResult{}, nil
	}

	if e.storage == nil {
		return port.ExecuteResult{}, errors.New("storage gateway not configured")
	}
	objectKey := strings.TrimPrefix(plan.OutputPath, "/")
	if objectKey == "" {
		objectKey = filepath.Base(localOutputPath)
	}
	uploadedKey, err := e.storage.UploadRenderOutput(ctx, localOutputPath, objectKey, "video/mp4")
	if err != nil {
		return port.ExecuteResult{}, fmt.Errorf("upload output: %w", err)
	}
	_ = os.Remove(localOutputPath)

	return port.ExecuteResult{
		ObjectKey: uploadedKey,
		PublicURL: e.buildFileURL(uploadedKey),
	}, nil
}

// materialiseInputs downloads remote inputs into workDir, preserving the
// positional order the filter graph indexes against.
func (e *FFmpegExecutor) materialiseInputs(ctx context.Context, inputs []vo.PlanInput, workDir string) ([]string, error) {
	paths := make([]string, 0, len(inputs))
	for i, in := range inputs {
		if strings.HasPrefix(in.URI, "placeholder://") {
			return nil, fmt.Errorf("plan input %d is a dry-run placeholder (%s)", i, in.URI)
		}
		if isRemoteURI(in.URI) {
			localPath := filepath.Join(workDir, fmt.Sprintf("input_%d_%s", i, filepath.Base(in.URI)))
			if e.storage == nil {
				return nil, errors.New("storage gateway not configured for remote input")
			}
			if err := e.storage.DownloadFile(ctx, objectKeyFromURI(in.URI), localPath); err != nil {
				return nil, fmt.Errorf("download input %d: %w", i, err)
			}
			paths = append(paths, localPath)
			continue
		}
		paths = append(paths, in.URI)
	}
	return paths, nil
}

func isRemoteURI(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") ||
		strings.HasPrefix(uri, "s3://") || strings.HasPrefix(uri, "minio://")
}

func objectKeyFromURI(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	return uri
}

func (e *FFmpegExecutor) buildFFmpegCommand(ctx context.Context, plan *vo.RenderPlan, localInputs []string, outputPath string) *exec.Cmd {
	args := make([]string, 0, len(localInputs)*2+len(plan.OutputArgs)+12)
	for _, in := range localInputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-progress", "pipe:2", "-nostats")

	if graph := plan.FilterComplex(); graph != "" {
		args = append(args, "-filter_complex", graph)
		if len(plan.VideoFilters) > 0 {
			args = append(args, "-map", "[vout]")
		}
		if len(plan.AudioFilters) > 0 {
			args = append(args, "-map", "[aout]")
		}
	}

	args = append(args, plan.OutputArgs...)
	args = append(args, "-y", outputPath)

	binary := e.cfg.Render.FFmpeg.BinaryPath
	if binary == "" {
		binary = "ffmpeg"
	}
	return exec.CommandContext(ctx, binary, args...)
}

func (e *FFmpegExecutor) executeFFmpegCommand(ctx context.Context, cmd *exec.Cmd, durationSec float64, progressCb port.ProgressCallback) error {
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	progressDone := make(chan struct{})
	buf := make([]string, 0, 200)
	go func() {
		defer close(progressDone)
		e.scanFFmpegProgress(ctx, stderr, durationSec, &buf, progressCb)
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-progressDone
		return ctx.Err()
	case err := <-done:
		<-progressDone
		if err != nil {
			tail := buf
			if n := len(tail); n > 50 {
				tail = tail[n-50:]
			}
			if len(tail) > 0 {
				logger.Errorf("ffmpeg failed tail_stderr=%s", strings.Join(tail, "\n"))
			}
			// 失败信息带阶段标注和诊断尾部，随任务落库
			if n := len(tail); n > 8 {
				tail = tail[n-8:]
			}
			if len(tail) > 0 {
				return fmt.Errorf("ffmpeg transcode failed: %w; stderr tail: %s", err, strings.Join(tail, " | "))
			}
			return fmt.Errorf("ffmpeg transcode failed: %w", err)
		}
		return nil
	}
}

func (e *FFmpegExecutor) scanFFmpegProgress(ctx context.Context, stderr io.ReadCloser, durationSec float64, capture *[]string, progressCb port.ProgressCallback) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	reTime := regexp.MustCompile(`time=(\d+):(\d+):(\d+\.?\d*)`)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()

		if strings.HasPrefix(line, "out_time_ms=") {
			if ms, err := strconv.ParseFloat(strings.TrimPrefix(line, "out_time_ms="), 64); err == nil && durationSec > 0 {
				sec := ms / 1e6
				e.emitProgress(sec, durationSec, progressCb)
			}
			continue
		}

		if m := reTime.FindStringSubmatch(line); len(m) == 4 && durationSec > 0 {
			hh, _ := strconv.ParseFloat(m[1], 64)
			mm, _ := strconv.ParseFloat(m[2], 64)
			ss, _ := strconv.ParseFloat(m[3], 64)
			sec := hh*3600 + mm*60 + ss
			e.emitProgress(sec, durationSec, progressCb)
			continue
		}

		if capture != nil {
			b := *capture
			if len(b) >= 200 {
				b = b[1:]
			}
			b = append(b, line)
			*capture = b
		}
	}
}

func (e *FFmpegExecutor) emitProgress(currentSec, totalSec float64, cb port.ProgressCallback) {
	if cb == nil || totalSec <= 0 {
		return
	}
	pct := int((currentSec / totalSec) * 100)
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	cb(pct)
}

// ProbeDurationSeconds 调用 ffprobe 获取媒体时长（秒），失败则返回 0。
func (e *FFmpegExecutor) ProbeDurationSeconds(inputPath string) float64 {
	binary := e.cfg.Render.FFmpeg.ProbeBinaryPath
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.Command(binary, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", inputPath)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return val
}

func (e *FFmpegExecutor) buildFileURL(objectKey string) string {
	if strings.TrimSpace(objectKey) == "" {
		return ""
	}
	key := strings.TrimLeft(objectKey, "/")
	path := "/storage/renders/" + key

	publicBase := strings.TrimSpace(e.cfg.Public.StorageBase)
	if publicBase != "" {
		if !strings.HasPrefix(publicBase, "http://") && !strings.HasPrefix(publicBase, "https://") {
			publicBase = "http://" + publicBase
		}
		return strings.TrimRight(publicBase, "/") + path
	}
	return path
}
