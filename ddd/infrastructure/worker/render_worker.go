package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"render-engine/ddd/infrastructure/queue"
	"render-engine/pkg/logger"
)

// JobRunner 执行单个渲染任务；由应用层实现
type JobRunner interface {
	RunRenderJob(ctx context.Context, jobID string) error
}

// RenderWorker 渲染工作器接口
type RenderWorker interface {
	// Name 后台任务名
	Name() string

	// Start 启动工作器
	Start(ctx context.Context) error

	// Stop 停止工作器，等待在途任务至宽限期
	Stop() error

	// IsRunning 检查工作器是否运行中
	IsRunning() bool

	// GetStats 获取工作器统计信息
	GetStats() WorkerStats
}

// WorkerStats 工作器统计信息
type WorkerStats struct {
	ProcessedJobs    uint64
	SuccessfulJobs   uint64
	FailedJobs       uint64
	CurrentlyRunning int
	StartTime        time.Time
	LastJobTime      time.Time
}

type renderWorkerImpl struct {
	id          string
	jobQueue    queue.JobQueue
	runner      JobRunner
	workerCount int
	gracePeriod time.Duration
	running     bool
	cancel      context.CancelFunc
	stats       WorkerStats
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewRenderWorker 创建渲染工作器；workerCount即最大并发渲染数
func NewRenderWorker(id string, jobQueue queue.JobQueue, runner JobRunner, workerCount int, gracePeriod time.Duration) RenderWorker {
	if workerCount <= 0 {
		workerCount = 1
	}
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Second
	}
	return &renderWorkerImpl{
		id:          id,
		jobQueue:    jobQueue,
		runner:      runner,
		workerCount: workerCount,
		gracePeriod: gracePeriod,
		stats: WorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (w *renderWorkerImpl) Name() string {
	return w.id
}

// Start 启动工作器
func (w *renderWorkerImpl) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker %s is already running", w.id)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.stats.StartTime = time.Now()

	logger.Infof("Starting render worker %s with %d goroutines", w.id, w.workerCount)

	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.workerLoop(workerCtx, i)
	}
	return nil
}

// Stop 停止工作器
func (w *renderWorkerImpl) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	logger.Infof("Stopping render worker %s", w.id)

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.gracePeriod):
		logger.Warnf("Render worker %s shutdown grace period elapsed with jobs still running", w.id)
	}

	w.running = false
	logger.Infof("Render worker %s stopped", w.id)
	return nil
}

// IsRunning 检查工作器是否运行中
func (w *renderWorkerImpl) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats 获取工作器统计信息
func (w *renderWorkerImpl) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// workerLoop 工作器主循环
func (w *renderWorkerImpl) workerLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger.Infof("Worker %s-%d started", w.id, workerID)
	defer logger.Infof("Worker %s-%d stopped", w.id, workerID)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			jobID, err := w.jobQueue.Dequeue(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				logger.Errorf("Worker %s-%d failed to dequeue job: %v", w.id, workerID, err)
				time.Sleep(time.Second) // 避免忙等待
				continue
			}
			if jobID == "" {
				continue
			}
			w.processJob(ctx, jobID, workerID)
		}
	}
}

// processJob 处理单个任务。RunRenderJob自身负责在仓储中标记终态，
// 这里只维护统计与日志。
func (w *renderWorkerImpl) processJob(ctx context.Context, jobID string, workerID int) {
	logger.Infof("Worker %s-%d processing job %s", w.id, workerID, jobID)

	w.updateStats(func(stats *WorkerStats) {
		stats.CurrentlyRunning++
		stats.LastJobTime = time.Now()
	})
	defer w.updateStats(func(stats *WorkerStats) {
		stats.CurrentlyRunning--
		stats.ProcessedJobs++
	})

	if err := w.runner.RunRenderJob(ctx, jobID); err != nil {
		logger.Errorf("Worker %s-%d failed to process job %s: %v", w.id, workerID, jobID, err)
		w.updateStats(func(stats *WorkerStats) {
			stats.FailedJobs++
		})
		return
	}
	logger.Infof("Worker %s-%d successfully processed job %s", w.id, workerID, jobID)
	w.updateStats(func(stats *WorkerStats) {
		stats.SuccessfulJobs++
	})
}

func (w *renderWorkerImpl) updateStats(fn func(*WorkerStats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}
