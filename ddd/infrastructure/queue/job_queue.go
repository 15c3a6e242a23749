package queue

import (
	"context"
	"fmt"
	"sync"
)

// JobQueue 渲染任务分发队列，承载待执行的任务ID
type JobQueue interface {
	// Enqueue 入队任务ID
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue 出队任务ID（阻塞）
	Dequeue(ctx context.Context) (string, error)

	// Size 获取队列大小
	Size() int

	// Close 关闭队列
	Close() error
}

// MemoryJobQueue 基于内存的任务队列实现，单进程部署用
type MemoryJobQueue struct {
	queue  chan string
	closed bool
	mu     sync.RWMutex
}

// NewMemoryJobQueue 创建内存任务队列
func NewMemoryJobQueue(capacity int) JobQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryJobQueue{queue: make(chan string, capacity)}
}

// Enqueue 入队任务ID；队列满时立即失败
func (q *MemoryJobQueue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if jobID == "" {
		return fmt.Errorf("job id cannot be empty")
	}

	select {
	case q.queue <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue is full")
	}
}

// Dequeue 出队任务ID（阻塞）
func (q *MemoryJobQueue) Dequeue(ctx context.Context) (string, error) {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return "", fmt.Errorf("queue is closed")
	}
	ch := q.queue
	q.mu.RUnlock()

	select {
	case jobID, ok := <-ch:
		if !ok {
			return "", fmt.Errorf("queue is closed")
		}
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Size 获取队列大小
func (q *MemoryJobQueue) Size() int {
	return len(q.queue)
}

// Close 关闭队列
func (q *MemoryJobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.queue)
	return nil
}
