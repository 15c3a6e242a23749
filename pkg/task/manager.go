package task

import (
	"context"
	"fmt"
	"sync"
)

// BackgroundTask represents a long-running background process (consumer, worker, registry lease).
type BackgroundTask interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Manager owns the lifecycle of registered background tasks. The composition
// root builds one, registers tasks, and starts them once.
type Manager struct {
	tasks  []BackgroundTask
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewManager creates an empty task manager.
func NewManager() *Manager {
	return &Manager{tasks: make([]BackgroundTask, 0)}
}

// Register adds a background task; must be called before StartAll.
func (m *Manager) Register(task BackgroundTask) {
	if task == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

// StartAll starts all registered tasks once. A task failing to start aborts
// the whole startup.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	for _, t := range m.tasks {
		if err := t.Start(runCtx); err != nil {
			return fmt.Errorf("start background task %s: %w", t.Name(), err)
		}
	}
	return nil
}

// StopAll stops all running tasks in reverse registration order.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	for i := len(m.tasks) - 1; i >= 0; i-- {
		_ = m.tasks[i].Stop()
	}
	m.cancel = nil
}
