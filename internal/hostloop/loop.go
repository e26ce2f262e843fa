// Package hostloop runs tasks one at a time on a single goroutine. Adapters use
// it as the host execution context for operations that mutate server state.
package hostloop

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultQueueSize bounds the number of pending tasks.
const DefaultQueueSize = 256

// Loop is a serial task executor.
type Loop struct {
	tasks  chan func()
	logger *zap.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a loop with room for queueSize pending tasks.
func New(queueSize int, logger *zap.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		tasks:   make(chan func(), queueSize),
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Submit queues fn and returns without waiting for it to run. It never
// blocks: it returns false when the queue is full or the loop has stopped.
func (l *Loop) Submit(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	default:
		l.logger.Warn("host queue full, task rejected", zap.Int("capacity", cap(l.tasks)))
		return false
	}
}

// Run executes tasks in submission order until ctx is done. Tasks still queued
// at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("host task panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	fn()
}
