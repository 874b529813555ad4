package auditor

import (
	"context"
	"sync"
	"time"

	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal"
	"github.com/shopmonkeyus/procure/internal/util"
)

// DefaultDelay is how long after startup the audit runs.
const DefaultDelay = 5 * time.Second

// Task is a function scheduled to run once in the background.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	fired  bool
	mu     sync.Mutex
}

// Schedule runs fn once after delay in its own goroutine. Errors and panics
// from fn are logged and never propagate. If ctx is cancelled or Stop is
// called before the delay elapses fn never runs; once fn has started it runs
// to completion.
func Schedule(ctx context.Context, log logger.Logger, delay time.Duration, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			log.Debug("scheduled task cancelled before it ran")
			return
		case <-timer.C:
		}
		t.mu.Lock()
		t.fired = true
		t.mu.Unlock()
		defer util.RecoverAndLog(log)
		if err := fn(context.WithoutCancel(ctx)); err != nil {
			internal.AuditFailures.Inc()
			log.Error("scheduled task failed: %s", err)
		}
	}()
	return t
}

// Fired returns true if the task has started running.
func (t *Task) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Done is closed when the task has finished or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stop cancels the task if it has not started and waits for it to finish.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}
