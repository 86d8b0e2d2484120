package installer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/3cpo-dev/appstore/internal/launcher"
	"github.com/3cpo-dev/appstore/internal/output"
	"github.com/3cpo-dev/appstore/pkg/api"
)

// Task is one installation attempt. It owns its process and output buffer.
// States: running until the process exits, then completed with an exit code.
type Task struct {
	Key       string
	StartedAt time.Time

	process *launcher.Process
	output  *output.Buffer
	done    chan struct{}

	subscribers atomic.Int32

	mu         sync.RWMutex
	exitCode   *int
	finishedAt time.Time
}

func newTask(key string, proc *launcher.Process) *Task {
	return &Task{
		Key:       key,
		StartedAt: time.Now(),
		process:   proc,
		output:    output.NewBuffer(),
		done:      make(chan struct{}),
	}
}

// Running reports whether the process has not yet exited.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Done is closed once the exit code is recorded.
func (t *Task) Done() <-chan struct{} { return t.done }

// ExitCode returns the exit code once completed.
func (t *Task) ExitCode() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.exitCode == nil {
		return 0, false
	}
	return *t.exitCode, true
}

func (t *Task) Output() *output.Buffer { return t.output }

func (t *Task) PID() int { return t.process.PID() }

// Duration is the runtime so far, or the total once completed.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.finishedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.finishedAt.Sub(t.StartedAt)
}

// Status is a consistent snapshot: a return code is present exactly when
// the task is no longer running.
func (t *Task) Status() api.TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := api.TaskStatus{Key: t.Key, Running: t.exitCode == nil}
	if t.exitCode != nil {
		code := *t.exitCode
		st.ReturnCode = &code
	}
	return st
}

// subscribe and unsubscribe track live stream readers and return the new count.
func (t *Task) subscribe() int { return int(t.subscribers.Add(1)) }

func (t *Task) unsubscribe() int { return int(t.subscribers.Add(-1)) }

func (t *Task) finish(code int) {
	t.mu.Lock()
	t.exitCode = &code
	t.finishedAt = time.Now()
	t.mu.Unlock()
	close(t.done)
}
