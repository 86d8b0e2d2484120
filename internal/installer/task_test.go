package installer

import (
	"testing"

	"github.com/3cpo-dev/appstore/internal/launcher"
)

func TestTaskStatusIsConsistent(t *testing.T) {
	task := newTask("vlc", &launcher.Process{})
	st := task.Status()
	if !st.Running || st.ReturnCode != nil {
		t.Fatalf("fresh task status = %+v", st)
	}

	// Exit code recorded, done not yet closed.
	code := 7
	task.mu.Lock()
	task.exitCode = &code
	task.mu.Unlock()
	st = task.Status()
	if st.Running || st.ReturnCode == nil || *st.ReturnCode != 7 {
		t.Fatalf("status with exit code = %+v", st)
	}

	task.mu.Lock()
	task.exitCode = nil
	task.mu.Unlock()
	task.finish(0)
	st = task.Status()
	if st.Running || st.ReturnCode == nil || *st.ReturnCode != 0 {
		t.Fatalf("finished status = %+v", st)
	}
	if task.Running() {
		t.Fatalf("Running after finish")
	}
}

func TestTaskSubscriberCount(t *testing.T) {
	task := newTask("vlc", &launcher.Process{})
	if task.subscribe() != 1 || task.subscribe() != 2 {
		t.Fatalf("subscribe counts wrong")
	}
	if task.unsubscribe() != 1 || task.unsubscribe() != 0 {
		t.Fatalf("unsubscribe counts wrong")
	}
}
