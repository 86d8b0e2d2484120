package installer

import (
	"sort"
	"sync"
)

// Registry maps task keys to their latest Task. It is created once per
// service and lives as long as the process; nothing is persisted.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[string]*Task{}}
}

func (r *Registry) Get(key string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	return t, ok
}

// Put stores t under its key, replacing any previous task.
func (r *Registry) Put(t *Task) {
	r.mu.Lock()
	r.tasks[t.Key] = t
	r.mu.Unlock()
}

func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.tasks))
	for k := range r.tasks {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Running counts tasks whose process has not exited.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.Running() {
			n++
		}
	}
	return n
}
