package catalog

import (
	"fmt"
	"sort"
	"time"
)

// Factory builds a Source from configuration.
type Factory func(cfg Config) (Source, error)

// Registry maps source names to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Open builds the source named by cfg.Source.
func (r *Registry) Open(cfg Config) (Source, error) {
	f, ok := r.factories[cfg.Source]
	if !ok {
		return nil, fmt.Errorf("catalog source not registered: %q (have %v)", cfg.Source, r.Names())
	}
	return f(cfg)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry knows every built-in source.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("static", func(cfg Config) (Source, error) {
		return NewStatic(cfg.ScriptsDir, cfg.Items), nil
	})
	r.Register("dir", func(cfg Config) (Source, error) {
		if cfg.DataRoot == "" {
			return nil, fmt.Errorf("dir catalog: data_root is required")
		}
		return NewDir(cfg.DataRoot), nil
	})
	r.Register("remote", func(cfg Config) (Source, error) {
		return NewRemote(cfg.Remote.BaseURL, cfg.ScriptsDir,
			time.Duration(cfg.Remote.TimeoutSeconds)*time.Second, cfg.Remote.RequestsPerSecond)
	})
	r.Register("sqlite", func(cfg Config) (Source, error) {
		if cfg.SQLite.Path == "" {
			return nil, fmt.Errorf("sqlite catalog: path is required")
		}
		store, err := NewStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite catalog: %w", err)
		}
		return NewSQLite(store), nil
	})
	r.Register("sftp", func(cfg Config) (Source, error) {
		return NewSFTP(cfg.SFTP, cfg.ScriptsDir)
	})
	return r
}
