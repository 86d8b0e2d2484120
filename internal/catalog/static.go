package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StaticEntry is one item of a config-embedded software list.
type StaticEntry struct {
	Key          string            `yaml:"key"`
	Name         string            `yaml:"name"`
	ScriptName   string            `yaml:"script_name"`
	Icon         string            `yaml:"icon"`
	RequiresRoot *bool             `yaml:"requires_root"`
	CheckCommand string            `yaml:"check_command"`
	Env          map[string]string `yaml:"env"`
}

// Static serves a fixed list with scripts in a local directory. It ignores osID.
type Static struct {
	scriptsDir string
	entries    []StaticEntry
}

func NewStatic(scriptsDir string, entries []StaticEntry) *Static {
	return &Static{scriptsDir: scriptsDir, entries: entries}
}

func (s *Static) Name() string { return "static" }

func (s *Static) List(ctx context.Context, osID string) ([]Item, error) {
	items := make([]Item, 0, len(s.entries))
	for _, e := range s.entries {
		items = append(items, s.item(e))
	}
	return items, ctx.Err()
}

func (s *Static) Resolve(ctx context.Context, osID, key string) (Item, error) {
	for _, e := range s.entries {
		if e.Key != key {
			continue
		}
		it := s.item(e)
		if _, err := os.Stat(it.ScriptPath); err != nil {
			return Item{}, fmt.Errorf("%w: %s", ErrScriptMissing, it.ScriptPath)
		}
		return it, nil
	}
	return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (s *Static) item(e StaticEntry) Item {
	script := e.ScriptName
	if script == "" {
		script = e.Key + ".sh"
	}
	path, err := filepath.Abs(filepath.Join(s.scriptsDir, script))
	if err != nil {
		path = filepath.Join(s.scriptsDir, script)
	}
	icon := ""
	if e.Icon != "" {
		icon = "/static/icons/" + filepath.Base(e.Icon)
	}
	return Item{
		Key:          e.Key,
		Name:         e.Name,
		RequiresRoot: requiresRoot(e.RequiresRoot),
		CheckCommand: e.CheckCommand,
		ScriptPath:   path,
		IconURL:      icon,
		Env:          e.Env,
	}
}
