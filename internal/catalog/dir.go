package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Dir reads a data root laid out as
//
//	software/<os>/scripts/<key>.sh
//	software/<os>/icons/<key>.(png|svg)
//	software/<os>/metadata/<key>.json   (optional)
//
// ScriptURL and IconURL are relative to the /static mount of the data root.
type Dir struct {
	root string
}

func NewDir(root string) *Dir { return &Dir{root: root} }

func (d *Dir) Name() string { return "dir" }

func (d *Dir) Root() string { return d.root }

func (d *Dir) List(ctx context.Context, osID string) ([]Item, error) {
	if err := validName(osID); err != nil {
		return nil, err
	}
	scripts, err := filepath.Glob(filepath.Join(d.root, "software", osID, "scripts", "*.sh"))
	if err != nil {
		return nil, fmt.Errorf("scan scripts: %w", err)
	}
	sort.Strings(scripts)
	items := make([]Item, 0, len(scripts))
	for _, script := range scripts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items = append(items, d.item(osID, script))
	}
	return items, nil
}

func (d *Dir) Resolve(ctx context.Context, osID, key string) (Item, error) {
	if err := validName(osID); err != nil {
		return Item{}, err
	}
	if err := validName(key); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	script := filepath.Join(d.root, "software", osID, "scripts", key+".sh")
	if _, err := os.Stat(script); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return d.item(osID, script), ctx.Err()
}

func (d *Dir) item(osID, script string) Item {
	osDir := filepath.Join(d.root, "software", osID)
	name := filepath.Base(script)
	key := strings.TrimSuffix(name, ".sh")
	meta := loadMetadata(filepath.Join(osDir, "metadata", key+".json"))

	icon := ""
	for _, ext := range []string{"png", "svg"} {
		candidate := key + "." + ext
		if _, err := os.Stat(filepath.Join(osDir, "icons", candidate)); err == nil {
			icon = path.Join("/static/software", osID, "icons", candidate)
			break
		}
	}
	abs, err := filepath.Abs(script)
	if err != nil {
		abs = script
	}
	return Item{
		Key:          key,
		Name:         meta.Name,
		RequiresRoot: requiresRoot(meta.RequiresRoot),
		CheckCommand: meta.CheckCommand,
		ScriptPath:   abs,
		ScriptURL:    path.Join("/static/software", osID, "scripts", name),
		IconURL:      icon,
		Env:          meta.Env,
	}
}

// loadMetadata returns an empty document when the file is absent or invalid.
func loadMetadata(file string) Metadata {
	var m Metadata
	data, err := os.ReadFile(file)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("file", file).Msg("Ignoring invalid metadata")
		return Metadata{}
	}
	return m
}

// validName rejects values that could escape the data root.
func validName(name string) error {
	switch {
	case name == "":
		return errors.New("name is required")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("name %q must not contain path separators", name)
	case strings.Contains(name, ".."), name[0] == '.':
		return fmt.Errorf("name %q is not allowed", name)
	}
	return nil
}
