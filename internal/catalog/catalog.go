// Package catalog resolves software keys to install scripts.
//
// A Source lists what can be installed for an OS and stages a key's script
// on local disk. Several sources exist (static config list, a data-root
// directory, a remote resource server over HTTP, a SQLite index, a data root
// reached over SFTP); the installer only sees the Source interface.
package catalog

import (
	"context"
	"errors"

	"github.com/3cpo-dev/appstore/pkg/api"
)

var (
	// ErrNotFound is returned when a key is not in the catalog.
	ErrNotFound = errors.New("unknown software key")
	// ErrScriptMissing is returned when a key is known but its script cannot be staged.
	ErrScriptMissing = errors.New("script not found")
)

// Item is a catalog entry. ScriptPath is set once the script is staged locally.
type Item struct {
	Key          string
	Name         string
	RequiresRoot bool
	CheckCommand string
	ScriptPath   string
	ScriptURL    string
	IconURL      string
	// Env holds per-install environment overrides.
	Env map[string]string
}

// API converts the item to its wire form.
func (i Item) API() api.SoftwareItem {
	name := i.Name
	if name == "" {
		name = i.Key
	}
	return api.SoftwareItem{
		Key:          i.Key,
		Name:         name,
		RequiresRoot: i.RequiresRoot,
		CheckCommand: i.CheckCommand,
		IconURL:      i.IconURL,
		ScriptURL:    i.ScriptURL,
	}
}

// Source is a pluggable catalog backend.
type Source interface {
	Name() string
	List(ctx context.Context, osID string) ([]Item, error)
	// Resolve returns the item for key with ScriptPath pointing to an
	// existing local file.
	Resolve(ctx context.Context, osID, key string) (Item, error)
}

// Metadata is the optional per-key JSON document of a data root.
type Metadata struct {
	Name         string            `json:"name"`
	RequiresRoot *bool             `json:"requires_root"`
	CheckCommand string            `json:"checkCommand"`
	Env          map[string]string `json:"env"`
}

// requiresRoot defaults to true when unset.
func requiresRoot(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
