package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// Store is a SQLite index of catalog items keyed by (os_id, key).
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts or replaces the item for osID.
func (s *Store) Upsert(ctx context.Context, osID string, it Item) error {
	env, err := json.Marshal(it.Env)
	if err != nil {
		return fmt.Errorf("encode env: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO software (os_id, key, name, requires_root, check_command, script_path, script_url, icon_url, env, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (os_id, key) DO UPDATE SET
    name = excluded.name,
    requires_root = excluded.requires_root,
    check_command = excluded.check_command,
    script_path = excluded.script_path,
    script_url = excluded.script_url,
    icon_url = excluded.icon_url,
    env = excluded.env,
    updated_at = CURRENT_TIMESTAMP`,
		osID, it.Key, it.Name, it.RequiresRoot, it.CheckCommand, it.ScriptPath, it.ScriptURL, it.IconURL, string(env))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", osID, it.Key, err)
	}
	return nil
}

const selectItem = `SELECT key, name, requires_root, check_command, script_path, script_url, icon_url, env FROM software`

func (s *Store) List(ctx context.Context, osID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, selectItem+` WHERE os_id = ? ORDER BY key`, osID)
	if err != nil {
		return nil, fmt.Errorf("list software: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) Get(ctx context.Context, osID, key string) (Item, error) {
	row := s.db.QueryRowContext(ctx, selectItem+` WHERE os_id = ? AND key = ?`, osID, key)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return it, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (Item, error) {
	var (
		it  Item
		env string
	)
	if err := sc.Scan(&it.Key, &it.Name, &it.RequiresRoot, &it.CheckCommand, &it.ScriptPath, &it.ScriptURL, &it.IconURL, &env); err != nil {
		return Item{}, err
	}
	if env != "" && env != "null" {
		if err := json.Unmarshal([]byte(env), &it.Env); err != nil {
			return Item{}, fmt.Errorf("decode env for %s: %w", it.Key, err)
		}
	}
	return it, nil
}

// Import copies every item src lists for osID into the store and returns the count.
func (s *Store) Import(ctx context.Context, src Source, osID string) (int, error) {
	items, err := src.List(ctx, osID)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if err := s.Upsert(ctx, osID, it); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// SQLite is a Source backed by a Store. Scripts must already be on local disk.
type SQLite struct {
	store *Store
}

func NewSQLite(store *Store) *SQLite { return &SQLite{store: store} }

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) List(ctx context.Context, osID string) ([]Item, error) {
	return s.store.List(ctx, osID)
}

func (s *SQLite) Resolve(ctx context.Context, osID, key string) (Item, error) {
	it, err := s.store.Get(ctx, osID, key)
	if err != nil {
		return Item{}, err
	}
	if _, err := os.Stat(it.ScriptPath); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrScriptMissing, it.ScriptPath)
	}
	return it, nil
}
