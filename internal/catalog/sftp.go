package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	gssh "github.com/3cpo-dev/appstore/internal/ssh"
)

// SFTP reads a data root (same layout as Dir) on a remote host and pulls
// scripts into a local directory on Resolve. Each call uses its own connection.
type SFTP struct {
	client     *gssh.Client
	root       string
	scriptsDir string
}

// NewSFTP loads the key and strict known_hosts callback described by cfg.
func NewSFTP(cfg SFTPConfig, scriptsDir string) (*SFTP, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("sftp catalog: addr is required")
	}
	signer, err := gssh.LoadPrivateKeySigner(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("sftp catalog: %w", err)
	}
	kh, err := gssh.LoadKnownHostsCallback(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("sftp catalog: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &SFTP{
		client:     &gssh.Client{Addr: cfg.Addr, User: cfg.User, Signer: signer, KnownHosts: kh, Timeout: timeout},
		root:       root,
		scriptsDir: scriptsDir,
	}, nil
}

func (s *SFTP) Name() string { return "sftp" }

func (s *SFTP) osDir(osID string) string {
	return path.Join(s.root, "software", osID)
}

func (s *SFTP) List(ctx context.Context, osID string) ([]Item, error) {
	if err := validName(osID); err != nil {
		return nil, err
	}
	sess, err := gssh.OpenSession(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	entries, err := sess.ReadDir(path.Join(s.osDir(osID), "scripts"))
	if err != nil {
		// No scripts directory means no software for this OS.
		log.Debug().Err(err).Str("os_id", osID).Msg("Remote scripts dir unreadable")
		return nil, nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sh") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	items := make([]Item, 0, len(names))
	for _, name := range names {
		items = append(items, s.item(sess, osID, strings.TrimSuffix(name, ".sh")))
	}
	return items, nil
}

func (s *SFTP) Resolve(ctx context.Context, osID, key string) (Item, error) {
	if err := validName(osID); err != nil {
		return Item{}, err
	}
	if err := validName(key); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	sess, err := gssh.OpenSession(ctx, s.client)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrScriptMissing, err)
	}
	defer sess.Close()

	remote := path.Join(s.osDir(osID), "scripts", key+".sh")
	if !sess.Exists(remote) {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	it := s.item(sess, osID, key)
	local, err := filepath.Abs(filepath.Join(s.scriptsDir, key+".sh"))
	if err != nil {
		return Item{}, err
	}
	if err := sess.PullFile(ctx, remote, local); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrScriptMissing, err)
	}
	it.ScriptPath = local
	return it, nil
}

func (s *SFTP) item(sess *gssh.Session, osID, key string) Item {
	dir := s.osDir(osID)
	var meta Metadata
	if data, err := sess.ReadFile(path.Join(dir, "metadata", key+".json")); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Ignoring invalid remote metadata")
			meta = Metadata{}
		}
	}
	icon := ""
	for _, ext := range []string{"png", "svg"} {
		if sess.Exists(path.Join(dir, "icons", key+"."+ext)) {
			icon = path.Join("/static/software", osID, "icons", key+"."+ext)
			break
		}
	}
	return Item{
		Key:          key,
		Name:         meta.Name,
		RequiresRoot: requiresRoot(meta.RequiresRoot),
		CheckCommand: meta.CheckCommand,
		ScriptURL:    path.Join("/static/software", osID, "scripts", key+".sh"),
		IconURL:      icon,
		Env:          meta.Env,
	}
}
