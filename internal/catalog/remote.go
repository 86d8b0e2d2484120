package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Remote talks to a catalog resource server and downloads scripts into a
// local directory before they run.
type Remote struct {
	base       *url.URL
	scriptsDir string
	list       *RetryableHTTPClient
	fetch      *RetryableHTTPClient
}

// NewRemote builds a client for base (e.g. http://host:8081). Listing
// retries transient failures; staging for an install makes one attempt.
func NewRemote(base, scriptsDir string, timeout time.Duration, requestsPerSecond float64) (*Remote, error) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return nil, errors.New("remote catalog: RESOURCE_SERVER_BASE is not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote catalog: parse base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Remote{
		base:       u,
		scriptsDir: scriptsDir,
		list:       NewRetryableHTTPClient(10*time.Second, requestsPerSecond, DefaultRetryConfig()),
		fetch:      NewRetryableHTTPClient(timeout, 0, NoRetry()),
	}, nil
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) endpoint(p string, osID string) string {
	u := *r.base
	u.Path = path.Join(u.Path, p)
	if osID != "" {
		u.RawQuery = url.Values{"os_id": {osID}}.Encode()
	}
	return u.String()
}

func (r *Remote) List(ctx context.Context, osID string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint("/api/v1/software", osID), nil)
	if err != nil {
		return nil, err
	}
	var list struct {
		Items []remoteItem `json:"items"`
	}
	if err := r.list.GetJSON(req, &list); err != nil {
		return nil, fmt.Errorf("list remote catalog: %w", err)
	}
	items := make([]Item, 0, len(list.Items))
	for _, it := range list.Items {
		items = append(items, it.item())
	}
	return items, nil
}

func (r *Remote) Resolve(ctx context.Context, osID, key string) (Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint("/api/v1/software/"+url.PathEscape(key), osID), nil)
	if err != nil {
		return Item{}, err
	}
	var remote remoteItem
	if err := r.fetch.GetJSON(req, &remote); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Item{}, fmt.Errorf("%w: fetch software info: %v", ErrScriptMissing, err)
	}
	if remote.ScriptURL == "" {
		return Item{}, fmt.Errorf("%w: remote catalog did not provide scriptUrl for %s", ErrScriptMissing, key)
	}

	item := remote.item()
	item.Key = key
	local, err := r.stage(ctx, key, remote.ScriptURL)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrScriptMissing, err)
	}
	item.ScriptPath = local
	return item, nil
}

// stage downloads scriptURL into scriptsDir and returns the local path.
func (r *Remote) stage(ctx context.Context, key, scriptURL string) (string, error) {
	ref, err := url.Parse(scriptURL)
	if err != nil {
		return "", fmt.Errorf("parse scriptUrl: %w", err)
	}
	src := r.base.ResolveReference(ref)

	name := path.Base(src.Path)
	if !strings.HasSuffix(name, ".sh") {
		name = key + ".sh"
	}
	if err := os.MkdirAll(r.scriptsDir, 0755); err != nil {
		return "", fmt.Errorf("mkdir scripts dir: %w", err)
	}
	dst, err := filepath.Abs(filepath.Join(r.scriptsDir, name))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.fetch.Do(req)
	if err != nil {
		return "", fmt.Errorf("download script: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download script: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("download script: %w", err)
	}
	if err := os.WriteFile(dst, body, 0755); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	log.Debug().Str("key", key).Str("url", src.String()).Str("path", dst).Msg("Script staged")
	return dst, nil
}

// remoteItem mirrors api.SoftwareItem; requires_root defaults to true when omitted.
type remoteItem struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	RequiresRoot *bool  `json:"requires_root"`
	CheckCommand string `json:"checkCommand"`
	IconURL      string `json:"iconUrl"`
	ScriptURL    string `json:"scriptUrl"`
}

func (it remoteItem) item() Item {
	return Item{
		Key:          it.Key,
		Name:         it.Name,
		RequiresRoot: requiresRoot(it.RequiresRoot),
		CheckCommand: it.CheckCommand,
		ScriptURL:    it.ScriptURL,
		IconURL:      it.IconURL,
	}
}
