package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/3cpo-dev/appstore/internal/catalog"
	"github.com/3cpo-dev/appstore/pkg/api"
)

func newDataRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	osDir := filepath.Join(root, "software", "ubuntu")
	for _, d := range []string{"scripts", "icons", "metadata"} {
		if err := os.MkdirAll(filepath.Join(osDir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		"scripts/vlc.sh":       "echo vlc\n",
		"icons/vlc.png":        "png",
		"metadata/vlc.json":    `{"name":"VLC","requires_root":true,"checkCommand":"command -v vlc"}`,
		"scripts/htop.sh":      "echo htop\n",
		"metadata/broken.json": "{",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(osDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestCatalogList(t *testing.T) {
	root := newDataRoot(t)
	cs := &CatalogServer{Source: catalog.NewDir(root), StaticRoot: root}
	h := cs.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/software?os_id=ubuntu", nil)
	req.Header.Set("X-Forwarded-Host", "store.example:8001")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var list api.SoftwareList
	mustUnmarshal(t, rr.Body.Bytes(), &list)
	if len(list.Items) != 2 {
		t.Fatalf("items %+v", list.Items)
	}
	htop, vlc := list.Items[0], list.Items[1]
	if htop.Key != "htop" || htop.IconURL != "" || !htop.RequiresRoot {
		t.Fatalf("htop = %+v", htop)
	}
	if vlc.Name != "VLC" || vlc.CheckCommand != "command -v vlc" {
		t.Fatalf("vlc = %+v", vlc)
	}
	if vlc.IconURL != "http://store.example:8001/static/software/ubuntu/icons/vlc.png" {
		t.Fatalf("icon url %q", vlc.IconURL)
	}
	if vlc.ScriptURL != "http://store.example:8001/static/software/ubuntu/scripts/vlc.sh" {
		t.Fatalf("script url %q", vlc.ScriptURL)
	}
}

func TestCatalogGetAndStatic(t *testing.T) {
	root := newDataRoot(t)
	cs := &CatalogServer{Source: catalog.NewDir(root), StaticRoot: root}
	h := cs.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/software/vlc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var it api.SoftwareItem
	mustUnmarshal(t, rr.Body.Bytes(), &it)
	if it.Key != "vlc" || it.ScriptURL != "http://example.com/static/software/ubuntu/scripts/vlc.sh" {
		t.Fatalf("item = %+v", it)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/software/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing key status %d", rr.Code)
	}
	var e api.ErrorResponse
	mustUnmarshal(t, rr.Body.Bytes(), &e)
	if e.Detail != "not found" {
		t.Fatalf("detail %q", e.Detail)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/software/ubuntu/scripts/vlc.sh", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "echo vlc\n" {
		t.Fatalf("static script: %d %q", rr.Code, rr.Body.String())
	}
}

func TestRemoteSourceAgainstCatalogServer(t *testing.T) {
	root := newDataRoot(t)
	ts := httptest.NewServer((&CatalogServer{Source: catalog.NewDir(root), StaticRoot: root}).Handler())
	defer ts.Close()

	remote, err := catalog.NewRemote(ts.URL+"/", t.TempDir(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	items, err := remote.List(t.Context(), "ubuntu")
	if err != nil || len(items) != 2 {
		t.Fatalf("list: %v %+v", err, items)
	}
	it, err := remote.Resolve(t.Context(), "ubuntu", "vlc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, err := os.ReadFile(it.ScriptPath)
	if err != nil || string(data) != "echo vlc\n" {
		t.Fatalf("staged script: %q %v", data, err)
	}
}
