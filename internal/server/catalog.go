package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/appstore/internal/catalog"
	"github.com/3cpo-dev/appstore/internal/telemetry"
	"github.com/3cpo-dev/appstore/pkg/api"
)

// DefaultOSID is assumed when a catalog request names no os_id.
const DefaultOSID = "ubuntu"

// CatalogServer is the resource server: it publishes a catalog source over
// /api/v1/software and serves the data root under /static.
type CatalogServer struct {
	Source     catalog.Source
	StaticRoot string
	Monitor    *telemetry.Monitor
	srv        *http.Server
}

func (c *CatalogServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(CORS([]string{"*"}))

	if c.Monitor != nil {
		r.Get("/health", c.Monitor.HealthHandler)
		r.Get("/metrics", c.Monitor.MetricsHandler)
	}
	r.Route("/api/v1/software", func(r chi.Router) {
		r.Get("/", c.handleList)
		r.Get("/{key}", c.handleGet)
	})
	if dirExists(c.StaticRoot) {
		r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.Dir(c.StaticRoot))))
	}
	return r
}

func (c *CatalogServer) handleList(w http.ResponseWriter, r *http.Request) {
	osID := osIDParam(r)
	items, err := c.Source.List(r.Context(), osID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	base := baseURL(r)
	out := make([]api.SoftwareItem, 0, len(items))
	for _, it := range items {
		out = append(out, publish(it, base))
	}
	writeJSON(w, http.StatusOK, api.SoftwareList{Items: out})
}

func (c *CatalogServer) handleGet(w http.ResponseWriter, r *http.Request) {
	it, err := c.Source.Resolve(r.Context(), osIDParam(r), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrScriptMissing) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, publish(it, baseURL(r)))
}

func osIDParam(r *http.Request) string {
	if v := r.URL.Query().Get("os_id"); v != "" {
		return v
	}
	return DefaultOSID
}

// publish turns root-relative URLs absolute so clients can fetch them directly.
func publish(it catalog.Item, base string) api.SoftwareItem {
	out := it.API()
	if strings.HasPrefix(out.IconURL, "/") {
		out.IconURL = base + out.IconURL
	}
	if strings.HasPrefix(out.ScriptURL, "/") {
		out.ScriptURL = base + out.ScriptURL
	}
	return out
}

// baseURL is scheme://host as seen by the client, honoring X-Forwarded-Host
// and X-Forwarded-Proto from a reverse proxy.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

func (c *CatalogServer) ListenAndServe(addr string) error {
	c.srv = newHTTPServer(addr, c.Handler())
	log.Info().Str("addr", addr).Str("source", c.Source.Name()).Msg("Catalog server listening")
	return c.srv.ListenAndServe()
}

func (c *CatalogServer) Shutdown(ctx context.Context) error {
	if c.srv == nil {
		return fmt.Errorf("server not running")
	}
	return c.srv.Shutdown(ctx)
}
