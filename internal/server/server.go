// Package server exposes the installer over HTTP and serves the catalog
// resource API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/appstore/internal/installer"
	"github.com/3cpo-dev/appstore/internal/telemetry"
)

// Options configure the installer API.
type Options struct {
	Version     string
	OSID        string
	CORSOrigins []string
	Token       string
	// AssetsDir is served under /static and WebDir at / when they exist.
	AssetsDir string
	WebDir    string
}

type Server struct {
	opts       Options
	supervisor *installer.Supervisor
	detector   *installer.Detector
	monitor    *telemetry.Monitor
	srv        *http.Server
}

func New(sup *installer.Supervisor, det *installer.Detector, mon *telemetry.Monitor, opts Options) *Server {
	if det == nil {
		det = installer.NewDetector(0)
	}
	if mon == nil {
		mon = telemetry.NewMonitor(telemetry.NewCollector(false))
	}
	s := &Server{opts: opts, supervisor: sup, detector: det, monitor: mon}
	mon.RegisterHealthCheck("installer", s.installerHealth)
	return s
}

// Handler builds the router. API routes are mounted at the root and again
// under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(CORS(s.opts.CORSOrigins))

	r.Get("/health", s.monitor.HealthHandler)
	r.Get("/metrics", s.monitor.MetricsHandler)
	r.Get("/version", s.handleVersion)

	r.Group(func(r chi.Router) {
		r.Use(TokenAuth(s.opts.Token))
		s.apiRoutes(r)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(TokenAuth(s.opts.Token))
		s.apiRoutes(r)
	})

	if dirExists(s.opts.AssetsDir) {
		r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.Dir(s.opts.AssetsDir))))
	}
	if dirExists(s.opts.WebDir) {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.WebDir)))
	}
	return r
}

func (s *Server) apiRoutes(r chi.Router) {
	r.Get("/software", s.handleListSoftware)
	r.Post("/install/{key}", s.handleInstall)
	r.Get("/install/{key}/status", s.handleStatus)
	r.Get("/install/{key}/stream", s.handleStream)
}

func (s *Server) installerHealth() telemetry.HealthCheck {
	running := s.supervisor.Registry().Running()
	return telemetry.HealthCheck{
		Name:    "installer",
		Status:  telemetry.HealthStatusHealthy,
		Message: fmt.Sprintf("%d running", running),
		Details: map[string]string{"catalog": s.supervisor.Source().Name()},
	}
}

// ListenAndServe serves plain HTTP until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = newHTTPServer(addr, s.Handler())
	log.Info().Str("addr", addr).Msg("Installer API listening")
	return s.srv.ListenAndServe()
}

// ListenAndServeTLS serves HTTPS, optionally requiring client certificates.
func (s *Server) ListenAndServeTLS(addr string, config TLSConfig) error {
	tlsConfig, err := BuildTLS(config)
	if err != nil {
		return err
	}
	s.srv = newHTTPServer(addr, MTLS(config.RequireMTLS)(s.Handler()))
	s.srv.TLSConfig = tlsConfig
	log.Info().
		Str("addr", addr).
		Bool("mtls_required", config.RequireMTLS).
		Msg("Installer API listening with TLS")
	return s.srv.ListenAndServeTLS("", "")
}

// Shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return fmt.Errorf("server not running")
	}
	return s.srv.Shutdown(ctx)
}

// newHTTPServer leaves WriteTimeout unset; event streams last as long as an install.
func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func dirExists(dir string) bool {
	if dir == "" {
		return false
	}
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}
