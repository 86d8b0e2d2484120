package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/appstore/internal/installer"
	"github.com/3cpo-dev/appstore/pkg/api"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, api.ErrorResponse{Detail: detail})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
}

func (s *Server) handleListSoftware(w http.ResponseWriter, r *http.Request) {
	osID := r.URL.Query().Get("os_id")
	if osID == "" {
		osID = s.opts.OSID
	}
	items, err := s.supervisor.Source().List(r.Context(), osID)
	if err != nil {
		log.Warn().Err(err).Str("os_id", osID).Msg("Catalog listing failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.SoftwareList{Items: s.detector.Annotate(r.Context(), items)})
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	id, err := s.supervisor.Start(r.Context(), key)
	if err != nil {
		var se *installer.StartError
		if errors.As(err, &se) {
			writeError(w, http.StatusBadRequest, se.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.InstallResponse{TaskID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.supervisor.Status(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleStream sends one "data:" event per output line and a final
// "end" event once the install has exited and its output is drained.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	err := s.supervisor.Stream(r.Context(), key, func(line string) error {
		if _, err := io.WriteString(w, sseEvent(line)); err != nil {
			return err
		}
		flush()
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Stream client went away")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", api.EventEnd, api.EventEndData)
	flush()
}

// sseEvent frames one output line as a single event. A bare CR ends a field
// in event-stream syntax, so each CR-separated piece gets its own data field.
func sseEvent(line string) string {
	var b strings.Builder
	for _, piece := range strings.Split(line, "\r") {
		b.WriteString("data: ")
		b.WriteString(piece)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
