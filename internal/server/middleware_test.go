package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func mustUnmarshal(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
}

func TestLoggerKeepsFlusher(t *testing.T) {
	var flushed bool
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("wrapped writer lost http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
		f.Flush()
		flushed = true
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !flushed || !rr.Flushed || rr.Code != http.StatusTeapot {
		t.Fatalf("flushed=%v recorder=%v code=%d", flushed, rr.Flushed, rr.Code)
	}
}

func TestMTLSRequired(t *testing.T) {
	h := MTLS(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without client cert, got %d", rr.Code)
	}

	h = MTLS(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when not required, got %d", rr.Code)
	}
}

func TestBuildTLSRequiresKeyPair(t *testing.T) {
	if _, err := BuildTLS(TLSConfig{}); err == nil {
		t.Fatalf("expected error without cert and key")
	}
}

func TestBaseURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "localhost:8001"
	if got := baseURL(r); got != "http://localhost:8001" {
		t.Fatalf("base %q", got)
	}
	r.Header.Set("X-Forwarded-Host", "store.example")
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := baseURL(r); got != "https://store.example" {
		t.Fatalf("base %q", got)
	}
}
