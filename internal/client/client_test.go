package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadEvents(t *testing.T) {
	body := "data: one\n\n: comment\n\ndata: two\ndata: more\n\ndata: \n\nevent: end\ndata: done\n\n"
	var got []string
	if err := readEvents(strings.NewReader(body), func(l string) { got = append(got, l) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{"one", "two\nmore", ""}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadEventsTruncated(t *testing.T) {
	err := readEvents(strings.NewReader("data: one\n\n"), func(string) {})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/install/{key}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.PathValue("key") == "nope" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"install nope: unknown software key"}`)
			return
		}
		_, _ = io.WriteString(w, `{"taskId":"vlc"}`)
	})
	mux.HandleFunc("GET /api/install/vlc/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"key":"vlc","running":false,"returnCode":0}`)
	})
	mux.HandleFunc("GET /api/install/vlc/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: hello\n\nevent: end\ndata: done\n\n")
	})
	mux.HandleFunc("GET /api/software", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("os_id") != "debian" {
			t.Errorf("os_id = %q", r.URL.Query().Get("os_id"))
		}
		_, _ = io.WriteString(w, `{"items":[{"key":"vlc","name":"VLC","requires_root":true,"iconUrl":"","installed":true}]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(ts.URL+"/", "tok")
	ctx := context.Background()

	id, err := c.Install(ctx, "vlc")
	if err != nil || id != "vlc" {
		t.Fatalf("install: %q %v", id, err)
	}
	_, err = c.Install(ctx, "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || !strings.Contains(apiErr.Detail, "unknown") {
		t.Fatalf("expected api error, got %v", err)
	}

	var lines []string
	if err := c.Stream(ctx, "vlc", func(l string) { lines = append(lines, l) }); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("lines %q", lines)
	}

	st, err := c.Status(ctx, "vlc")
	if err != nil || st.Running || st.ReturnCode == nil || *st.ReturnCode != 0 {
		t.Fatalf("status %+v %v", st, err)
	}

	items, err := c.List(ctx, "debian")
	if err != nil || len(items) != 1 || !items[0].Installed {
		t.Fatalf("list %+v %v", items, err)
	}
}
