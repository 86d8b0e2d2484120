package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestSplitAddr(t *testing.T) {
	cases := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{"0.0.0.0:9000", "0.0.0.0", 9000},
		{":9000", "127.0.0.1", 9000},
		{"garbage", "127.0.0.1", 8000},
	}
	for _, tc := range cases {
		h, p := splitAddr(tc.addr, "127.0.0.1", 8000)
		if h != tc.wantHost || p != tc.wantPort {
			t.Fatalf("%s: got %s:%d", tc.addr, h, p)
		}
	}
}

func TestWaitForShutdown(t *testing.T) {
	errc := make(chan error, 1)
	errc <- http.ErrServerClosed
	if err := waitForShutdown(context.Background(), errc, nil); err != nil {
		t.Fatalf("closed server must not be an error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := waitForShutdown(ctx, make(chan error), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected shutdown on cancel, called=%v err=%v", called, err)
	}

	boom := errors.New("bind failed")
	errc <- boom
	if err := waitForShutdown(context.Background(), errc, nil); !errors.Is(err, boom) {
		t.Fatalf("expected listener error, got %v", err)
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ls", "install", "status", "check", "catalog", "version"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Fatalf("missing subcommand %s: %v", name, err)
		}
	}
}
