package escalate

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func fakeLookPath(present ...string) LookPathFunc {
	return func(file string) (string, error) {
		for _, p := range present {
			if p == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestSelect(t *testing.T) {
	cases := []struct {
		name         string
		requiresRoot bool
		goos         string
		tools        []string
		want         Method
		prefix       string
		wantErr      bool
	}{
		{"no root needed", false, "linux", nil, None, "", false},
		{"non linux host", true, "darwin", nil, None, "", false},
		{"polkit preferred", true, "linux", []string{"pkexec", "sudo"}, Polkit, "pkexec", false},
		{"sudo fallback", true, "linux", []string{"sudo"}, Sudo, "sudo -E -S", false},
		{"nothing available", true, "linux", nil, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Select(tc.requiresRoot, tc.goos, fakeLookPath(tc.tools...))
			if tc.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("expected ErrUnavailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if d.Method != tc.want {
				t.Fatalf("method %q, want %q", d.Method, tc.want)
			}
			if got := strings.Join(d.Prefix, " "); got != tc.prefix {
				t.Fatalf("prefix %q, want %q", got, tc.prefix)
			}
		})
	}
}
