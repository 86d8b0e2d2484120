package catalog

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strings"
)

// DetectOSID returns ID= from /etc/os-release, or runtime.GOOS.
func DetectOSID() string {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}
	defer f.Close()
	if id := parseOSRelease(f); id != "" {
		return id
	}
	return runtime.GOOS
}

func parseOSRelease(r io.Reader) string {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if v, ok := strings.CutPrefix(line, "ID="); ok {
			return strings.Trim(strings.TrimSpace(v), `"'`)
		}
	}
	return ""
}
