package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadSecretsEnv reads KEY=VALUE pairs from path. Blank lines and lines
// starting with # are ignored. A missing file is not an error.
func LoadSecretsEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return out, s.Err()
}
