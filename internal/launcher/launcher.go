package launcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// FrontendVar is the package-manager front-end hint set for every install.
const FrontendVar = "DEBIAN_FRONTEND"

// Spec describes one script invocation.
type Spec struct {
	ScriptPath  string
	WorkDir     string
	Interpreter string
	Prefix      []string
	// Frontend is the default value of FrontendVar when the parent leaves it unset.
	Frontend string
	// Env overrides individual variables, FrontendVar included.
	Env map[string]string
}

// Process is a started script. Output carries stdout and stderr merged.
type Process struct {
	Cmd    *exec.Cmd
	Output io.ReadCloser
}

// PID returns the process id, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd == nil || p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit code.
// A process that ended without a code (signal, wait failure) reports -1.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Argv builds prefix + interpreter + script.
func Argv(spec Spec) []string {
	argv := make([]string, 0, len(spec.Prefix)+2)
	argv = append(argv, spec.Prefix...)
	if spec.Interpreter != "" {
		argv = append(argv, spec.Interpreter)
	}
	return append(argv, spec.ScriptPath)
}

// Launch starts the script. stdin is left unconnected (/dev/null).
func Launch(spec Spec) (*Process, error) {
	if _, err := os.Stat(spec.ScriptPath); err != nil {
		return nil, fmt.Errorf("stat script: %w", err)
	}
	markExecutable(spec.ScriptPath)

	argv := Argv(spec)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = BuildEnv(os.Environ(), spec.Frontend, spec.Env)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	_ = pw.Close()

	log.Debug().
		Strs("argv", argv).
		Str("dir", spec.WorkDir).
		Int("pid", cmd.Process.Pid).
		Msg("Script launched")

	return &Process{Cmd: cmd, Output: pr}, nil
}

// BuildEnv copies base, sets FrontendVar to frontend only when absent, then
// applies overrides.
func BuildEnv(base []string, frontend string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides)+1)
	index := map[string]int{}
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if i, ok := index[k]; ok {
			env[i] = kv
			continue
		}
		index[k] = len(env)
		env = append(env, kv)
	}
	set := func(k, v string) {
		if i, ok := index[k]; ok {
			env[i] = k + "=" + v
			return
		}
		index[k] = len(env)
		env = append(env, k+"="+v)
	}
	if _, ok := index[FrontendVar]; !ok && frontend != "" {
		set(FrontendVar, frontend)
	}
	for k, v := range overrides {
		set(k, v)
	}
	return env
}

// markExecutable is best effort; the bit may already be set or unsupported.
func markExecutable(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	if err := os.Chmod(path, fi.Mode()|0o111); err != nil {
		log.Debug().Err(err).Str("script", path).Msg("chmod failed, continuing")
	}
}
