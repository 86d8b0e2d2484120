package launcher

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "install.sh")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func lookup(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, _ := strings.Cut(kv, "="); k == key {
			return v, true
		}
	}
	return "", false
}

func TestBuildEnvSetsFrontendWhenAbsent(t *testing.T) {
	env := BuildEnv([]string{"PATH=/bin"}, "noninteractive", nil)
	if v, _ := lookup(env, FrontendVar); v != "noninteractive" {
		t.Fatalf("frontend %q", v)
	}
}

func TestBuildEnvKeepsParentFrontend(t *testing.T) {
	env := BuildEnv([]string{FrontendVar + "=dialog"}, "noninteractive", nil)
	if v, _ := lookup(env, FrontendVar); v != "dialog" {
		t.Fatalf("frontend %q", v)
	}
	if len(env) != 1 {
		t.Fatalf("expected no duplicate entries, got %v", env)
	}
}

func TestBuildEnvOverrideWins(t *testing.T) {
	env := BuildEnv([]string{FrontendVar + "=dialog"}, "noninteractive", map[string]string{FrontendVar: "readline", "FOO": "bar"})
	if v, _ := lookup(env, FrontendVar); v != "readline" {
		t.Fatalf("frontend %q", v)
	}
	if v, _ := lookup(env, "FOO"); v != "bar" {
		t.Fatalf("FOO %q", v)
	}
}

func TestArgv(t *testing.T) {
	got := Argv(Spec{Prefix: []string{"sudo", "-E", "-S"}, Interpreter: "bash", ScriptPath: "/s/x.sh"})
	if strings.Join(got, " ") != "sudo -E -S bash /s/x.sh" {
		t.Fatalf("argv %v", got)
	}
}

func TestLaunchMergesOutput(t *testing.T) {
	script := writeScript(t, "echo out\necho err 1>&2\nexit 3\n")
	p, err := Launch(Spec{ScriptPath: script, WorkDir: filepath.Dir(script), Interpreter: "sh", Frontend: "noninteractive"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	out, err := io.ReadAll(p.Output)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	code, err := p.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if code != 3 {
		t.Fatalf("exit code %d", code)
	}
	if string(out) != "out\nerr\n" {
		t.Fatalf("output %q", out)
	}
	fi, err := os.Stat(script)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode()&0o100 == 0 {
		t.Fatalf("script not marked executable: %v", fi.Mode())
	}
}

func TestLaunchSeesFrontendHint(t *testing.T) {
	script := writeScript(t, "echo $"+FrontendVar+"\n")
	p, err := Launch(Spec{ScriptPath: script, Interpreter: "sh", Env: map[string]string{FrontendVar: "teletype"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	out, _ := io.ReadAll(p.Output)
	if _, err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if strings.TrimSpace(string(out)) != "teletype" {
		t.Fatalf("output %q", out)
	}
}

func TestLaunchMissingInterpreter(t *testing.T) {
	script := writeScript(t, "echo hi\n")
	if _, err := Launch(Spec{ScriptPath: script, Interpreter: "definitely-not-a-shell-xyz"}); err == nil {
		t.Fatalf("expected spawn error")
	}
}

func TestLaunchMissingScript(t *testing.T) {
	if _, err := Launch(Spec{ScriptPath: filepath.Join(t.TempDir(), "nope.sh"), Interpreter: "sh"}); err == nil {
		t.Fatalf("expected error for missing script")
	}
}
