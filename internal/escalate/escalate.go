package escalate

import (
	"errors"
	"fmt"
	"os/exec"
)

// Method identifies how a script is elevated.
type Method string

const (
	None   Method = "none"
	Polkit Method = "pkexec"
	Sudo   Method = "sudo"
)

// Platform on which escalation is meaningful.
const Platform = "linux"

// ErrUnavailable is returned when root is required but no elevation tool exists.
var ErrUnavailable = errors.New("no pkexec or sudo available for privilege escalation")

// LookPathFunc resolves a tool name on the search path.
type LookPathFunc func(file string) (string, error)

// Decision is the chosen escalation. Prefix is prepended to the script invocation.
type Decision struct {
	Method Method
	Prefix []string
}

// Select picks an escalation prefix. pkexec wins over sudo; sudo keeps the
// caller's environment (-E) and reads any password from stdin (-S).
func Select(requiresRoot bool, goos string, lookPath LookPathFunc) (Decision, error) {
	if !requiresRoot || goos != Platform {
		return Decision{Method: None}, nil
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath("pkexec"); err == nil {
		return Decision{Method: Polkit, Prefix: []string{"pkexec"}}, nil
	}
	if _, err := lookPath("sudo"); err == nil {
		return Decision{Method: Sudo, Prefix: []string{"sudo", "-E", "-S"}}, nil
	}
	return Decision{}, fmt.Errorf("escalate on %s: %w", goos, ErrUnavailable)
}
