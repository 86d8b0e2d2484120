package installer

import (
	"errors"
	"fmt"
)

// Start failure kinds. A *StartError unwraps to one of these.
var (
	ErrUnknownSoftware       = errors.New("unknown software key")
	ErrScriptMissing         = errors.New("script missing")
	ErrEscalationUnavailable = errors.New("privilege escalation unavailable")
	ErrSpawn                 = errors.New("spawn failed")
)

// StartError is returned by Start when no process could be launched.
type StartError struct {
	Key   string
	Kind  error
	Cause error
}

func (e *StartError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("install %s: %v", e.Key, e.Kind)
	}
	return fmt.Sprintf("install %s: %v: %v", e.Key, e.Kind, e.Cause)
}

func (e *StartError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func startError(key string, kind, cause error) error {
	return &StartError{Key: key, Kind: kind, Cause: cause}
}
