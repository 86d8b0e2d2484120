// Package installer runs install scripts as supervised tasks.
//
// A Supervisor resolves a software key through a catalog Source, picks a
// privilege escalation prefix, launches the script and records the running
// Task in a Registry. Output is captured into a replayable buffer so that
// any number of clients can stream it, from the first line, at any time.
package installer

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/3cpo-dev/appstore/internal/catalog"
	"github.com/3cpo-dev/appstore/internal/escalate"
	"github.com/3cpo-dev/appstore/internal/launcher"
	"github.com/3cpo-dev/appstore/internal/telemetry"
	"github.com/3cpo-dev/appstore/pkg/api"
)

// LaunchFunc starts a script. launcher.Launch is the default.
type LaunchFunc func(launcher.Spec) (*launcher.Process, error)

// Options tune a Supervisor. Zero values select defaults.
type Options struct {
	OSID        string
	Interpreter string
	// WorkDir is the working directory of every script. Empty means the
	// directory holding the script.
	WorkDir      string
	Frontend     string
	PollInterval time.Duration
	// StartTimeout bounds catalog resolution and script staging in Start.
	StartTimeout time.Duration
	GOOS         string
	LookPath     escalate.LookPathFunc
	Launch       LaunchFunc
	Collector    *telemetry.Collector
}

const (
	DefaultInterpreter  = "bash"
	DefaultFrontend     = "noninteractive"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStartTimeout = 2 * time.Minute
)

type Supervisor struct {
	source   catalog.Source
	registry *Registry
	opts     Options
	starts   singleflight.Group
}

func NewSupervisor(source catalog.Source, registry *Registry, opts Options) *Supervisor {
	if registry == nil {
		registry = NewRegistry()
	}
	if opts.Interpreter == "" {
		opts.Interpreter = DefaultInterpreter
	}
	if opts.Frontend == "" {
		opts.Frontend = DefaultFrontend
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Launch == nil {
		opts.Launch = launcher.Launch
	}
	return &Supervisor{source: source, registry: registry, opts: opts}
}

func (s *Supervisor) Registry() *Registry { return s.registry }

func (s *Supervisor) Source() catalog.Source { return s.source }

// Start launches the installer for key, or attaches to the task already
// running for it. The returned task id is the key itself. Concurrent calls
// for the same key share one launch.
func (s *Supervisor) Start(ctx context.Context, key string) (string, error) {
	if t, ok := s.registry.Get(key); ok && t.Running() {
		s.opts.Collector.Counter(telemetry.InstallAttached, 1, map[string]string{"key": key})
		log.Debug().Str("key", key).Int("pid", t.PID()).Msg("Install already running, attaching")
		return key, nil
	}
	// The flight outlives the caller that opened it: other callers share its
	// result, so one client going away must not fail them all.
	_, err, _ := s.starts.Do(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StartTimeout)
		defer cancel()
		return nil, s.start(fctx, key)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *Supervisor) start(ctx context.Context, key string) error {
	// Another caller may have launched between our check and the flight.
	if t, ok := s.registry.Get(key); ok && t.Running() {
		return nil
	}

	item, err := s.source.Resolve(ctx, s.opts.OSID, key)
	if err != nil {
		kind := ErrScriptMissing
		if errors.Is(err, catalog.ErrNotFound) {
			kind = ErrUnknownSoftware
		}
		return s.fail(key, kind, err)
	}

	decision, err := escalate.Select(item.RequiresRoot, s.opts.GOOS, s.opts.LookPath)
	if err != nil {
		return s.fail(key, ErrEscalationUnavailable, err)
	}

	workDir := s.opts.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(item.ScriptPath)
	}
	proc, err := s.opts.Launch(launcher.Spec{
		ScriptPath:  item.ScriptPath,
		WorkDir:     workDir,
		Interpreter: s.opts.Interpreter,
		Prefix:      decision.Prefix,
		Frontend:    s.opts.Frontend,
		Env:         item.Env,
	})
	if err != nil {
		return s.fail(key, ErrSpawn, err)
	}

	task := newTask(key, proc)
	s.registry.Put(task)
	s.opts.Collector.Counter(telemetry.InstallStarted, 1, map[string]string{
		"key":        key,
		"escalation": string(decision.Method),
	})
	log.Info().
		Str("key", key).
		Str("script", item.ScriptPath).
		Str("escalation", string(decision.Method)).
		Int("pid", task.PID()).
		Msg("Install started")

	go s.pump(task)
	go s.wait(task)
	return nil
}

func (s *Supervisor) fail(key string, kind, cause error) error {
	s.opts.Collector.Counter(telemetry.InstallStartFailed, 1, map[string]string{"key": key, "reason": kind.Error()})
	log.Warn().Err(cause).Str("key", key).Msg("Install could not start")
	return startError(key, kind, cause)
}

func (s *Supervisor) pump(t *Task) {
	defer t.process.Output.Close()
	n, err := t.output.Pump(t.process.Output)
	if err != nil {
		log.Debug().Err(err).Str("key", t.Key).Msg("Output read ended with error")
	}
	s.opts.Collector.Histogram(telemetry.InstallOutputLines, float64(n), map[string]string{"key": t.Key})
}

func (s *Supervisor) wait(t *Task) {
	code, err := t.process.Wait()
	if err != nil {
		log.Warn().Err(err).Str("key", t.Key).Msg("Wait on install process failed")
	}
	t.finish(code)
	s.opts.Collector.Counter(telemetry.InstallCompleted, 1, map[string]string{
		"key":       t.Key,
		"exit_code": strconv.Itoa(code),
	})
	s.opts.Collector.Timer(telemetry.InstallDuration, t.Duration(), map[string]string{"key": t.Key})
	log.Info().
		Str("key", t.Key).
		Int("return_code", code).
		Dur("duration", t.Duration()).
		Msg("Install finished")
}

// Status reports the latest task for key. ok is false if none was started.
func (s *Supervisor) Status(key string) (api.TaskStatus, bool) {
	t, ok := s.registry.Get(key)
	if !ok {
		return api.TaskStatus{}, false
	}
	return t.Status(), true
}

// Stream replays the task's output from the first line and follows it live,
// calling emit per line. It returns nil once the task has exited and all
// output has been delivered, ctx.Err() if the caller went away, or the first
// emit error. A key that was never started yields no lines.
func (s *Supervisor) Stream(ctx context.Context, key string, emit func(line string) error) error {
	t, ok := s.registry.Get(key)
	if !ok {
		return nil
	}
	sub := t.output.Subscribe(t.Done(), s.opts.PollInterval)
	labels := map[string]string{"key": key}
	s.opts.Collector.Gauge(telemetry.StreamSubscribers, float64(t.subscribe()), labels)
	defer func() {
		s.opts.Collector.Gauge(telemetry.StreamSubscribers, float64(t.unsubscribe()), labels)
	}()

	for {
		line, ok := sub.Next(ctx)
		if !ok {
			break
		}
		if err := emit(line); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
