package installer

import (
	"context"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/3cpo-dev/appstore/internal/catalog"
	"github.com/3cpo-dev/appstore/internal/telemetry"
	"github.com/3cpo-dev/appstore/pkg/api"
)

const (
	DefaultDetectTimeout = 5 * time.Second
	// DefaultDetectConcurrency bounds parallel probes when annotating a listing.
	DefaultDetectConcurrency = 8
)

// Detector answers whether a piece of software is already installed.
type Detector struct {
	Timeout     time.Duration
	Shell       string
	LookPath    func(file string) (string, error)
	Concurrency int
	// Pseudo names keys that are actions rather than packages; without a
	// check command they report not installed.
	Pseudo    map[string]bool
	Collector *telemetry.Collector
}

func NewDetector(timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	return &Detector{
		Timeout:     timeout,
		Shell:       "sh",
		LookPath:    exec.LookPath,
		Concurrency: DefaultDetectConcurrency,
		Pseudo:      map[string]bool{"fix_sources": true},
	}
}

// CheckInstalled runs checkCommand through the shell and reports whether it
// exited 0 within the timeout. Without a command it looks for an executable
// named key on PATH, unless key is a pseudo key. Failures of any kind mean false.
func (d *Detector) CheckInstalled(ctx context.Context, key, checkCommand string) bool {
	if checkCommand == "" {
		if d.Pseudo[key] {
			return false
		}
		lookPath := d.LookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		_, err := lookPath(key)
		return err == nil
	}

	timer := d.Collector.StartTimer(telemetry.DetectDuration, map[string]string{"key": key})
	defer timer.End()

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	shell := d.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", checkCommand)
	// Output is discarded; a backgrounded child must not hold Wait past the kill.
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			log.Debug().Str("key", key).Dur("timeout", d.Timeout).Msg("Install check timed out")
		}
		return false
	}
	return true
}

// Annotate converts items to their wire form with Installed filled in,
// probing up to Concurrency items at a time. Order is preserved.
func (d *Detector) Annotate(ctx context.Context, items []catalog.Item) []api.SoftwareItem {
	out := make([]api.SoftwareItem, len(items))
	g, gctx := errgroup.WithContext(ctx)
	limit := d.Concurrency
	if limit <= 0 {
		limit = DefaultDetectConcurrency
	}
	g.SetLimit(limit)
	for i, item := range items {
		out[i] = item.API()
		g.Go(func() error {
			out[i].Installed = d.CheckInstalled(gctx, item.Key, item.CheckCommand)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
