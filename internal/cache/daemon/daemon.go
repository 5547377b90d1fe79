// Package daemon keeps the card cache current in the background.
//
// The daemon:
// 1. Runs a card and taboo sync pass immediately, then every Interval
// 2. Retries failed passes with exponential backoff capped at MaxBackoff
// 3. Watches RulesDir and refreshes the rules glossary when a bundle changes
// 4. Reports every run to an optional Sink
//
// Passes and rule refreshes never overlap.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/pipeline"
)

// Kinds of run reported to a Sink.
const (
	KindPass  = "pass"
	KindRules = "rules"
)

// Runner performs the work of a daemon tick. *pipeline.Pipeline implements it.
type Runner interface {
	RunPass(ctx context.Context) (*pipeline.Summary, error)
	RefreshRules(ctx context.Context) error
}

// Sink observes daemon runs. Calls happen on daemon goroutines and must not block.
type Sink interface {
	SyncStarted(kind string)
	SyncCompleted(kind string, sum *pipeline.Summary)
	SyncFailed(kind string, err error, retryIn time.Duration)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between successful passes
	Interval time.Duration

	// InitialBackoff is the first retry delay after a failed pass
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration

	// RulesDir is watched for rule bundle changes; empty disables watching
	RulesDir string

	// DebounceInterval is how long a rules change must settle before refreshing
	DebounceInterval time.Duration

	Logger *log.Logger
	Sink   Sink
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         6 * time.Hour,
		InitialBackoff:   30 * time.Second,
		MaxBackoff:       time.Hour,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	out := *c
	if out.Interval <= 0 {
		out.Interval = def.Interval
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = def.MaxBackoff
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = min(def.InitialBackoff, out.MaxBackoff)
	}
	if out.DebounceInterval <= 0 {
		out.DebounceInterval = def.DebounceInterval
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	return &out
}

// Daemon schedules sync passes and rules refreshes.
type Daemon struct {
	runner Runner
	config *Config

	watcher   *fsnotify.Watcher
	pendingAt time.Time
	pendingMu sync.Mutex

	// runMu keeps passes and rules refreshes from overlapping
	runMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon around runner. A nil config uses DefaultConfig.
func New(runner Runner, cfg *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	var watcher *fsnotify.Watcher
	if cfg.RulesDir != "" {
		info, err := os.Stat(cfg.RulesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to stat rules directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("rules path %s is not a directory", cfg.RulesDir)
		}
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		runner:  runner,
		config:  cfg,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %s, max backoff %s)", d.config.Interval, d.config.MaxBackoff)

	if d.watcher != nil {
		if err := d.watcher.Add(d.config.RulesDir); err != nil {
			d.cancel()
			return fmt.Errorf("failed to watch rules directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.config.RulesDir)

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChangeQueue()
	}

	d.wg.Add(1)
	go d.schedule()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for in-flight work to finish.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if d.watcher != nil {
			if err := d.watcher.Close(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

func (d *Daemon) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.config.InitialBackoff
	bo.MaxInterval = d.config.MaxBackoff
	// never give up; the daemon keeps retrying until stopped
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// retryDelay returns the next backoff delay. Jitter can push the raw value
// past MaxInterval, so it is clamped again here.
func (d *Daemon) retryDelay(bo backoff.BackOff) time.Duration {
	wait := bo.NextBackOff()
	if wait == backoff.Stop || wait > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return wait
}

// schedule runs passes back to back, waiting Interval after a success and
// the next backoff delay after a failure.
func (d *Daemon) schedule() {
	defer d.wg.Done()

	bo := d.newBackoff()
	for {
		wait := d.config.Interval
		if err := d.pass(); err != nil {
			if d.ctx.Err() != nil {
				return
			}
			wait = d.retryDelay(bo)
			d.config.Logger.Printf("Sync pass failed, retrying in %s: %v", wait.Round(time.Millisecond), err)
			if d.config.Sink != nil {
				d.config.Sink.SyncFailed(KindPass, err, wait)
			}
		} else {
			bo.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (d *Daemon) pass() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.config.Sink != nil {
		d.config.Sink.SyncStarted(KindPass)
	}
	sum, err := d.runner.RunPass(d.ctx)
	if err != nil {
		return err
	}
	if sum != nil && sum.NotModified() {
		d.config.Logger.Printf("Sync pass complete: not modified (%s)", sum.Duration.Round(time.Millisecond))
	} else if sum != nil {
		d.config.Logger.Printf("Sync pass complete: %d rows in %s", sum.Rows(), sum.Duration.Round(time.Millisecond))
	}
	if d.config.Sink != nil {
		d.config.Sink.SyncCompleted(KindPass, sum)
	}
	return nil
}

// watchFileEvents monitors the rules directory and queues a refresh.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pendingAt = time.Now()
}

// processChangeQueue refreshes the rules once changes have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.takePending() {
				d.refreshRules()
			}
		}
	}
}

// takePending reports whether a queued change is old enough to act on,
// clearing it if so.
func (d *Daemon) takePending() bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if d.pendingAt.IsZero() || time.Since(d.pendingAt) < d.config.DebounceInterval {
		return false
	}
	d.pendingAt = time.Time{}
	return true
}

func (d *Daemon) refreshRules() {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.config.Sink != nil {
		d.config.Sink.SyncStarted(KindRules)
	}
	start := time.Now()
	if err := d.runner.RefreshRules(d.ctx); err != nil {
		d.config.Logger.Printf("Error refreshing rules: %v", err)
		if d.config.Sink != nil {
			d.config.Sink.SyncFailed(KindRules, err, 0)
		}
		return
	}
	d.config.Logger.Println("Rules refreshed")
	if d.config.Sink != nil {
		d.config.Sink.SyncCompleted(KindRules, &pipeline.Summary{
			Target:         pipeline.TargetRules,
			RulesRefreshed: true,
			Duration:       time.Since(start),
		})
	}
}
