package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/pipeline"
)

// fakeRunner fails the first failFirst passes.
type fakeRunner struct {
	mu        sync.Mutex
	passes    int
	rules     int
	failFirst int
}

func (r *fakeRunner) RunPass(ctx context.Context) (*pipeline.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes++
	if r.passes <= r.failFirst {
		return nil, errors.New("catalog unavailable")
	}
	return &pipeline.Summary{Target: pipeline.TargetAll, Duration: time.Millisecond}, nil
}

func (r *fakeRunner) RefreshRules(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules++
	return nil
}

func (r *fakeRunner) counts() (passes, rules int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes, r.rules
}

type event struct {
	kind    string
	status  string
	retryIn time.Duration
}

type recordingSink struct {
	mu     sync.Mutex
	events []event
}

func (s *recordingSink) SyncStarted(kind string) { s.add(event{kind: kind, status: "started"}) }

func (s *recordingSink) SyncCompleted(kind string, _ *pipeline.Summary) {
	s.add(event{kind: kind, status: "completed"})
}

func (s *recordingSink) SyncFailed(kind string, _ error, retryIn time.Duration) {
	s.add(event{kind: kind, status: "failed", retryIn: retryIn})
}

func (s *recordingSink) add(e event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event(nil), s.events...)
}

func testConfig() *Config {
	return &Config{
		Interval:         time.Hour,
		InitialBackoff:   10 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// startDaemon runs d.Start in the background and returns a stop function
// that cancels it and waits for Start to return.
func startDaemon(t *testing.T, d *Daemon) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Start() did not return after cancel")
		}
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(file, []byte("[]"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tests := []struct {
		name     string
		runner   Runner
		rulesDir string
		wantErr  bool
	}{
		{name: "valid configuration", runner: &fakeRunner{}, wantErr: false},
		{name: "valid with rules dir", runner: &fakeRunner{}, rulesDir: dir, wantErr: false},
		{name: "nil runner", runner: nil, wantErr: true},
		{name: "missing rules dir", runner: &fakeRunner{}, rulesDir: filepath.Join(dir, "missing"), wantErr: true},
		{name: "rules dir is a file", runner: &fakeRunner{}, rulesDir: file, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.RulesDir = tt.rulesDir
			d, err := New(tt.runner, cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				_ = d.Stop()
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{MaxBackoff: 5 * time.Second}).withDefaults()

	if cfg.Interval != 6*time.Hour {
		t.Errorf("Interval = %v, want 6h", cfg.Interval)
	}
	if cfg.InitialBackoff != 5*time.Second {
		t.Errorf("InitialBackoff = %v, want it capped at MaxBackoff", cfg.InitialBackoff)
	}
	if cfg.DebounceInterval <= 0 {
		t.Error("DebounceInterval should have a default")
	}
	if cfg.Logger == nil {
		t.Error("Logger should have a default")
	}
}

func TestDaemon_ImmediatePass(t *testing.T) {
	runner := &fakeRunner{}
	sink := &recordingSink{}
	cfg := testConfig()
	cfg.Sink = sink

	d, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	stop := startDaemon(t, d)

	waitFor(t, "first pass", func() bool {
		passes, _ := runner.counts()
		return passes == 1
	})
	stop()

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0] != (event{kind: KindPass, status: "started"}) {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1] != (event{kind: KindPass, status: "completed"}) {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
}

func TestDaemon_RetriesWithBackoff(t *testing.T) {
	runner := &fakeRunner{failFirst: 2}
	sink := &recordingSink{}
	cfg := testConfig()
	cfg.Sink = sink

	d, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	waitFor(t, "recovery after failures", func() bool {
		passes, _ := runner.counts()
		return passes >= 3
	})

	// success restores the hour-long interval
	time.Sleep(100 * time.Millisecond)
	if passes, _ := runner.counts(); passes != 3 {
		t.Errorf("Expected 3 passes after recovery, got %d", passes)
	}

	var failures, completions int
	for _, e := range sink.snapshot() {
		switch e.status {
		case "failed":
			failures++
			if e.retryIn <= 0 || e.retryIn > cfg.MaxBackoff {
				t.Errorf("retryIn %v outside (0, %v]", e.retryIn, cfg.MaxBackoff)
			}
		case "completed":
			completions++
		}
	}
	if failures != 2 {
		t.Errorf("Expected 2 failures, got %d", failures)
	}
	if completions != 1 {
		t.Errorf("Expected 1 completion, got %d", completions)
	}
}

func TestDaemon_BackoffCapped(t *testing.T) {
	d, err := New(&fakeRunner{}, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()

	bo := d.newBackoff()
	for i := 0; i < 10; i++ {
		if next := d.retryDelay(bo); next <= 0 || next > d.config.MaxBackoff {
			t.Fatalf("attempt %d: backoff %v exceeds cap %v", i, next, d.config.MaxBackoff)
		}
	}
}

func TestDaemon_RulesWatch(t *testing.T) {
	rulesDir := t.TempDir()
	runner := &fakeRunner{}
	sink := &recordingSink{}
	cfg := testConfig()
	cfg.RulesDir = rulesDir
	cfg.Sink = sink

	d, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	waitFor(t, "first pass", func() bool {
		passes, _ := runner.counts()
		return passes == 1
	})

	// non-bundle files are ignored
	if err := os.WriteFile(filepath.Join(rulesDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, rules := runner.counts(); rules != 0 {
		t.Fatalf("Expected no refresh for a .txt file, got %d", rules)
	}

	// a burst of writes settles into one refresh
	bundle := filepath.Join(rulesDir, "rules.json")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(bundle, []byte(`[{"id":"a","title":"A","text":"x"}]`), 0644); err != nil {
			t.Fatalf("Failed to write bundle: %v", err)
		}
	}
	waitFor(t, "rules refresh", func() bool {
		_, rules := runner.counts()
		return rules >= 1
	})
	time.Sleep(100 * time.Millisecond)
	if _, rules := runner.counts(); rules != 1 {
		t.Errorf("Expected 1 debounced refresh, got %d", rules)
	}

	found := false
	for _, e := range sink.snapshot() {
		if e.kind == KindRules && e.status == "completed" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a rules completion event")
	}
}

func TestDaemon_StopIdempotent(t *testing.T) {
	d, err := New(&fakeRunner{}, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	stop := startDaemon(t, d)
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
	stop()
}
