package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/backend"
	"github.com/oukeidos/polysub/internal/executor"
	"github.com/oukeidos/polysub/internal/pipeline"
	"github.com/oukeidos/polysub/internal/progress"
)

// fakeStore stands in for the subtitle store. It serves both the
// scheduler's read side and the pipeline's persistence side.
type fakeStore struct {
	mu       sync.Mutex
	texts    []string
	saved    map[int]map[string]string
	failures map[int]string
	flushes  int
}

func newFakeStore(n int) *fakeStore {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("대사 %d", i+1)
	}
	return &fakeStore{
		texts:    texts,
		saved:    make(map[int]map[string]string),
		failures: make(map[int]string),
	}
}

func (f *fakeStore) Count() int { return len(f.texts) }

func (f *fakeStore) Text(index int) (string, error) {
	if index < 1 || index > len(f.texts) {
		return "", fmt.Errorf("index %d out of range", index)
	}
	return f.texts[index-1], nil
}

func (f *fakeStore) ContextWindow(index, size int) string { return "" }

func (f *fakeStore) MissingAny(langs []string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var missing []int
	for i := 1; i <= len(f.texts); i++ {
		rec := f.saved[i]
		for _, lang := range langs {
			if rec[lang] == "" {
				missing = append(missing, i)
				break
			}
		}
	}
	return missing
}

func (f *fakeStore) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeStore) SaveTranslations(index int, translations map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.saved[index]
	if rec == nil {
		rec = make(map[string]string)
		f.saved[index] = rec
	}
	for lang, text := range translations {
		rec[lang] = text
	}
	delete(f.failures, index)
	return nil
}

func (f *fakeStore) RecordFailure(index int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[index] = msg
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.BatchSize = 2
	cfg.MaxAttempts = 1
	cfg.SaveInterval = 100
	cfg.ResultTimeout = 10 * time.Second
	cfg.RetryDelay = 0
	cfg.RoundDelay = 0
	cfg.BatchPause = 0
	return cfg
}

func newScheduler(t *testing.T, cfg Config, client backend.Client, st *fakeStore) (*Scheduler, *progress.Store) {
	t.Helper()
	exec, err := executor.New(client, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	chain, err := pipeline.New(exec, st, cfg.MaxAttempts)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	prog, err := progress.NewStore(filepath.Join(dir, "progress.json"), filepath.Join(dir, "history.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	sched, err := New(cfg, chain, st, prog, []string{"en", "de"}, "test-model")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sched, prog
}

func goodResult() *backend.Result {
	return &backend.Result{
		Completed:    true,
		Translations: map[string]string{"en": "Line", "de": "Zeile"},
		Usage:        backend.Usage{InputTokens: 10, OutputTokens: 4},
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.Workers = 0
	st := newFakeStore(1)
	exec, _ := executor.New(&backend.Mock{}, time.Minute)
	chain, _ := pipeline.New(exec, st, 1)
	dir := t.TempDir()
	prog, _ := progress.NewStore(filepath.Join(dir, "p.json"), filepath.Join(dir, "h.jsonl"))

	_, err := New(cfg, chain, st, prog, []string{"en"}, "m")
	if err == nil {
		t.Fatal("expected config error")
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConfig {
		t.Errorf("kind = %v, want config", kind)
	}
}

func TestRun_AllSucceed(t *testing.T) {
	mock := &backend.Mock{Results: []*backend.Result{goodResult()}}
	st := newFakeStore(5)
	sched, prog := newScheduler(t, fastConfig(), mock, st)

	stats, err := sched.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.Processed != 5 || stats.Succeeded != 5 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if st.savedCount() != 5 {
		t.Errorf("saved %d records, want 5", st.savedCount())
	}
	if sched.State() != StateCompleted {
		t.Errorf("state = %v, want completed", sched.State())
	}

	rec, ok, err := prog.LoadCheckpoint()
	if err != nil || !ok {
		t.Fatalf("LoadCheckpoint = ok %v, err %v", ok, err)
	}
	if rec.LastIndex != 5 {
		t.Errorf("checkpoint LastIndex = %d, want 5", rec.LastIndex)
	}
	if rec.Languages != "en,de" || rec.Model != "test-model" {
		t.Errorf("checkpoint = %+v", rec)
	}
	if rec.TotalInputTokens != 50 {
		t.Errorf("TotalInputTokens = %d, want 50", rec.TotalInputTokens)
	}
}

func TestRun_RetryRoundConverges(t *testing.T) {
	// The first five calls fail transiently, every later one succeeds, so
	// the retry round recovers all five failures.
	transient := apperrors.Transient(errors.New("upstream down"))
	mock := &backend.Mock{
		Errors:  []error{transient, transient, transient, transient, transient, nil},
		Results: []*backend.Result{nil, nil, nil, nil, nil, goodResult()},
	}
	st := newFakeStore(5)
	sched, _ := newScheduler(t, fastConfig(), mock, st)

	stats, err := sched.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Succeeded != 0 || stats.RetrySucceeded != 5 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if st.savedCount() != 5 {
		t.Errorf("saved %d records, want 5", st.savedCount())
	}
}

func TestRun_InvalidStartIndexResets(t *testing.T) {
	mock := &backend.Mock{Results: []*backend.Result{goodResult()}}
	st := newFakeStore(3)
	sched, _ := newScheduler(t, fastConfig(), mock, st)

	stats, err := sched.Run(context.Background(), 99)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3 (start index reset)", stats.Processed)
	}
}

// cancellingClient succeeds but cancels the run context after a fixed
// number of calls, simulating a shutdown signal arriving mid-batch.
type cancellingClient struct {
	calls  atomic.Int32
	after  int32
	cancel context.CancelFunc
}

func (c *cancellingClient) Translate(ctx context.Context, task backend.Task) (*backend.Result, error) {
	if c.calls.Add(1) >= c.after {
		c.cancel()
	}
	return goodResult(), nil
}

func (c *cancellingClient) SetSystemInstruction(string) {}

func TestRun_CooperativeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &cancellingClient{after: 2, cancel: cancel}
	st := newFakeStore(10)
	cfg := fastConfig()
	cfg.Workers = 1
	sched, prog := newScheduler(t, cfg, client, st)

	stats, err := sched.Run(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if stats.Processed >= 10 {
		t.Errorf("Processed = %d, shutdown should have cut the run short", stats.Processed)
	}
	if sched.State() != StateCompleted {
		t.Errorf("state = %v, want completed after drain", sched.State())
	}

	// The final checkpoint runs even on early shutdown.
	if _, ok, _ := prog.LoadCheckpoint(); !ok {
		t.Error("no checkpoint written on shutdown")
	}
}

// slowOnceClient stalls the first call for one segment, then answers
// everything normally.
type slowOnceClient struct {
	mu      sync.Mutex
	slowFor string
	stalled bool
	delay   time.Duration
}

func (c *slowOnceClient) Translate(ctx context.Context, task backend.Task) (*backend.Result, error) {
	c.mu.Lock()
	stall := task.SourceText == c.slowFor && !c.stalled
	if stall {
		c.stalled = true
	}
	c.mu.Unlock()

	if stall {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
		return nil, apperrors.Transient(errors.New("slow upstream"))
	}
	return goodResult(), nil
}

func (c *slowOnceClient) SetSystemInstruction(string) {}

func TestRun_CollectionTimeoutMarksUncollectedFailed(t *testing.T) {
	// One worker, one batch of three. Segment 2 stalls past the collection
	// deadline, so it and the still-queued segment 3 must be recorded as
	// failures and recovered by the retry round, not silently dropped.
	client := &slowOnceClient{slowFor: "대사 2", delay: 400 * time.Millisecond}
	st := newFakeStore(3)
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.BatchSize = 3
	cfg.ResultTimeout = 100 * time.Millisecond
	sched, _ := newScheduler(t, cfg, client, st)

	stats, err := sched.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3 (timed-out items count as processed)", stats.Processed)
	}
	if stats.Succeeded != 1 || stats.RetrySucceeded != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want the two timed-out items recovered by the retry round", stats)
	}
	if st.savedCount() != 3 {
		t.Errorf("saved %d records, want 3", st.savedCount())
	}
}

func TestRetryMissing(t *testing.T) {
	mock := &backend.Mock{Results: []*backend.Result{goodResult()}}
	st := newFakeStore(4)
	// Indices 1 and 3 already have both languages from an earlier run.
	st.saved[1] = map[string]string{"en": "a", "de": "b"}
	st.saved[3] = map[string]string{"en": "c", "de": "d"}
	sched, _ := newScheduler(t, fastConfig(), mock, st)

	stats, err := sched.RetryMissing(context.Background(), 2)
	if err != nil {
		t.Fatalf("RetryMissing failed: %v", err)
	}
	if stats.Processed != 2 || stats.Succeeded != 2 {
		t.Errorf("stats = %+v, want 2 processed", stats)
	}
	if st.savedCount() != 4 {
		t.Errorf("saved %d records, want 4", st.savedCount())
	}
	if mock.CallCount() != 2 {
		t.Errorf("backend calls = %d, want 2", mock.CallCount())
	}
}

func TestRetryMissing_RequiresBudget(t *testing.T) {
	mock := &backend.Mock{Results: []*backend.Result{goodResult()}}
	st := newFakeStore(1)
	sched, _ := newScheduler(t, fastConfig(), mock, st)

	if _, err := sched.RetryMissing(context.Background(), 0); err == nil {
		t.Error("expected config error for zero attempt budget")
	}
}

func TestRetryMissing_NothingToDo(t *testing.T) {
	mock := &backend.Mock{Results: []*backend.Result{goodResult()}}
	st := newFakeStore(2)
	st.saved[1] = map[string]string{"en": "a", "de": "b"}
	st.saved[2] = map[string]string{"en": "c", "de": "d"}
	sched, _ := newScheduler(t, fastConfig(), mock, st)

	stats, err := sched.RetryMissing(context.Background(), 2)
	if err != nil {
		t.Fatalf("RetryMissing failed: %v", err)
	}
	if stats.Processed != 0 || mock.CallCount() != 0 {
		t.Errorf("stats = %+v, calls = %d, want no work", stats, mock.CallCount())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"negative batch size", func(c *Config) { c.BatchSize = -1 }},
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero save interval", func(c *Config) { c.SaveInterval = 0 }},
		{"negative retry rounds", func(c *Config) { c.MaxRetryRounds = -1 }},
		{"zero call timeout", func(c *Config) { c.CallTimeout = 0 }},
		{"zero result timeout", func(c *Config) { c.ResultTimeout = 0 }},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
