// Package scheduler drives a whole subtitle file through the request
// pipeline: consecutive batches over a fixed worker pool, periodic
// checkpoints, sequential retry rounds over failures, and a final
// statistics block. Shutdown is cooperative; cancellation is honoured
// between batches, items and retry items, never mid-flight.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/logger"
	"github.com/oukeidos/polysub/internal/pipeline"
	"github.com/oukeidos/polysub/internal/progress"
)

// State is the scheduler's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// progressLogEvery is how many processed items separate progress log lines.
const progressLogEvery = 5

// Store is the slice of the subtitle store the scheduler reads from.
// Persistence of results happens inside the pipeline.
type Store interface {
	Count() int
	Text(index int) (string, error)
	ContextWindow(index, size int) string
	MissingAny(langs []string) []int
	Flush() error
}

// Scheduler runs the batch loop for one source file.
type Scheduler struct {
	cfg      Config
	chain    *pipeline.Chain
	store    Store
	progress *progress.Store
	langs    []string
	model    string

	state atomic.Int32
	stats statsTracker

	// attempts counts backend attempts per index across all passes, so a
	// retried item keeps its history.
	attemptsMu sync.Mutex
	attempts   map[int]int
}

// New validates the configuration and wires the scheduler.
func New(cfg Config, chain *pipeline.Chain, st Store, prog *progress.Store, langs []string, model string) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, apperrors.Config(fmt.Errorf("pipeline chain is required"))
	}
	if st == nil {
		return nil, apperrors.Config(fmt.Errorf("subtitle store is required"))
	}
	if prog == nil {
		return nil, apperrors.Config(fmt.Errorf("progress store is required"))
	}
	if len(langs) == 0 {
		return nil, apperrors.Config(fmt.Errorf("at least one target language is required"))
	}
	return &Scheduler{
		cfg:      cfg,
		chain:    chain,
		store:    st,
		progress: prog,
		langs:    langs,
		model:    model,
		attempts: make(map[int]int),
	}, nil
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// processIndex builds a fresh request for the index, seeds its attempt
// history and runs it through the chain. maxAttempts of 0 keeps the
// pipeline's default budget.
func (s *Scheduler) processIndex(ctx context.Context, index, maxAttempts int) *pipeline.Request {
	text, err := s.store.Text(index)
	if err != nil {
		logger.Error("Failed to read source text", "index", index, "error", err)
	}
	req := pipeline.NewRequest(index, text, s.store.ContextWindow(index, s.cfg.ContextSize), s.langs)
	req.MaxAttempts = maxAttempts

	s.attemptsMu.Lock()
	req.AttemptCount = s.attempts[index]
	s.attemptsMu.Unlock()

	s.chain.Process(ctx, req)

	s.attemptsMu.Lock()
	s.attempts[index] = req.AttemptCount
	s.attemptsMu.Unlock()
	return req
}

// checkpoint persists the progress record and flushes the store. Failures
// are logged; a checkpoint must never abort the run.
func (s *Scheduler) checkpoint(lastIndex int) {
	st := s.stats.snapshot()
	rec := progress.Record{
		Languages:         strings.Join(s.langs, ","),
		LastIndex:         lastIndex,
		Model:             s.model,
		TotalInputTokens:  st.InputTokens,
		TotalOutputTokens: st.OutputTokens,
	}
	if err := s.progress.WriteCheckpoint(rec); err != nil {
		logger.Error("Failed to write checkpoint", "last_index", lastIndex, "error", err)
	}
	if err := s.progress.AppendHistory(rec); err != nil {
		logger.Error("Failed to append progress history", "error", err)
	}
	if err := s.store.Flush(); err != nil {
		logger.Error("Failed to flush subtitle store", "error", err)
	}
}

// Run processes indices [startIndex, Count()] in batches and then retries
// failures for up to MaxRetryRounds rounds. It returns the final statistics
// and the context error when the run was cut short.
func (s *Scheduler) Run(ctx context.Context, startIndex int) (Stats, error) {
	total := s.store.Count()
	if total == 0 {
		logger.Warn("Nothing to translate")
		s.setState(StateCompleted)
		return s.stats.snapshot(), nil
	}
	if startIndex < 1 || startIndex > total {
		logger.Warn("Start index out of range, starting from the beginning",
			"start_index", startIndex, "total", total)
		startIndex = 1
	}

	s.setState(StateRunning)
	s.stats.setTotal(total - startIndex + 1)
	logger.Info("Starting translation run",
		"start_index", startIndex, "total", total,
		"languages", strings.Join(s.langs, ","),
		"workers", s.cfg.Workers, "batch_size", s.cfg.BatchSize)

	var failed []int
	lastCheckpointed := startIndex - 1
	processedSinceSave := 0

batches:
	for batchStart := startIndex; batchStart <= total; batchStart += s.cfg.BatchSize {
		if ctx.Err() != nil {
			s.setState(StateDraining)
			break
		}
		batchEnd := batchStart + s.cfg.BatchSize - 1
		if batchEnd > total {
			batchEnd = total
		}

		results, timedOut := s.runBatch(ctx, batchStart, batchEnd)
		for _, req := range results {
			s.stats.record(req, false)
			if !req.Success {
				failed = append(failed, req.Index)
			}
			processedSinceSave++
			st := s.stats.snapshot()
			if st.Processed%progressLogEvery == 0 {
				logger.Info("Progress",
					"processed", st.Processed, "total", st.Total,
					"succeeded", st.Succeeded, "failed", st.Failed)
			}
			if processedSinceSave >= s.cfg.SaveInterval {
				s.checkpoint(lastCheckpointed)
				processedSinceSave = 0
			}
		}
		// Indices the collection timed out on are failures: they count as
		// processed and join the retry rounds like any other failed item.
		for _, idx := range timedOut {
			s.stats.recordTimeout()
			failed = append(failed, idx)
			processedSinceSave++
		}
		if len(timedOut) == 0 && len(results) == batchEnd-batchStart+1 {
			lastCheckpointed = batchEnd
		}

		if batchEnd < total && s.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				s.setState(StateDraining)
				break batches
			case <-time.After(s.cfg.BatchPause):
			}
		}
	}

	failed = s.retryRounds(ctx, failed, lastCheckpointed)

	s.checkpoint(lastCheckpointed)
	s.logStats(failed)
	s.setState(StateCompleted)
	return s.stats.snapshot(), ctx.Err()
}

// runBatch fans the index range out over the worker pool and collects the
// results, each bounded by ResultTimeout. When collection times out it
// returns the indices it never saw; those are the caller's failures. A
// cancelled run drains instead, leaving the uncollected indices alone.
func (s *Scheduler) runBatch(ctx context.Context, start, end int) (results []*pipeline.Request, timedOut []int) {
	count := end - start + 1
	jobs := make(chan int, count)
	// Buffered so a worker finishing after a collection timeout never
	// blocks on send.
	out := make(chan *pipeline.Request, count)

	for i := start; i <= end; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				out <- s.processIndex(ctx, idx, 0)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	timer := time.NewTimer(s.cfg.ResultTimeout)
	defer timer.Stop()
	for {
		select {
		case req, ok := <-out:
			if !ok {
				return results, nil
			}
			results = append(results, req)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.cfg.ResultTimeout)
		case <-timer.C:
			collected := make(map[int]bool, len(results))
			for _, req := range results {
				collected[req.Index] = true
			}
			for i := start; i <= end; i++ {
				if !collected[i] {
					timedOut = append(timedOut, i)
				}
			}
			logger.Error("Timed out waiting for batch results",
				"batch_start", start, "batch_end", end,
				"collected", len(results), "expected", count,
				"timed_out", timedOut)
			return results, timedOut
		}
	}
}

// retryRounds runs up to MaxRetryRounds sequential passes over the failed
// indices. The failed set only ever shrinks.
func (s *Scheduler) retryRounds(ctx context.Context, failed []int, lastCheckpointed int) []int {
	for round := 1; round <= s.cfg.MaxRetryRounds && len(failed) > 0; round++ {
		if ctx.Err() != nil {
			return failed
		}
		logger.Info("Retry round", "round", round, "remaining", len(failed))

		var stillFailed []int
		anySuccess := false
		for i, idx := range failed {
			if ctx.Err() != nil {
				stillFailed = append(stillFailed, failed[i:]...)
				break
			}
			if i > 0 && s.cfg.RetryDelay > 0 {
				select {
				case <-ctx.Done():
					stillFailed = append(stillFailed, failed[i:]...)
					return stillFailed
				case <-time.After(s.cfg.RetryDelay):
				}
			}
			req := s.processIndex(ctx, idx, 0)
			s.stats.record(req, true)
			if req.Success {
				anySuccess = true
			} else {
				stillFailed = append(stillFailed, idx)
			}
		}
		failed = stillFailed

		if anySuccess {
			s.checkpoint(lastCheckpointed)
		}
		if len(failed) > 0 && round < s.cfg.MaxRetryRounds && s.cfg.RoundDelay > 0 {
			select {
			case <-ctx.Done():
				return failed
			case <-time.After(s.cfg.RoundDelay):
			}
		}
	}
	return failed
}

// RetryMissing scans the store for indices still missing any target
// language and drives them through the pipeline sequentially with the
// caller's attempt budget. This is the manual recovery path; it works from
// the files on disk, so it survives restarts.
func (s *Scheduler) RetryMissing(ctx context.Context, maxAttempts int) (Stats, error) {
	if maxAttempts <= 0 {
		return Stats{}, apperrors.Config(fmt.Errorf("max attempts must be positive, got %d", maxAttempts))
	}

	missing := s.store.MissingAny(s.langs)
	if len(missing) == 0 {
		logger.Info("No segments are missing translations")
		s.setState(StateCompleted)
		return s.stats.snapshot(), nil
	}

	s.setState(StateRunning)
	s.stats.setTotal(len(missing))
	logger.Info("Recovering missing translations",
		"count", len(missing), "max_attempts", maxAttempts)

	var failed []int
	for i, idx := range missing {
		if ctx.Err() != nil {
			s.setState(StateDraining)
			break
		}
		if i > 0 && s.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.RetryDelay):
			}
			if ctx.Err() != nil {
				s.setState(StateDraining)
				break
			}
		}
		req := s.processIndex(ctx, idx, maxAttempts)
		s.stats.record(req, false)
		if !req.Success {
			failed = append(failed, idx)
		}
		if st := s.stats.snapshot(); st.Processed%progressLogEvery == 0 {
			logger.Info("Progress", "processed", st.Processed, "total", st.Total)
		}
	}

	s.checkpoint(s.store.Count())
	s.logStats(failed)
	s.setState(StateCompleted)
	return s.stats.snapshot(), ctx.Err()
}

// logStats emits the end-of-run statistics block.
func (s *Scheduler) logStats(failed []int) {
	st := s.stats.snapshot()
	logger.Info("Run statistics",
		"total", st.Total,
		"processed", st.Processed,
		"succeeded", st.Succeeded,
		"retry_succeeded", st.RetrySucceeded,
		"failed", st.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", st.SuccessRate()*100),
		"input_tokens", st.InputTokens,
		"output_tokens", st.OutputTokens,
		"workers", s.cfg.Workers)
	if len(failed) > 0 {
		logger.Warn("Segments left untranslated", "indices", failed)
	}
}
