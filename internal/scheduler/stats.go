package scheduler

import (
	"sync"

	"github.com/oukeidos/polysub/internal/pipeline"
)

// Stats is a snapshot of the run's aggregate counters. Token totals include
// failed attempts; the upstream bills for those too.
type Stats struct {
	Total          int
	Processed      int
	Succeeded      int
	Failed         int
	RetrySucceeded int
	InputTokens    int
	OutputTokens   int
}

// SuccessRate returns the fraction of processed items that ended up
// translated, in [0, 1].
func (s Stats) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Succeeded+s.RetrySucceeded) / float64(s.Processed)
}

type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

func (t *statsTracker) setTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Total = n
}

// record folds one finished request into the counters. retryPass marks
// requests driven by a retry round; their successes also shrink the failed
// count from the initial pass.
func (t *statsTracker) record(req *pipeline.Request, retryPass bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.s.InputTokens += req.Usage.InputTokens
	t.s.OutputTokens += req.Usage.OutputTokens

	if retryPass {
		if req.Success {
			t.s.RetrySucceeded++
			t.s.Failed--
		}
		return
	}

	t.s.Processed++
	if req.Success {
		t.s.Succeeded++
	} else {
		t.s.Failed++
	}
}

// recordTimeout counts an item whose result was never collected before the
// batch deadline. There is no request to fold in, so no token usage moves.
func (t *statsTracker) recordTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Processed++
	t.s.Failed++
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
