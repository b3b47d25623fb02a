package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/executor"
	"github.com/oukeidos/polysub/internal/logger"
)

// Chain runs a request through its stages in order. The core stages
// short-circuit on failure; the terminal stages run on every request
// regardless of outcome.
type Chain struct {
	stages   []Stage
	terminal []Stage
}

// Builder assembles a Chain stage by stage.
type Builder struct {
	stages   []Stage
	terminal []Stage
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds a short-circuiting core stage.
func (b *Builder) Append(s Stage) *Builder {
	b.stages = append(b.stages, s)
	return b
}

// Terminal adds a stage that runs on every request, after the core stages,
// in the order added.
func (b *Builder) Terminal(s Stage) *Builder {
	b.terminal = append(b.terminal, s)
	return b
}

// Build finalizes the chain. An empty chain is a configuration error.
func (b *Builder) Build() (*Chain, error) {
	if len(b.stages) == 0 && len(b.terminal) == 0 {
		return nil, apperrors.Config(fmt.Errorf("pipeline has no stages"))
	}
	return &Chain{stages: b.stages, terminal: b.terminal}, nil
}

// New assembles the standard chain: validation, execution with retries,
// then persistence and logging as terminal stages.
func New(exec *executor.Executor, store Saver, maxAttempts int) (*Chain, error) {
	execution, err := NewExecutionStage(exec, maxAttempts)
	if err != nil {
		return nil, err
	}
	persistence, err := NewPersistenceStage(store)
	if err != nil {
		return nil, err
	}
	return NewBuilder().
		Append(NewValidationStage()).
		Append(execution).
		Terminal(persistence).
		Terminal(NewLoggingStage()).
		Build()
}

// Process runs the request through the chain and returns it with the
// outcome recorded. The returned error mirrors req.Err for failed requests.
func (c *Chain) Process(ctx context.Context, req *Request) error {
	start := time.Now()
	for _, s := range c.stages {
		if err := s.Process(ctx, req); err != nil {
			req.MarkFailure(err)
			break
		}
	}
	for _, s := range c.terminal {
		if err := s.Process(ctx, req); err != nil {
			// Terminal stages record outcomes; their errors must not
			// overwrite the request's own result.
			logger.Error("Terminal stage failed",
				"stage", s.Name(), "index", req.Index, "error", err)
		}
	}
	logger.Debug("Request processed",
		"index", req.Index, "success", req.Success, "elapsed", time.Since(start).Round(time.Millisecond))
	return req.Err
}
