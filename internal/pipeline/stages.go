package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/executor"
	"github.com/oukeidos/polysub/internal/logger"
)

// Stage is one step of the chain. A non-nil error marks the request failed
// and stops the remaining non-terminal stages.
type Stage interface {
	Name() string
	Process(ctx context.Context, req *Request) error
}

// Saver is the slice of the store the persistence stage needs.
type Saver interface {
	SaveTranslations(index int, translations map[string]string) error
	RecordFailure(index int, msg string)
}

type validationStage struct{}

// NewValidationStage returns the stage that rejects malformed requests
// before any backend call is made.
func NewValidationStage() Stage {
	return validationStage{}
}

func (validationStage) Name() string { return "validation" }

func (validationStage) Process(_ context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return apperrors.Validation(err)
	}
	return nil
}

type executionStage struct {
	exec        *executor.Executor
	maxAttempts int
}

// NewExecutionStage returns the stage that calls the backend with retries.
// maxAttempts is the default budget; a request's own MaxAttempts, when
// positive, takes precedence.
func NewExecutionStage(exec *executor.Executor, maxAttempts int) (Stage, error) {
	if exec == nil {
		return nil, apperrors.Config(fmt.Errorf("executor is required"))
	}
	if maxAttempts <= 0 {
		return nil, apperrors.Config(fmt.Errorf("max attempts must be positive, got %d", maxAttempts))
	}
	return &executionStage{exec: exec, maxAttempts: maxAttempts}, nil
}

func (s *executionStage) Name() string { return "execution" }

func (s *executionStage) Process(ctx context.Context, req *Request) error {
	budget := s.maxAttempts
	if req.MaxAttempts > 0 {
		budget = req.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return apperrors.Transient(err)
		}

		req.AttemptCount++
		translations, usage, err := s.exec.Execute(ctx, req.SourceText, req.Context, req.TargetLangs)
		req.AddUsage(usage)
		if err == nil {
			req.MarkSuccess(translations)
			return nil
		}
		lastErr = err

		retry, backoff := retryDecision(err, attempt, budget)
		if !retry {
			break
		}
		logger.Debug("Retrying after backoff",
			"index", req.Index, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// retryDecision decides whether another attempt is worth making and how
// long to wait first. Exponential backoff with jitter; rate limits back off
// twice as hard. Run cancellation stops retrying; a per-call timeout is the
// attempt's own failure and comes through as a retryable transient.
func retryDecision(err error, attempt, maxAttempts int) (bool, time.Duration) {
	if err == nil || attempt >= maxAttempts {
		return false, 0
	}
	if errors.Is(err, context.Canceled) {
		return false, 0
	}
	if !apperrors.IsRetryable(err) {
		return false, 0
	}
	base := 1 * time.Second
	maxBackoff := 20 * time.Second
	jitterMax := 1 * time.Second

	backoff := base << (attempt - 1)
	if apperrors.IsRateLimit(err) {
		backoff = backoff * 2
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(jitterMax)))
	return true, backoff + jitter
}

type persistenceStage struct {
	store Saver
}

// NewPersistenceStage returns the terminal stage that writes the outcome to
// the store: translations on success, a failure note otherwise. Store write
// errors are logged but never flip a successful request.
func NewPersistenceStage(store Saver) (Stage, error) {
	if store == nil {
		return nil, apperrors.Config(fmt.Errorf("store is required"))
	}
	return &persistenceStage{store: store}, nil
}

func (s *persistenceStage) Name() string { return "persistence" }

func (s *persistenceStage) Process(_ context.Context, req *Request) error {
	if req.Success {
		if err := s.store.SaveTranslations(req.Index, req.Translations); err != nil {
			logger.Error("Failed to persist translations",
				"index", req.Index, "error", err)
		}
		return nil
	}
	s.store.RecordFailure(req.Index, apperrors.PublicMessage(req.Err))
	return nil
}

type loggingStage struct{}

// NewLoggingStage returns the terminal stage that emits one structured line
// per request. It never mutates the request.
func NewLoggingStage() Stage {
	return loggingStage{}
}

func (loggingStage) Name() string { return "logging" }

func (loggingStage) Process(_ context.Context, req *Request) error {
	if req.Success {
		logger.Info("Segment translated",
			"index", req.Index,
			"languages", len(req.Translations),
			"attempts", req.AttemptCount,
			"input_tokens", req.Usage.InputTokens,
			"output_tokens", req.Usage.OutputTokens)
		return nil
	}
	logger.Warn("Segment failed",
		"index", req.Index,
		"attempts", req.AttemptCount,
		"input_tokens", req.Usage.InputTokens,
		"output_tokens", req.Usage.OutputTokens,
		"error", truncate(apperrors.PublicMessage(req.Err), 200))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
