package scheduler

import (
	"fmt"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
)

// Config holds every scheduling knob. Invalid values fail construction;
// nothing is clamped silently.
type Config struct {
	// Workers is the fixed worker pool size per batch.
	Workers int
	// BatchSize is the number of consecutive indices per batch.
	BatchSize int
	// MaxAttempts is the default per-item attempt budget.
	MaxAttempts int
	// SaveInterval is the number of processed items between checkpoints.
	SaveInterval int
	// MaxRetryRounds bounds the sequential retry passes over failed items.
	MaxRetryRounds int
	// ContextSize is how many neighbouring lines feed the prompt context.
	ContextSize int
	// CallTimeout bounds one backend call.
	CallTimeout time.Duration
	// ResultTimeout bounds waiting for one worker result.
	ResultTimeout time.Duration
	// RetryDelay is the pause between items within a retry round.
	RetryDelay time.Duration
	// RoundDelay is the pause between retry rounds.
	RoundDelay time.Duration
	// BatchPause is the pause between batches.
	BatchPause time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		BatchSize:      10,
		MaxAttempts:    3,
		SaveInterval:   10,
		MaxRetryRounds: 2,
		ContextSize:    2,
		CallTimeout:    2 * time.Minute,
		ResultTimeout:  5 * time.Minute,
		RetryDelay:     2 * time.Second,
		RoundDelay:     3 * time.Second,
		BatchPause:     100 * time.Millisecond,
	}
}

// Validate checks every knob. Counts must be positive, durations must be
// positive where they bound work; the pauses may be zero.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return apperrors.Config(fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.BatchSize <= 0 {
		return apperrors.Config(fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.MaxAttempts <= 0 {
		return apperrors.Config(fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts))
	}
	if c.SaveInterval <= 0 {
		return apperrors.Config(fmt.Errorf("save interval must be positive, got %d", c.SaveInterval))
	}
	if c.MaxRetryRounds < 0 {
		return apperrors.Config(fmt.Errorf("max retry rounds must not be negative, got %d", c.MaxRetryRounds))
	}
	if c.ContextSize < 0 {
		return apperrors.Config(fmt.Errorf("context size must not be negative, got %d", c.ContextSize))
	}
	if c.CallTimeout <= 0 {
		return apperrors.Config(fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout))
	}
	if c.ResultTimeout <= 0 {
		return apperrors.Config(fmt.Errorf("result timeout must be positive, got %v", c.ResultTimeout))
	}
	if c.RetryDelay < 0 || c.RoundDelay < 0 || c.BatchPause < 0 {
		return apperrors.Config(fmt.Errorf("delays must not be negative"))
	}
	return nil
}
