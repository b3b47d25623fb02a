// Package pipeline processes one translation request through a fixed chain
// of stages: validate, execute with retries, persist, log. Stages share one
// mutable Request; a stage error short-circuits the chain, but the terminal
// stages (persistence, logging) always run so every outcome is recorded.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/oukeidos/polysub/internal/backend"
)

// Request carries one segment through the chain. Identity fields (Index,
// SourceText, Context, TargetLangs) are set at construction and never
// change; outcome fields are written by the stages.
type Request struct {
	Index       int
	SourceText  string
	Context     string
	TargetLangs []string

	// MaxAttempts overrides the chain's default attempt budget when
	// positive. The manual recovery path uses it.
	MaxAttempts int

	// AttemptCount is seeded by the scheduler with the attempts already
	// spent on this index in earlier passes, so it counts attempts across
	// the whole run.
	AttemptCount int

	Success      bool
	Translations map[string]string
	Err          error
	Usage        backend.Usage
}

// NewRequest builds a fresh request for one segment.
func NewRequest(index int, sourceText, contextText string, langs []string) *Request {
	return &Request{
		Index:       index,
		SourceText:  sourceText,
		Context:     contextText,
		TargetLangs: langs,
	}
}

// Validate reports whether the request is well-formed enough to send to a
// backend.
func (r *Request) Validate() error {
	if r.Index < 1 {
		return fmt.Errorf("index must be positive, got %d", r.Index)
	}
	if strings.TrimSpace(r.SourceText) == "" {
		return fmt.Errorf("source text is empty")
	}
	if len(r.TargetLangs) == 0 {
		return fmt.Errorf("no target languages")
	}
	return nil
}

// MarkSuccess records a successful outcome.
func (r *Request) MarkSuccess(translations map[string]string) {
	r.Success = true
	r.Translations = translations
	r.Err = nil
}

// MarkFailure records a failed outcome. A request never holds both a
// success and an error.
func (r *Request) MarkFailure(err error) {
	r.Success = false
	r.Translations = nil
	r.Err = err
}

// AddUsage accumulates token usage from one attempt. Failed attempts count
// too; the upstream bills for them either way.
func (r *Request) AddUsage(u backend.Usage) {
	r.Usage.InputTokens += u.InputTokens
	r.Usage.OutputTokens += u.OutputTokens
	r.Usage.TotalTokens += u.TotalTokens
}
