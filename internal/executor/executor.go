// Package executor performs one translation call: build the task payload,
// invoke the backend under a wall-clock timeout, judge whether the response
// is usable, and extract the per-language translations and token usage.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/backend"
	"github.com/oukeidos/polysub/internal/language"
	"github.com/rivo/uniseg"
)

// MinFreeTextGraphemes is the minimum length for free-form text to count as
// a real answer rather than noise.
const MinFreeTextGraphemes = 5

// DefaultRejectionPatterns are phrases that indicate the model is reasoning
// aloud or refusing instead of translating. Case-insensitive substring match.
var DefaultRejectionPatterns = []string{
	"a proper translation would be",
	"should be a statement matching",
	"is not appropriate",
	"let me check",
	"i need to",
	"looking at the",
}

// DefaultToolPatterns are phrases that indicate the model is echoing tool
// instructions instead of producing the structured result.
var DefaultToolPatterns = []string{
	"calling tool",
	"using tool",
	"tool call",
	"invoke",
	"executing",
}

// Executor invokes the backend for a single request.
type Executor struct {
	client            backend.Client
	timeout           time.Duration
	rejectionPatterns []string
	toolPatterns      []string
}

// New creates an Executor. The timeout bounds each backend call and must be
// positive.
func New(client backend.Client, timeout time.Duration) (*Executor, error) {
	if client == nil {
		return nil, apperrors.Config(fmt.Errorf("backend client is required"))
	}
	if timeout <= 0 {
		return nil, apperrors.Config(fmt.Errorf("call timeout must be positive, got %v", timeout))
	}
	return &Executor{
		client:            client,
		timeout:           timeout,
		rejectionPatterns: DefaultRejectionPatterns,
		toolPatterns:      DefaultToolPatterns,
	}, nil
}

// SetPatterns overrides the rejection and tool-chatter phrase lists.
func (e *Executor) SetPatterns(rejection, tool []string) {
	e.rejectionPatterns = rejection
	e.toolPatterns = tool
}

// SystemPrompt builds the translation system instruction for a fixed set of
// target languages. Callers set it on the backend once per run.
func SystemPrompt(langs []string) string {
	names := make([]string, 0, len(langs))
	for _, code := range langs {
		if lang, ok := language.GetLanguage(code); ok {
			names = append(names, fmt.Sprintf("%s (%s)", lang.Name, code))
		} else {
			names = append(names, code)
		}
	}

	return fmt.Sprintf(`You are a professional subtitle translator for short dialogue lines.
Translate each input text into every requested language: %s.

1. Input Structure:
- The input is a JSON object with 'text', 'context', and 'target_langs'.
- 'text': The line you must translate.
- 'context': Surrounding dialogue, for reference only. Do NOT translate it.

2. Output Structure:
- Respond ONLY with a JSON object of the form {"translations": {"%s": "...", ...}}.
- Include exactly one entry per requested language code.

3. Rules:
- Keep the tone and nuance of the original line.
- Translations must be grammatically correct and natural in each language.
- Do not add commentary, analysis, or extra fields.`,
		strings.Join(names, ", "), firstOr(langs, "en"))
}

func firstOr(langs []string, fallback string) string {
	if len(langs) > 0 {
		return langs[0]
	}
	return fallback
}

// Execute performs one attempt. Usage is returned even on failure, since the
// upstream may have consumed quota for an unusable response.
func (e *Executor) Execute(ctx context.Context, text, contextText string, langs []string) (map[string]string, backend.Usage, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Translate(callCtx, backend.Task{
		SourceText:  text,
		Context:     contextText,
		TargetLangs: langs,
	})
	if err != nil {
		// The per-call deadline is this attempt's failure, not the run's:
		// classify it as transient so the caller can try again.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if _, classified := apperrors.KindOf(err); !classified {
				err = apperrors.Transient(fmt.Errorf("backend call timed out after %v: %w", e.timeout, err))
			}
		}
		return nil, backend.Usage{}, err
	}
	if resp == nil {
		return nil, backend.Usage{}, apperrors.Transient(fmt.Errorf("backend returned no response"))
	}

	usage := resp.Usage

	if resp.Completed {
		translations := extractTranslations(resp.Translations, langs)
		if len(translations) == 0 {
			return nil, usage, apperrors.Extraction(fmt.Errorf("structured result contained no translations for the requested languages"))
		}
		return translations, usage, nil
	}

	if err := e.checkFreeText(resp.RawText); err != nil {
		return nil, usage, apperrors.Transient(err)
	}

	// The text passed validity checks but carries no structured payload, so
	// there is nothing to extract.
	return nil, usage, apperrors.Extraction(fmt.Errorf("response did not include a structured translations object"))
}

// checkFreeText applies the response-validity rules for non-structured
// output: minimum length plus the rejection and tool-chatter phrase filters.
func (e *Executor) checkFreeText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty response from backend")
	}
	if uniseg.GraphemeClusterCount(trimmed) < MinFreeTextGraphemes {
		return fmt.Errorf("response too short to be a real answer (%d graphemes)", uniseg.GraphemeClusterCount(trimmed))
	}

	lower := strings.ToLower(trimmed)
	for _, p := range e.rejectionPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return fmt.Errorf("response matched rejection pattern %q", p)
		}
	}
	for _, p := range e.toolPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return fmt.Errorf("response matched tool-chatter pattern %q", p)
		}
	}
	return nil
}

// extractTranslations restricts the structured result to the requested
// languages and drops empty values.
func extractTranslations(raw map[string]string, langs []string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(langs))
	for _, code := range langs {
		if text, ok := raw[code]; ok && strings.TrimSpace(text) != "" {
			out[code] = text
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
