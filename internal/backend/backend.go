// Package backend defines the translation backend boundary: one blocking
// call that takes a source text with context and returns either a structured
// per-language translation map or the model's raw text.
package backend

import "context"

// Task is the payload for a single translation call.
type Task struct {
	SourceText  string   `json:"text"`
	Context     string   `json:"context"`
	TargetLangs []string `json:"target_langs"`
}

// Usage holds token accounting for one call. It is reported even when the
// call fails validation, since the upstream may have consumed quota.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Result is the outcome of one backend call.
//
// Completed is true when the model returned the structured translations
// object. When false, RawText carries whatever free-form text the model
// produced; the executor decides whether that still counts as a valid
// response.
type Result struct {
	Completed    bool
	Translations map[string]string
	RawText      string
	Usage        Usage
}

// Client is the interface the executor depends on; implemented by the Gemini
// and Groq clients and by Mock in tests.
type Client interface {
	Translate(ctx context.Context, task Task) (*Result, error)
	SetSystemInstruction(prompt string)
}
