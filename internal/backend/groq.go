package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/httpclient"
)

// DefaultGroqBaseURL is the OpenAI-compatible endpoint Groq exposes.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient implements Client against any OpenAI-compatible chat
// completions endpoint (Groq by default).
type GroqClient struct {
	apiKey            string
	model             string
	baseURL           string
	systemInstruction string
	httpClient        *http.Client
}

// NewGroqClient creates a client for an OpenAI-compatible endpoint.
// An empty baseURL selects Groq.
func NewGroqClient(apiKey, model, baseURL string) (*GroqClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	return &GroqClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpclient.GetDefaultClient(),
	}, nil
}

var _ Client = (*GroqClient)(nil)

// SetSystemInstruction sets the system prompt used for subsequent calls.
func (c *GroqClient) SetSystemInstruction(prompt string) {
	c.systemInstruction = prompt
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Translate sends one task as a chat completion and parses the structured
// translations object out of the reply.
func (c *GroqClient) Translate(ctx context.Context, task Task) (*Result, error) {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemInstruction},
			{Role: "user", Content: string(taskJSON)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	body, resp, err := httpclient.DoAndRead(c.httpClient, req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("chat completion request failed: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.Transient(fmt.Errorf("failed to decode chat response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, apperrors.Transient(fmt.Errorf("chat response contained no choices"))
	}

	result := &Result{
		RawText: parsed.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}

	var structured struct {
		Translations map[string]string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(result.RawText), &structured); err == nil && len(structured.Translations) > 0 {
		result.Completed = true
		result.Translations = structured.Translations
	}

	return result, nil
}

func classifyHTTPStatus(status int, body []byte) error {
	var env errorEnvelope
	detail := ""
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		detail = env.Error.Message
	}
	cause := fmt.Errorf("upstream returned %d: %s", status, detail)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuth, fmt.Sprintf("Authentication failed (%d).", status), cause)
	case status == http.StatusTooManyRequests:
		return apperrors.New(apperrors.KindRateLimit, "Rate limit exceeded (429). Please try again later.", cause)
	case status >= 500:
		return apperrors.New(apperrors.KindTransient, fmt.Sprintf("Upstream service temporary error (%d). Please retry.", status), cause)
	default:
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("Request rejected by upstream API (%d).", status), cause)
	}
}
