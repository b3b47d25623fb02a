package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/oukeidos/polysub/internal/apperrors"
	"google.golang.org/api/option"
)

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiClient creates a new Gemini backend client.
func NewGeminiClient(ctx context.Context, apiKey string, modelName string) (*GeminiClient, error) {
	// option.WithHTTPClient interferes with the genai library's internal
	// header injection for API keys, causing 403 errors. Timeouts are
	// enforced by the executor through the call context instead.
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

// Close closes the underlying genai client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// SetSystemInstruction sets the system prompt for the model.
func (c *GeminiClient) SetSystemInstruction(prompt string) {
	c.model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt)},
	}
}

var _ Client = (*GeminiClient)(nil)

// Translate sends one task to Gemini. A structured translations object in
// the reply yields Completed=true; any other text is passed through raw.
func (c *GeminiClient) Translate(ctx context.Context, task Task) (*Result, error) {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	resp, err := c.model.GenerateContent(ctx, genai.Text(string(taskJSON)))
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	result := &Result{}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	text, err := geminiResponseText(resp)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	result.RawText = text

	var payload struct {
		Translations map[string]string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err == nil && len(payload.Translations) > 0 {
		result.Completed = true
		result.Translations = payload.Translations
	}

	return result, nil
}

func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("no response received from Gemini")
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			continue
		}
		var combined string
		for _, part := range candidate.Content.Parts {
			text, ok := part.(genai.Text)
			if !ok {
				continue
			}
			combined += string(text)
		}
		if combined != "" {
			return combined, nil
		}
	}
	return "", fmt.Errorf("no text parts found in Gemini response")
}
