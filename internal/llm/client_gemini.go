package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"agenix/internal/logging"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	BaseURL string // optional endpoint override
	Timeout time.Duration
}

// GeminiClient implements Completer on the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed Completer.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, timeout: cfg.Timeout}, nil
}

// Complete generates content for the user prompt under the system instruction.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := withRequestTimeout(ctx, req.Timeout, c.timeout)
	defer cancel()

	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = SystemPrompt
	}

	temperature := float32(req.Temperature)
	gcfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
	}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	logging.APIDebug("[Gemini] GenerateContent model=%s user_len=%d", req.Model, len(req.UserPrompt))

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), gcfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &SchemaError{Reason: "no candidates returned"}
	}

	text := resp.Text()
	if text == "" {
		return "", &SchemaError{Reason: "candidate carries no text part"}
	}

	logging.APIDebug("[Gemini] completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return &HTTPError{StatusCode: code, Body: apiErr.Message}
	}
	return &TransportError{Err: err}
}
