package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agenix/internal/logging"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// OpenAIConfig configures an OpenAI-compatible endpoint (OpenAI, Open-WebUI,
// Ollama, vLLM and friends).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // the client POSTs to BaseURL + "/chat/completions"
	Timeout time.Duration
}

// OpenAIClient implements Completer over the chat-completions HTTP API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
	}
}

// Complete sends one chat-completion request and returns the message content.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := withRequestTimeout(ctx, req.Timeout, c.timeout)
	defer cancel()

	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = SystemPrompt
	}

	body, err := json.Marshal(openAIRequest{
		Model: req.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	logging.APIDebug("[OpenAI] POST %s/chat/completions model=%s user_len=%d", c.baseURL, req.Model, len(req.UserPrompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: text}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &SchemaError{Reason: fmt.Sprintf("response is not JSON: %v", err)}
	}
	if parsed.Error != nil {
		return "", &SchemaError{Reason: "API error: " + parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &SchemaError{Reason: "no choices returned"}
	}
	content := parsed.Choices[0].Message.Content
	if content == nil {
		return "", &SchemaError{Reason: "choices[0].message.content missing"}
	}

	logging.APIDebug("[OpenAI] completed in %v response_len=%d", time.Since(start), len(*content))
	return *content, nil
}
