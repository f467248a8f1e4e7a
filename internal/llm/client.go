// Package llm talks to chat-completion endpoints on behalf of the generator.
//
// Every failure comes back as a typed error (TransportError, HTTPError,
// SchemaError, ParseError) so callers can keep looping instead of crashing on
// one bad call.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// SystemPrompt is the default system instruction for JSON-producing calls.
const SystemPrompt = "You are a helpful assistant that outputs only valid JSON."

// CompletionRequest is one chat-completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration // zero uses the client default
}

// Completer returns the textual content of a completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient builds the Completer for cfg.Provider.
func NewClient(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func withRequestTimeout(ctx context.Context, req, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := req
	if timeout <= 0 {
		timeout = fallback
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
