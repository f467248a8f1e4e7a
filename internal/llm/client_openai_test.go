package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/api", Timeout: 5 * time.Second})
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got openAIRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"candidates\":[]}"}}]}`))
	})

	content, err := client.Complete(context.Background(), CompletionRequest{
		UserPrompt:  "make candidates",
		Model:       "gpt-oss:120b",
		Temperature: 0.7,
		MaxTokens:   4096,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"candidates":[]}`, content)

	assert.Equal(t, "gpt-oss:120b", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openAIMessage{Role: "system", Content: SystemPrompt}, got.Messages[0])
	assert.Equal(t, openAIMessage{Role: "user", Content: "make candidates"}, got.Messages[1])
}

func TestOpenAIClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr any
	}{
		{"server error", http.StatusInternalServerError, "boom", &HTTPError{}},
		{"rate limited", http.StatusTooManyRequests, "slow down", &HTTPError{}},
		{"not json", http.StatusOK, "<html>", &SchemaError{}},
		{"no choices", http.StatusOK, `{"choices":[]}`, &SchemaError{}},
		{"null content", http.StatusOK, `{"choices":[{"message":{"content":null}}]}`, &SchemaError{}},
		{"error payload", http.StatusOK, `{"error":{"message":"quota"}}`, &SchemaError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
			require.Error(t, err)

			switch tt.wantErr.(type) {
			case *HTTPError:
				var httpErr *HTTPError
				require.True(t, errors.As(err, &httpErr))
				assert.Equal(t, tt.status, httpErr.StatusCode)
				assert.Equal(t, tt.body, httpErr.Body)
			case *SchemaError:
				var schemaErr *SchemaError
				assert.True(t, errors.As(err, &schemaErr))
			}
		})
	}
}

func TestOpenAIClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: url})
	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "transport_error", Kind(err))
}

func TestOpenAIClient_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "x", Timeout: 50 * time.Millisecond})
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Provider: ProviderOpenAI})
	assert.Error(t, err, "missing key")

	_, err = NewClient(context.Background(), Config{Provider: "carrier-pigeon", APIKey: "k"})
	assert.Error(t, err)

	c, err := NewClient(context.Background(), Config{Provider: ProviderOpenAI, APIKey: "k", BaseURL: "http://localhost:8080/api/"})
	require.NoError(t, err)
	oc, ok := c.(*OpenAIClient)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8080/api", oc.baseURL)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "http_error", Kind(&HTTPError{StatusCode: 502}))
	assert.Equal(t, "schema_error", Kind(&SchemaError{Reason: "x"}))
	assert.Equal(t, "parse_error", Kind(&ParseError{Err: errors.New("bad")}))
	assert.Equal(t, "error", Kind(errors.New("other")))
}
