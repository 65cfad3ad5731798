package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/config"
	"github.com/wonny/scout/backend/pkg/logger"
)

const decisionJSON = `{"symbol":"005930","llm_grade":"A"}`

func TestOpenAIProvider_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-test",
			"choices": []map[string]interface{}{
				{"message": chatMessage{Role: "assistant", Content: decisionJSON}},
			},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", "", srv.URL+"/v1/", 512, 0.2, 5*time.Second, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, DefaultOpenAIModel, p.Model())

	temp := 0.0
	resp, err := p.Generate(context.Background(), &contracts.ReasoningRequest{
		System:       "sys",
		Prompt:       "prompt",
		OutputSchema: "{}",
		Temperature:  &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", resp.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.Contains(t, resp.Text, "symbol")

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
	assert.Equal(t, 0.0, got.Temperature)
	assert.Equal(t, 512, got.MaxTokens)
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", "m", srv.URL, 128, 0.2, time.Second, logger.Nop())
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), &contracts.ReasoningRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "empty response")
}

func TestClaudeProvider_Generate(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-haiku-20241022", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       DefaultClaudeModel,
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": decisionJSON}},
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p, err := NewClaudeProvider("key", "", srv.URL, 256, 0.2, logger.Nop())
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), &contracts.ReasoningRequest{System: "sys", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, decisionJSON, resp.Text)
	assert.Equal(t, "claude", resp.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConstructors_RequireAPIKey(t *testing.T) {
	_, err := NewClaudeProvider("", "", "", 1, 0, logger.Nop())
	assert.Error(t, err)

	_, err = NewGeminiProvider(context.Background(), "", "", "", 1, 0, logger.Nop())
	assert.Error(t, err)

	_, err = NewOpenAIProvider("", "", "http://x", 1, 0, time.Second, logger.Nop())
	assert.Error(t, err)

	_, err = NewOpenAIProvider("k", "", "", 1, 0, time.Second, logger.Nop())
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LLMConfig
		wantName string
		wantErr  bool
	}{
		{"claude", config.LLMConfig{Provider: "claude", APIKey: "k"}, "claude", false},
		{"openai", config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: "http://localhost", Timeout: time.Second}, "openai", false},
		{"unknown", config.LLMConfig{Provider: "llama", APIKey: "k"}, "", true},
		{"missing key", config.LLMConfig{Provider: "claude"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), tt.cfg, logger.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("POST: 429 Too Many Requests")))
	assert.True(t, IsRateLimitError(errors.New("RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded")))
	assert.False(t, IsRateLimitError(errors.New("500 internal")))
	assert.False(t, IsRateLimitError(nil))
}

func TestWithRetry(t *testing.T) {
	t.Run("retries rate limit then succeeds", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), logger.Nop(), "test", 3, time.Millisecond, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("429")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), logger.Nop(), "test", 3, time.Millisecond, func() error {
			attempts++
			return errors.New("bad request")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("context cancel stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := withRetry(ctx, logger.Nop(), "test", 3, time.Hour, func() error {
			return errors.New("429")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
