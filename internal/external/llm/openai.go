package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/httputil"
	"github.com/wonny/scout/backend/pkg/logger"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider calls any OpenAI-compatible chat completions endpoint
type OpenAIProvider struct {
	http        *httputil.Client
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIProvider creates a provider on top of the shared HTTP client
func NewOpenAIProvider(apiKey, model, baseURL string, maxTokens int, temperature float64, timeout time.Duration, log *logger.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("openai: base URL is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := httputil.New(log.WithComponent("openai"), timeout).
		WithRetry(2, time.Second).
		WithHeader("Authorization", "Bearer "+apiKey)

	return &OpenAIProvider{
		http:        client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Generate posts a chat completion and returns the first choice
func (p *OpenAIProvider) Generate(ctx context.Context, req *contracts.ReasoningRequest) (*contracts.ReasoningResponse, error) {
	body := chatRequest{
		Model:       p.model,
		Temperature: temperatureOf(req, p.temperature),
		MaxTokens:   req.MaxTokens,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = p.maxTokens
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.OutputSchema != "" {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp chatResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/chat/completions", body, &resp); err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai: empty response")
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &contracts.ReasoningResponse{Text: resp.Choices[0].Message.Content, Model: model, Provider: p.Name()}, nil
}
