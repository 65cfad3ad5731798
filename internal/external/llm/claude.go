package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

// DefaultClaudeModel is used when no model is configured
const DefaultClaudeModel = "claude-3-5-haiku-20241022"

// ClaudeProvider calls the Anthropic Messages API
type ClaudeProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *logger.Logger
}

// NewClaudeProvider creates a Claude provider. baseURL is optional.
func NewClaudeProvider(apiKey, model, baseURL string, maxTokens int, temperature float64, log *logger.Logger) (*ClaudeProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: API key is required")
	}
	if model == "" {
		model = DefaultClaudeModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &ClaudeProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      log.WithComponent("claude"),
	}, nil
}

func (p *ClaudeProvider) Name() string  { return "claude" }
func (p *ClaudeProvider) Model() string { return p.model }

// Generate sends one user message and concatenates the text blocks of the reply
func (p *ClaudeProvider) Generate(ctx context.Context, req *contracts.ReasoningRequest) (*contracts.ReasoningResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(temperatureOf(req, p.temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var resp *anthropic.Message
	start := time.Now()
	err := withRetry(ctx, p.logger, p.Name(), 3, 2*time.Second, func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages call: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("claude: empty response")
	}

	p.logger.WithFields(map[string]interface{}{
		"model":         p.model,
		"duration":      time.Since(start),
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}).Debug("claude response")

	return &contracts.ReasoningResponse{Text: text.String(), Model: p.model, Provider: p.Name()}, nil
}

func temperatureOf(req *contracts.ReasoningRequest, fallback float64) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return fallback
}
