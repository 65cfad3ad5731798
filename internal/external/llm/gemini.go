package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-3-flash-preview"

// GeminiProvider calls the Gemini API through google.golang.org/genai
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *logger.Logger
}

// NewGeminiProvider creates a Gemini provider. baseURL is optional.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, maxTokens int, temperature float64, log *logger.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      log.WithComponent("gemini"),
	}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

// Generate requests JSON output when the request carries a schema hint
func (p *GeminiProvider) Generate(ctx context.Context, req *contracts.ReasoningRequest) (*contracts.ReasoningResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperatureOf(req, p.temperature))),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.OutputSchema != "" {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	start := time.Now()
	err := withRetry(ctx, p.logger, p.Name(), 3, 2*time.Second, func() error {
		var callErr error
		resp, callErr = p.client.Models.GenerateContent(ctx, p.model, contents, config)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate call: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty response")
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini: empty text in response")
	}

	p.logger.WithFields(map[string]interface{}{
		"model":    p.model,
		"duration": time.Since(start),
	}).Debug("gemini response")

	return &contracts.ReasoningResponse{Text: text, Model: p.model, Provider: p.Name()}, nil
}
