package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"prodagent/internal/config"
	"prodagent/internal/logging"
)

// Gemini is the production Generator backed by Google's Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGemini creates a Gemini generator from generation config.
func NewGemini(ctx context.Context, cfg config.GenerationConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate runs one model call and returns the raw text plus token usage.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	temp32 := float32(temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:      &temp32,
		ResponseMIMEType: "application/json",
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("Gemini generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("Gemini returned empty response")
	}

	resp := &Response{Text: text}
	if result.UsageMetadata != nil {
		resp.Usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.Usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	logging.APIDebug("gemini %s: %d prompt tokens, %d output tokens", g.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return resp, nil
}

// Name identifies the backing model.
func (g *Gemini) Name() string {
	return fmt.Sprintf("gemini:%s", g.model)
}
