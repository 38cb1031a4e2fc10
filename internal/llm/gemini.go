package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API with a native response schema.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiProvider creates a Gemini provider. baseURL overrides the API
// endpoint and is mainly useful for proxies and tests.
func NewGeminiProvider(ctx context.Context, model, apiKey, baseURL string, maxTokens int) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(baseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(baseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, maxTokens: int32(maxTokens)}, nil
}

// IsConfigured reports whether a client was created.
func (g *GeminiProvider) IsConfigured() bool {
	return g != nil && g.client != nil
}

// Generate requests a JSON response constrained by schema.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	cfg := &genai.GenerateContentConfig{
		CandidateCount:   1,
		Temperature:      genai.Ptr[float32](0.3),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &SchemaError{Reason: "gemini returned no text"}
	}
	return text, nil
}

func classifyGeminiErr(err error) error {
	if IsTransient(err) {
		return &TransientError{Err: err}
	}
	return err
}
