package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/TobiSchelling/linkscope/internal/config"
)

// Provider is the interface for text-generation services. Generate returns
// raw JSON text that should match schema.
type Provider interface {
	Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
	IsConfigured() bool
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model     string
	BaseURL   string
	MaxTokens int
	client    *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, maxTokens int) *OllamaProvider {
	return &OllamaProvider{
		Model:     model,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 300 * time.Second},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	zap.L().Warn("ollama model not found", zap.String("model", o.Model))
	return false
}

// Generate sends a prompt to Ollama in JSON mode and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": withSchema(prompt, schema)},
		},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"num_predict": o.MaxTokens,
			"temperature": 0.3,
		},
	}

	respBody, err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", "", body, "ollama")
	if err != nil {
		return "", err
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.Message.Content, nil
}

// OpenAIProvider is an OpenAI-compatible chat completions provider.
type OpenAIProvider struct {
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKeyEnv, baseURL string, maxTokens int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		Model:     model,
		APIKey:    os.Getenv(apiKeyEnv),
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 180 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI in JSON-object mode and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": withSchema(prompt, schema)},
		},
		"response_format": map[string]string{"type": "json_object"},
		"max_tokens":      o.MaxTokens,
		"temperature":     0.3,
	}

	respBody, err := postJSON(ctx, o.client, o.BaseURL+"/chat/completions", o.APIKey, body, "OpenAI")
	if err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return result.Choices[0].Message.Content, nil
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, body any, service string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", service, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", service, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(service, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// withSchema appends the expected JSON shape for providers without native
// schema support.
func withSchema(prompt string, schema *genai.Schema) string {
	if schema == nil {
		return prompt
	}
	shape, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return prompt
	}
	return prompt + "\n\nRespond with a single JSON object matching this JSON schema:\n" + string(shape)
}

// CreateProvider creates a text-generation provider from configuration,
// falling back to OpenAI when the preferred provider is unavailable.
func CreateProvider(ctx context.Context, cfg config.Generation) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.Model, os.Getenv(cfg.APIKeyEnv), cfg.BaseURL, cfg.MaxTokens)
		if err == nil && p.IsConfigured() {
			zap.L().Info("using gemini", zap.String("model", cfg.Model))
			return p
		}
		zap.L().Warn("gemini not available, trying OpenAI fallback", zap.Error(err))
	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.MaxTokens)
		if p.IsConfigured() {
			zap.L().Info("using ollama", zap.String("model", cfg.Model))
			return p
		}
		zap.L().Warn("ollama not available, trying OpenAI fallback")
	}

	baseURL := ""
	if strings.ToLower(cfg.Provider) == "openai" {
		baseURL = cfg.BaseURL
	}
	p := NewOpenAIProvider(cfg.OpenAIModel, cfg.OpenAIKeyEnv, baseURL, cfg.MaxTokens)
	if p.IsConfigured() {
		zap.L().Info("using OpenAI", zap.String("model", cfg.OpenAIModel))
		return p
	}

	zap.L().Error("no text-generation provider available",
		zap.String("provider", cfg.Provider),
		zap.String("api_key_env", cfg.APIKeyEnv))
	return nil
}
