package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// geminiModel implements Model using Google's Gemini API in JSON mode
type geminiModel struct {
	model     string
	baseURL   string
	maxTokens int
	timeout   time.Duration
}

func newGeminiModel(cfg Config) *geminiModel {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiModel{model: model, baseURL: cfg.BaseURL, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}
}

func (m *geminiModel) Name() string {
	return "gemini/" + m.model
}

// Complete sends the prompt and returns the JSON text of the first candidate
func (m *geminiModel) Complete(ctx context.Context, credential, prompt string) (string, error) {
	if credential == "" {
		return "", ErrMissingCredential
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	clientCfg := &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	}
	if m.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: m.baseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  int32(m.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}
