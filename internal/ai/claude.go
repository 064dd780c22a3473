package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeSystemPrompt = "You plan browser actions. Respond ONLY with the JSON object, no explanation or markdown."

// claudeModel implements Model using Anthropic's Claude
type claudeModel struct {
	model     string
	baseURL   string
	maxTokens int
	timeout   time.Duration
}

func newClaudeModel(cfg Config) *claudeModel {
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &claudeModel{model: model, baseURL: cfg.BaseURL, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}
}

func (m *claudeModel) Name() string {
	return "claude/" + m.model
}

// Complete sends the prompt and returns the first text block
func (m *claudeModel) Complete(ctx context.Context, credential, prompt string) (string, error) {
	if credential == "" {
		return "", ErrMissingCredential
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	opts := []option.RequestOption{option.WithAPIKey(credential)}
	if m.baseURL != "" {
		opts = append(opts, option.WithBaseURL(m.baseURL))
	}
	client := anthropic.NewClient(opts...)

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(m.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: claudeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return "", fmt.Errorf("empty response from Claude")
	}
	return stripCodeFence(responseText), nil
}

// stripCodeFence unwraps a ```json ... ``` block, which Claude tends to add
// despite being told not to
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(t[:nl]), "{") {
		t = t[nl+1:]
	}
	return strings.TrimSpace(t)
}
