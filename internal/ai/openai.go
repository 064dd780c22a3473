package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIModel implements Model using OpenAI chat completions in JSON mode
type openAIModel struct {
	model     string
	baseURL   string
	maxTokens int
	timeout   time.Duration
}

func newOpenAIModel(cfg Config) *openAIModel {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &openAIModel{model: model, baseURL: cfg.BaseURL, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}
}

func (m *openAIModel) Name() string {
	return "openai/" + m.model
}

// Complete sends the prompt and returns the first choice's content
func (m *openAIModel) Complete(ctx context.Context, credential, prompt string) (string, error) {
	if credential == "" {
		return "", ErrMissingCredential
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	clientCfg := openai.DefaultConfig(credential)
	if m.baseURL != "" {
		clientCfg.BaseURL = m.baseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens: m.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
