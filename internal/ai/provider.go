package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model is a text-in, text-out plan generation capability.
// The credential is supplied per call and never retained.
type Model interface {
	Name() string
	Complete(ctx context.Context, credential, prompt string) (string, error)
}

// Config selects and tunes a Model
type Config struct {
	Provider  string        // gemini, claude, openai
	Model     string        // provider-specific model override
	BaseURL   string        // API endpoint override
	MaxTokens int           // response token cap
	Timeout   time.Duration // per-call timeout, 0 for none
}

// ErrUnknownProvider is returned for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrMissingCredential is returned when a call has no API key.
var ErrMissingCredential = errors.New("missing API key")

// NewModel creates a new Model based on the provider name
func NewModel(cfg Config) (Model, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini", "google":
		return newGeminiModel(cfg), nil
	case "claude", "anthropic":
		return newClaudeModel(cfg), nil
	case "openai", "gpt":
		return newOpenAIModel(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: gemini, claude, openai)", ErrUnknownProvider, cfg.Provider)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
