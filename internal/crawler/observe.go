package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultMarkupLimit bounds the markup excerpt, in characters
const DefaultMarkupLimit = 5000

// ErrObservationAbsent is returned when the page could not be observed.
var ErrObservationAbsent = errors.New("observation absent")

// Source reads raw page state. Implementations must not mutate the page.
type Source interface {
	Snapshot(ctx context.Context) (*Node, error)
	Content(ctx context.Context) (string, error)
}

// Builder turns live page state into an Observation
type Builder struct {
	limit  int
	logger *zap.Logger
}

// NewBuilder creates a Builder; limit <= 0 selects DefaultMarkupLimit.
func NewBuilder(limit int, logger *zap.Logger) *Builder {
	if limit <= 0 {
		limit = DefaultMarkupLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{limit: limit, logger: logger.Named("observer")}
}

// Build captures the accessibility tree and a markup excerpt.
// Any read failure or empty read yields ErrObservationAbsent; a partial
// observation is never returned.
func (b *Builder) Build(ctx context.Context, src Source) (*Observation, error) {
	tree, err := src.Snapshot(ctx)
	if err != nil {
		return nil, b.absent("accessibility snapshot", err)
	}
	if tree == nil {
		return nil, b.absent("accessibility snapshot", errors.New("empty tree"))
	}

	html, err := src.Content(ctx)
	if err != nil {
		return nil, b.absent("page content", err)
	}
	if html == "" {
		return nil, b.absent("page content", errors.New("empty markup"))
	}

	obs := &Observation{
		AccessibilityTree: tree,
		HTMLSnippet:       Truncate(html, b.limit),
	}
	b.logger.Debug("Observed page",
		zap.Int("ax_nodes", tree.Count()),
		zap.Int("markup_chars", len([]rune(html))),
		zap.Int("snippet_chars", len([]rune(obs.HTMLSnippet))))
	return obs, nil
}

func (b *Builder) absent(what string, err error) error {
	b.logger.Warn("Error getting page context", zap.String("read", what), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrObservationAbsent, what, err)
}

// Truncate keeps the first limit characters of s
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
