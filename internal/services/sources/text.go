package sources

import (
	"context"

	"github.com/ternarybob/sermo/internal/models"
)

// TextProvider passes a source's location value through as literal content
type TextProvider struct{}

// NewTextProvider creates a text pass-through provider
func NewTextProvider() *TextProvider {
	return &TextProvider{}
}

// Compile-time interface assertion
var _ Provider = (*TextProvider)(nil)

// GetContent returns the source's literal text
func (p *TextProvider) GetContent(ctx context.Context, source *models.Source) (string, error) {
	return source.Location, nil
}
