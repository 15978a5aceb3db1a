package sources

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/models"
)

// Provider resolves a source descriptor to plain text content. A provider
// that cannot read its content returns an error wrapping
// models.ErrSourceUnavailable so callers can recover per-source.
type Provider interface {
	GetContent(ctx context.Context, source *models.Source) (string, error)
}

// Registry maps source types to providers. New source kinds are added by
// registering an implementation; there is no inheritance involved.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// NewDefaultRegistry creates a registry with the file, web and text
// providers registered.
func NewDefaultRegistry(searchCfg *common.SearchConfig, logger arbor.ILogger) *Registry {
	r := NewRegistry()
	r.Register(models.SourceTypeFile, NewFileProvider(logger))
	r.Register(models.SourceTypeWeb, NewWebProvider(searchCfg.UserAgent, searchCfg.RequestTimeout, logger))
	r.Register(models.SourceTypeText, NewTextProvider())
	return r
}

// Register adds or replaces the provider for a source type
func (r *Registry) Register(sourceType string, provider Provider) {
	r.providers[sourceType] = provider
}

// Get returns the provider for a source type
func (r *Registry) Get(sourceType string) (Provider, bool) {
	provider, ok := r.providers[sourceType]
	return provider, ok
}

// Resolve looks up the provider for the source's type and fetches its
// content. Returns models.ErrSourceTypeUnsupported when no provider is
// registered for the type.
func (r *Registry) Resolve(ctx context.Context, source *models.Source) (string, error) {
	provider, ok := r.providers[source.Type]
	if !ok {
		return "", fmt.Errorf("no provider for source type %q: %w", source.Type, models.ErrSourceTypeUnsupported)
	}
	return provider.GetContent(ctx, source)
}

// DocumentTypeFor derives the document type tag for a source
func DocumentTypeFor(source *models.Source) models.DocumentType {
	switch source.Type {
	case models.SourceTypeWeb:
		return models.DocumentTypeWeb
	case models.SourceTypeText:
		return models.DocumentTypeText
	case models.SourceTypeFile:
		switch strings.ToLower(filepath.Ext(source.Location)) {
		case ".txt", ".md", ".markdown", ".csv", ".log", ".json":
			return models.DocumentTypeText
		case ".pdf":
			return models.DocumentTypePDF
		case ".docx":
			return models.DocumentTypeWord
		default:
			return models.DocumentTypeUnknown
		}
	default:
		return models.DocumentTypeUnknown
	}
}
