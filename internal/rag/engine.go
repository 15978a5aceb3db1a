package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/models"
	"github.com/ternarybob/sermo/internal/services/sources"
)

// Engine holds one knowledge base's in-memory document set and answers
// retrieval queries against it. Ingestion and retrieval are safe for
// concurrent use; documents are never persisted by the engine.
type Engine struct {
	name     string
	registry *sources.Registry
	chunker  *Chunker
	scorer   *Scorer
	logger   arbor.ILogger

	mu        sync.RWMutex
	documents []*models.Document
}

// NewEngine creates an engine for one knowledge base
func NewEngine(name string, registry *sources.Registry, chunker *Chunker, scorer *Scorer, logger arbor.ILogger) *Engine {
	return &Engine{
		name:     name,
		registry: registry,
		chunker:  chunker,
		scorer:   scorer,
		logger:   logger,
	}
}

// Name returns the knowledge base name the engine serves
func (e *Engine) Name() string {
	return e.name
}

// AddSource resolves the source's content, chunks it, and adds the
// resulting document to the corpus. Adding the same source twice produces
// two documents; callers that want replace semantics remove first.
func (e *Engine) AddSource(ctx context.Context, source *models.Source) (*models.Document, error) {
	content, err := e.registry.Resolve(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("source %s (%s): %w", source.Name, source.ID, err)
	}

	doc := &models.Document{
		ID:        common.NewDocumentID(),
		SourceID:  source.ID,
		Name:      source.Name,
		Origin:    source.Location,
		Content:   content,
		Type:      sources.DocumentTypeFor(source),
		Chunks:    e.chunker.Chunk(content),
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.documents = append(e.documents, doc)
	total := len(e.documents)
	e.mu.Unlock()

	e.logger.Info().
		Str("knowledge_base", e.name).
		Str("source", source.Name).
		Str("document_id", doc.ID).
		Int("chunks", len(doc.Chunks)).
		Int("chars", len(content)).
		Int("total_documents", total).
		Msg("Source ingested")

	return doc, nil
}

// RemoveSource drops every document that was materialized from the given
// source and returns how many were removed.
func (e *Engine) RemoveSource(sourceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.documents[:0]
	removed := 0
	for _, doc := range e.documents {
		if doc.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	e.documents = kept

	if removed > 0 {
		e.logger.Info().
			Str("knowledge_base", e.name).
			Str("source_id", sourceID).
			Int("removed", removed).
			Msg("Source documents removed")
	}

	return removed
}

// GetContext returns the retrieval context for a query: the full corpus
// with document markers when the corpus is small, otherwise the top scored
// chunks. Empty corpus yields an empty string.
func (e *Engine) GetContext(query string, maxChunks int) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scorer.RetrievalContext(e.documents, query, maxChunks)
}

// Documents returns a snapshot of the current document set
func (e *Engine) Documents() []*models.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*models.Document, len(e.documents))
	copy(out, e.documents)
	return out
}

// Stats summarizes the current corpus
func (e *Engine) Stats() models.DocumentStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := models.DocumentStats{TotalDocuments: len(e.documents)}
	for _, doc := range e.documents {
		stats.TotalChunks += len(doc.Chunks)
		stats.TotalCharacters += len(doc.Content)
		if doc.CreatedAt.After(stats.LastIngested) {
			stats.LastIngested = doc.CreatedAt
		}
	}
	return stats
}
