package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SourceStorage implements the SourceStorage interface for Badger
type SourceStorage struct {
	db     *Connection
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *Connection, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates a source configuration
func (s *SourceStorage) Save(ctx context.Context, source *models.Source) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	now := time.Now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}

	s.logger.Debug().
		Str("id", source.ID).
		Str("knowledge_base_id", source.KnowledgeBaseID).
		Str("type", source.Type).
		Msg("Source saved")

	return nil
}

// Get retrieves a source by ID
func (s *SourceStorage) Get(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	err := s.db.Store().Get(id, &source)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("source %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

// ListByKnowledgeBase returns all sources of a knowledge base ordered by
// creation time.
func (s *SourceStorage) ListByKnowledgeBase(ctx context.Context, knowledgeBaseID string) ([]*models.Source, error) {
	var srcs []models.Source
	err := s.db.Store().Find(&srcs, badgerhold.Where("KnowledgeBaseID").Eq(knowledgeBaseID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	sort.Slice(srcs, func(i, j int) bool {
		return srcs[i].CreatedAt.Before(srcs[j].CreatedAt)
	})

	result := make([]*models.Source, len(srcs))
	for i := range srcs {
		result[i] = &srcs[i]
	}
	return result, nil
}

// Delete removes a source configuration
func (s *SourceStorage) Delete(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Source{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("source %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	s.logger.Debug().Str("id", id).Msg("Source deleted")
	return nil
}

// DeleteByKnowledgeBase removes all sources of a knowledge base
func (s *SourceStorage) DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID string) (int, error) {
	sources, err := s.ListByKnowledgeBase(ctx, knowledgeBaseID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, source := range sources {
		if err := s.db.Store().Delete(source.ID, &models.Source{}); err != nil && err != badgerhold.ErrNotFound {
			return deleted, fmt.Errorf("failed to delete source %s: %w", source.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().
			Str("knowledge_base_id", knowledgeBaseID).
			Int("deleted", deleted).
			Msg("Sources deleted with knowledge base")
	}

	return deleted, nil
}
