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

// KnowledgeBaseStorage implements the KnowledgeBaseStorage interface for Badger
type KnowledgeBaseStorage struct {
	db     *Connection
	logger arbor.ILogger
}

// NewKnowledgeBaseStorage creates a new KnowledgeBaseStorage instance
func NewKnowledgeBaseStorage(db *Connection, logger arbor.ILogger) interfaces.KnowledgeBaseStorage {
	return &KnowledgeBaseStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates a knowledge base configuration
func (s *KnowledgeBaseStorage) Save(ctx context.Context, kb *models.KnowledgeBase) error {
	if err := kb.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base: %w", err)
	}

	now := time.Now()
	if kb.CreatedAt.IsZero() {
		kb.CreatedAt = now
	}
	kb.UpdatedAt = now

	if err := s.db.Store().Upsert(kb.ID, kb); err != nil {
		return fmt.Errorf("failed to save knowledge base: %w", err)
	}

	s.logger.Debug().
		Str("id", kb.ID).
		Str("name", kb.Name).
		Int("port", kb.Port).
		Msg("Knowledge base saved")

	return nil
}

// Get retrieves a knowledge base by ID
func (s *KnowledgeBaseStorage) Get(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := s.db.Store().Get(id, &kb)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("knowledge base %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	return &kb, nil
}

// List returns all knowledge bases ordered by creation time
func (s *KnowledgeBaseStorage) List(ctx context.Context) ([]*models.KnowledgeBase, error) {
	var kbs []models.KnowledgeBase
	if err := s.db.Store().Find(&kbs, nil); err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}

	sort.Slice(kbs, func(i, j int) bool {
		return kbs[i].CreatedAt.Before(kbs[j].CreatedAt)
	})

	result := make([]*models.KnowledgeBase, len(kbs))
	for i := range kbs {
		result[i] = &kbs[i]
	}
	return result, nil
}

// Delete removes a knowledge base configuration
func (s *KnowledgeBaseStorage) Delete(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.KnowledgeBase{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("knowledge base %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}

	s.logger.Debug().Str("id", id).Msg("Knowledge base deleted")
	return nil
}
