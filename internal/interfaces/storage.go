package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/sermo/internal/models"
)

// ErrKeyNotFound is returned when a key/value lookup misses
var ErrKeyNotFound = errors.New("key not found")

// ErrNotFound is returned when a stored record does not exist
var ErrNotFound = errors.New("record not found")

// KeyValuePair is a stored key/value entry, used for API keys and other
// operator-managed settings.
type KeyValuePair struct {
	Key         string    `json:"key" badgerhold:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KnowledgeBaseStorage persists knowledge base configuration. Documents
// are never stored; only the configuration needed to rebuild a corpus.
type KnowledgeBaseStorage interface {
	Save(ctx context.Context, kb *models.KnowledgeBase) error
	Get(ctx context.Context, id string) (*models.KnowledgeBase, error)
	List(ctx context.Context) ([]*models.KnowledgeBase, error)
	Delete(ctx context.Context, id string) error
}

// SourceStorage persists source configuration per knowledge base
type SourceStorage interface {
	Save(ctx context.Context, source *models.Source) error
	Get(ctx context.Context, id string) (*models.Source, error)
	ListByKnowledgeBase(ctx context.Context, knowledgeBaseID string) ([]*models.Source, error)
	Delete(ctx context.Context, id string) error

	// DeleteByKnowledgeBase removes all sources of a knowledge base and
	// returns how many were deleted. Used when a knowledge base is deleted.
	DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID string) (int, error)
}

// KeyValueStorage provides operator-managed key/value settings
type KeyValueStorage interface {
	KeyValueStore
	Set(ctx context.Context, key, value, description string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]KeyValuePair, error)
}

// StorageManager bundles the storage interfaces behind one lifecycle
type StorageManager interface {
	KnowledgeBaseStorage() KnowledgeBaseStorage
	SourceStorage() SourceStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
