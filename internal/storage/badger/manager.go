package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db            *Connection
	knowledgeBase interfaces.KnowledgeBaseStorage
	source        interfaces.SourceStorage
	kv            interfaces.KeyValueStorage
	logger        arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := Open(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:            db,
		knowledgeBase: NewKnowledgeBaseStorage(db, logger),
		source:        NewSourceStorage(db, logger),
		kv:            NewKVStorage(db, logger),
		logger:        logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// KnowledgeBaseStorage returns the knowledge base storage interface
func (m *Manager) KnowledgeBaseStorage() interfaces.KnowledgeBaseStorage {
	return m.knowledgeBase
}

// SourceStorage returns the source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.source
}

// KeyValueStorage returns the key/value storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
