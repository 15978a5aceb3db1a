package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// Connection owns the badgerhold store shared by the typed storage
// layers. One connection is opened at startup and closed on shutdown.
type Connection struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// Open prepares the data directory and opens the badgerhold store. With
// reset_on_startup set, any existing database is wiped first.
func Open(logger arbor.ILogger, config *common.BadgerConfig) (*Connection, error) {
	if config.ResetOnStartup {
		wipeDatabase(config.Path, logger)
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	// Badger's own logger is noisy; arbor carries the storage logs
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", config.Path, err)
	}

	logger.Debug().
		Str("path", config.Path).
		Bool("reset", config.ResetOnStartup).
		Msg("Badger store opened")

	return &Connection{store: store, logger: logger, path: config.Path}, nil
}

// wipeDatabase removes a previous database directory before reopening
func wipeDatabase(path string, logger arbor.ILogger) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	logger.Debug().Str("path", path).Msg("reset_on_startup set, removing previous database")
	if err := os.RemoveAll(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to remove previous database")
	}
}

// Store returns the shared badgerhold store
func (c *Connection) Store() *badgerhold.Store {
	return c.store
}

// Close releases the store
func (c *Connection) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
