package apiserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/rag"
	"github.com/ternarybob/sermo/internal/services/sources"
)

// Manager owns the knowledge base API instances. It enforces at most one
// listener per knowledge base and handles corpus ingestion when an
// instance starts.
type Manager struct {
	storage   interfaces.StorageManager
	registry  *sources.Registry
	llm       interfaces.LLMService
	ragConfig *common.RAGConfig
	modelName string
	logger    arbor.ILogger

	mu        sync.Mutex
	instances map[string]*Instance
}

// NewManager creates an instance manager
func NewManager(storage interfaces.StorageManager, registry *sources.Registry, llm interfaces.LLMService, ragConfig *common.RAGConfig, modelName string, logger arbor.ILogger) *Manager {
	return &Manager{
		storage:   storage,
		registry:  registry,
		llm:       llm,
		ragConfig: ragConfig,
		modelName: modelName,
		logger:    logger,
		instances: make(map[string]*Instance),
	}
}

// StartInstance starts the API listener for a knowledge base: it loads the
// stored configuration, ingests the enabled sources into a fresh corpus,
// and binds the configured port. Starting an already-running instance is a
// no-op. Sources that fail to ingest are logged and excluded; a port that
// cannot be bound fails the whole start.
func (m *Manager) StartInstance(ctx context.Context, knowledgeBaseID string) error {
	m.mu.Lock()
	if existing, ok := m.instances[knowledgeBaseID]; ok {
		state := existing.State()
		m.mu.Unlock()
		m.logger.Debug().
			Str("id", knowledgeBaseID).
			Str("state", string(state)).
			Msg("Instance already running, start ignored")
		return nil
	}
	m.mu.Unlock()

	kb, err := m.storage.KnowledgeBaseStorage().Get(ctx, knowledgeBaseID)
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}

	engine, err := m.buildCorpus(ctx, kb.ID, kb.Name)
	if err != nil {
		return err
	}

	instance := NewInstance(kb, engine, m.llm, m.ragConfig, m.modelName, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the lock; a concurrent start may have won
	if _, ok := m.instances[knowledgeBaseID]; ok {
		m.logger.Debug().
			Str("id", knowledgeBaseID).
			Msg("Instance started concurrently, start ignored")
		return nil
	}

	if err := instance.Start(); err != nil {
		return err
	}

	m.instances[knowledgeBaseID] = instance
	return nil
}

// buildCorpus creates an engine for the knowledge base and ingests every
// enabled source. Per-source failures are logged and skipped so one bad
// source cannot keep a knowledge base offline.
func (m *Manager) buildCorpus(ctx context.Context, knowledgeBaseID, name string) (*rag.Engine, error) {
	srcs, err := m.storage.SourceStorage().ListByKnowledgeBase(ctx, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	expansions := rag.DefaultKeywordExpansions()
	if !m.ragConfig.KeywordExpansion {
		expansions = nil
	}

	engine := rag.NewEngine(
		name,
		m.registry,
		rag.NewChunker(m.ragConfig.ChunkSize),
		rag.NewScorer(rag.ScorerConfig{
			SmallCorpusThreshold: m.ragConfig.SmallCorpusThreshold,
			KeywordExpansions:    expansions,
		}),
		m.logger,
	)

	ingested, failed := 0, 0
	for _, source := range srcs {
		if !source.Enabled {
			continue
		}
		if _, err := engine.AddSource(ctx, source); err != nil {
			failed++
			m.logger.Warn().
				Err(err).
				Str("knowledge_base", name).
				Str("source", source.Name).
				Msg("Source ingestion failed, excluding from corpus")
			continue
		}
		ingested++
	}

	m.logger.Info().
		Str("knowledge_base", name).
		Int("ingested", ingested).
		Int("failed", failed).
		Msg("Corpus built")

	return engine, nil
}

// StopInstance stops a running instance. Stopping one that is not running
// is a no-op.
func (m *Manager) StopInstance(ctx context.Context, knowledgeBaseID string) error {
	m.mu.Lock()
	instance, ok := m.instances[knowledgeBaseID]
	if ok {
		delete(m.instances, knowledgeBaseID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug().
			Str("id", knowledgeBaseID).
			Msg("Instance not running, stop ignored")
		return nil
	}

	return instance.Stop(ctx)
}

// StopAll stops every running instance, used at shutdown
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	running := make([]*Instance, 0, len(m.instances))
	for id, instance := range m.instances {
		running = append(running, instance)
		delete(m.instances, id)
	}
	m.mu.Unlock()

	for _, instance := range running {
		if err := instance.Stop(ctx); err != nil {
			m.logger.Warn().
				Err(err).
				Str("knowledge_base", instance.KnowledgeBase().Name).
				Msg("Instance did not stop cleanly")
		}
	}
}

// Instance returns the running instance for a knowledge base, if any
func (m *Manager) Instance(knowledgeBaseID string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, ok := m.instances[knowledgeBaseID]
	return instance, ok
}

// State reports the lifecycle state of a knowledge base's listener.
// A knowledge base without a tracked instance is stopped.
func (m *Manager) State(knowledgeBaseID string) InstanceState {
	if instance, ok := m.Instance(knowledgeBaseID); ok {
		return instance.State()
	}
	return StateStopped
}

// Engine returns the corpus engine behind a running instance, used by the
// in-app chat to query a started knowledge base.
func (m *Manager) Engine(knowledgeBaseID string) (*rag.Engine, bool) {
	instance, ok := m.Instance(knowledgeBaseID)
	if !ok {
		return nil, false
	}
	return instance.engine, true
}
