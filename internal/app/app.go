package app

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/apiserver"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/handlers"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/rag"
	"github.com/ternarybob/sermo/internal/services/chat"
	"github.com/ternarybob/sermo/internal/services/llm"
	"github.com/ternarybob/sermo/internal/services/search"
	"github.com/ternarybob/sermo/internal/services/sources"
	"github.com/ternarybob/sermo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager  interfaces.StorageManager
	LLMService      interfaces.LLMService
	SearchService   *search.WebSearchService
	SourceRegistry  *sources.Registry
	InstanceManager *apiserver.Manager
	ChatService     *chat.ChatService

	// HTTP handlers
	KnowledgeBaseHandler *handlers.KnowledgeBaseHandler
	SourceHandler        *handlers.SourceHandler
	ChatHandler          *handlers.ChatHandler
	KVHandler            *handlers.KVHandler
	StatusHandler        *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, err
	}
	a.StorageManager = storageManager

	llmService, err := llm.NewLLMService(cfg, storageManager.KeyValueStorage(), logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}
	a.LLMService = llmService

	a.SearchService = search.NewWebSearchService(&cfg.Search, logger)
	a.SourceRegistry = sources.NewDefaultRegistry(&cfg.Search, logger)

	a.InstanceManager = apiserver.NewManager(
		storageManager,
		a.SourceRegistry,
		llmService,
		&cfg.RAG,
		a.modelName(),
		logger,
	)

	a.ChatService = chat.NewChatService(
		llmService,
		rag.NewAssembler(cfg.RAG.SessionDocumentCap),
		a.SearchService,
		&cfg.RAG,
		logger,
	)

	a.KnowledgeBaseHandler = handlers.NewKnowledgeBaseHandler(storageManager, a.InstanceManager, logger)
	a.SourceHandler = handlers.NewSourceHandler(storageManager, a.InstanceManager, logger)
	a.ChatHandler = handlers.NewChatHandler(a.ChatService, storageManager, a.InstanceManager, logger)
	a.KVHandler = handlers.NewKVHandler(storageManager.KeyValueStorage(), logger)
	a.StatusHandler = handlers.NewStatusHandler(cfg, storageManager, a.InstanceManager, llmService, logger)

	logger.Info().
		Str("provider", cfg.LLM.Provider).
		Str("storage", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return a, nil
}

// modelName resolves the model identifier reported in API responses
func (a *App) modelName() string {
	switch a.Config.LLM.Provider {
	case common.LLMProviderClaude:
		return a.Config.LLM.Claude.Model
	case common.LLMProviderGemini:
		return a.Config.LLM.Gemini.Model
	default:
		return a.Config.LLM.ChatModel
	}
}

// Close shuts down instances, the LLM backend and storage, in that order
func (a *App) Close(ctx context.Context) {
	a.InstanceManager.StopAll(ctx)

	if err := a.LLMService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service did not close cleanly")
	}

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage did not close cleanly")
	}

	a.Logger.Info().Msg("Application closed")
}
