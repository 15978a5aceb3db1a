package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/apiserver"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
)

// StatusHandler serves application status and version endpoints
type StatusHandler struct {
	config  *common.Config
	storage interfaces.StorageManager
	manager *apiserver.Manager
	llm     interfaces.LLMService
	logger  arbor.ILogger
}

// NewStatusHandler creates a status handler
func NewStatusHandler(config *common.Config, storage interfaces.StorageManager, manager *apiserver.Manager, llm interfaces.LLMService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		config:  config,
		storage: storage,
		manager: manager,
		llm:     llm,
		logger:  logger,
	}
}

// HealthHandler serves GET /api/health: the admin server is alive, and the
// inference backend state is reported alongside.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	llmStatus := "ok"
	if err := h.llm.HealthCheck(r.Context()); err != nil {
		llmStatus = err.Error()
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"llm":    llmStatus,
		"mode":   string(h.llm.GetMode()),
	})
}

// VersionHandler serves GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
	})
}

// GetStatusHandler serves GET /api/status: environment, provider, and a
// summary of every knowledge base with its listener state.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	kbs, err := h.storage.KnowledgeBaseStorage().List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list knowledge bases")
		return
	}

	type kbSummary struct {
		ID    string                  `json:"id"`
		Name  string                  `json:"name"`
		Port  int                     `json:"port"`
		State apiserver.InstanceState `json:"state"`
	}

	summaries := make([]kbSummary, len(kbs))
	running := 0
	for i, kb := range kbs {
		state := h.manager.State(kb.ID)
		if state == apiserver.StateRunning {
			running++
		}
		summaries[i] = kbSummary{ID: kb.ID, Name: kb.Name, Port: kb.Port, State: state}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":         common.GetVersion(),
		"environment":     h.config.Environment,
		"llm_provider":    h.config.LLM.Provider,
		"llm_mode":        string(h.llm.GetMode()),
		"knowledge_bases": summaries,
		"running":         running,
	})
}
