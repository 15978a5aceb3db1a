package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/apiserver"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
)

// KnowledgeBaseHandler serves knowledge base configuration and lifecycle
// endpoints on the admin server.
type KnowledgeBaseHandler struct {
	storage interfaces.StorageManager
	manager *apiserver.Manager
	logger  arbor.ILogger
}

// NewKnowledgeBaseHandler creates a knowledge base handler
func NewKnowledgeBaseHandler(storage interfaces.StorageManager, manager *apiserver.Manager, logger arbor.ILogger) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{
		storage: storage,
		manager: manager,
		logger:  logger,
	}
}

// knowledgeBaseStatus is the per-knowledge-base view returned by list and
// status endpoints.
type knowledgeBaseStatus struct {
	*models.KnowledgeBase
	State    apiserver.InstanceState `json:"state"`
	Requests int64                   `json:"requests"`
}

func (h *KnowledgeBaseHandler) status(kb *models.KnowledgeBase) knowledgeBaseStatus {
	out := knowledgeBaseStatus{KnowledgeBase: kb, State: apiserver.StateStopped}
	if instance, ok := h.manager.Instance(kb.ID); ok {
		out.State = instance.State()
		out.Requests = instance.RequestCount()
	}
	return out
}

// CollectionHandler serves GET (list) and POST (create) on /api/knowledge-bases
func (h *KnowledgeBaseHandler) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *KnowledgeBaseHandler) list(w http.ResponseWriter, r *http.Request) {
	kbs, err := h.storage.KnowledgeBaseStorage().List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list knowledge bases")
		return
	}

	out := make([]knowledgeBaseStatus, len(kbs))
	for i, kb := range kbs {
		out[i] = h.status(kb)
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *KnowledgeBaseHandler) create(w http.ResponseWriter, r *http.Request) {
	var kb models.KnowledgeBase
	if err := json.NewDecoder(r.Body).Decode(&kb); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	kb.ID = common.NewKnowledgeBaseID()
	if err := kb.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.storage.KnowledgeBaseStorage().Save(r.Context(), &kb); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save knowledge base")
		return
	}

	h.logger.Info().
		Str("id", kb.ID).
		Str("name", kb.Name).
		Int("port", kb.Port).
		Msg("Knowledge base created")

	WriteJSON(w, http.StatusCreated, h.status(&kb))
}

// ItemHandler routes /api/knowledge-bases/{id} and its subpaths:
// start, stop, status, and sources.
func (h *KnowledgeBaseHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/knowledge-bases/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		h.item(w, r, id)
		return
	}

	switch parts[1] {
	case "start":
		h.start(w, r, id)
	case "stop":
		h.stop(w, r, id)
	case "status":
		h.itemStatus(w, r, id)
	case "sources":
		h.sources(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *KnowledgeBaseHandler) item(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		kb, err := h.storage.KnowledgeBaseStorage().Get(r.Context(), id)
		if err != nil {
			h.writeLookupError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, h.status(kb))

	case http.MethodPut:
		existing, err := h.storage.KnowledgeBaseStorage().Get(r.Context(), id)
		if err != nil {
			h.writeLookupError(w, err)
			return
		}

		var update models.KnowledgeBase
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		update.ID = existing.ID
		update.CreatedAt = existing.CreatedAt

		if err := update.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.storage.KnowledgeBaseStorage().Save(r.Context(), &update); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to update knowledge base")
			return
		}
		WriteJSON(w, http.StatusOK, h.status(&update))

	case http.MethodDelete:
		// Stop the listener first; deleting a running knowledge base is
		// allowed and takes its instance down.
		if err := h.manager.StopInstance(r.Context(), id); err != nil {
			h.logger.Warn().Err(err).Str("id", id).Msg("Instance did not stop cleanly during delete")
		}

		deleted, err := h.storage.SourceStorage().DeleteByKnowledgeBase(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete sources")
			return
		}

		if err := h.storage.KnowledgeBaseStorage().Delete(r.Context(), id); err != nil {
			h.writeLookupError(w, err)
			return
		}

		h.logger.Info().
			Str("id", id).
			Int("sources_deleted", deleted).
			Msg("Knowledge base deleted")

		WriteSuccess(w, "Knowledge base deleted")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *KnowledgeBaseHandler) start(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.manager.StartInstance(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Knowledge base not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to start instance")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteSuccess(w, "Instance started")
}

func (h *KnowledgeBaseHandler) stop(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.manager.StopInstance(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to stop instance")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, "Instance stopped")
}

func (h *KnowledgeBaseHandler) itemStatus(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	kb, err := h.storage.KnowledgeBaseStorage().Get(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.status(kb))
}

func (h *KnowledgeBaseHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Knowledge base not found")
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
