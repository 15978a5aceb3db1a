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

// sources serves GET (list) and POST (create) on
// /api/knowledge-bases/{id}/sources.
func (h *KnowledgeBaseHandler) sources(w http.ResponseWriter, r *http.Request, knowledgeBaseID string) {
	switch r.Method {
	case http.MethodGet:
		srcs, err := h.storage.SourceStorage().ListByKnowledgeBase(r.Context(), knowledgeBaseID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to list sources")
			return
		}
		WriteJSON(w, http.StatusOK, srcs)

	case http.MethodPost:
		if _, err := h.storage.KnowledgeBaseStorage().Get(r.Context(), knowledgeBaseID); err != nil {
			h.writeLookupError(w, err)
			return
		}

		var source models.Source
		if err := json.NewDecoder(r.Body).Decode(&source); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		source.ID = common.NewSourceID()
		source.KnowledgeBaseID = knowledgeBaseID
		if err := source.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := h.storage.SourceStorage().Save(r.Context(), &source); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to save source")
			return
		}

		// A running instance picks the source up immediately; a stopped
		// one ingests it on its next start.
		if source.Enabled {
			if engine, ok := h.manager.Engine(knowledgeBaseID); ok {
				if _, err := engine.AddSource(r.Context(), &source); err != nil {
					h.logger.Warn().
						Err(err).
						Str("source", source.Name).
						Msg("Source saved but live ingestion failed")
				}
			}
		}

		WriteJSON(w, http.StatusCreated, source)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// SourceHandler serves /api/sources/{id} item endpoints
type SourceHandler struct {
	storage interfaces.StorageManager
	manager *apiserver.Manager
	logger  arbor.ILogger
}

// NewSourceHandler creates a source handler
func NewSourceHandler(storage interfaces.StorageManager, manager *apiserver.Manager, logger arbor.ILogger) *SourceHandler {
	return &SourceHandler{
		storage: storage,
		manager: manager,
		logger:  logger,
	}
}

// ItemHandler serves GET/PUT/DELETE on /api/sources/{id}
func (h *SourceHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/sources/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		source, err := h.storage.SourceStorage().Get(r.Context(), id)
		if err != nil {
			h.writeLookupError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, source)

	case http.MethodPut:
		existing, err := h.storage.SourceStorage().Get(r.Context(), id)
		if err != nil {
			h.writeLookupError(w, err)
			return
		}

		var update models.Source
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		update.ID = existing.ID
		update.KnowledgeBaseID = existing.KnowledgeBaseID
		update.CreatedAt = existing.CreatedAt

		if err := update.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.storage.SourceStorage().Save(r.Context(), &update); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to update source")
			return
		}

		// Refresh the live corpus: drop old documents, re-ingest if the
		// source is still enabled.
		if engine, ok := h.manager.Engine(update.KnowledgeBaseID); ok {
			engine.RemoveSource(update.ID)
			if update.Enabled {
				if _, err := engine.AddSource(r.Context(), &update); err != nil {
					h.logger.Warn().
						Err(err).
						Str("source", update.Name).
						Msg("Source updated but live re-ingestion failed")
				}
			}
		}

		WriteJSON(w, http.StatusOK, update)

	case http.MethodDelete:
		existing, err := h.storage.SourceStorage().Get(r.Context(), id)
		if err != nil {
			h.writeLookupError(w, err)
			return
		}

		if err := h.storage.SourceStorage().Delete(r.Context(), id); err != nil {
			h.writeLookupError(w, err)
			return
		}

		if engine, ok := h.manager.Engine(existing.KnowledgeBaseID); ok {
			removed := engine.RemoveSource(id)
			h.logger.Debug().
				Str("source_id", id).
				Int("documents_removed", removed).
				Msg("Source removed from live corpus")
		}

		WriteSuccess(w, "Source deleted")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SourceHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Source not found")
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
