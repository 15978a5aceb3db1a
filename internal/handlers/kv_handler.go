package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/interfaces"
)

// KVHandler serves operator-managed key/value settings, primarily cloud
// provider API keys. Values are masked on read.
type KVHandler struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewKVHandler creates a key/value handler
func NewKVHandler(kv interfaces.KeyValueStorage, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kv:     kv,
		logger: logger,
	}
}

// maskValue hides all but the last four characters of a stored value
func maskValue(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

type kvSetRequest struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// CollectionHandler serves GET (list, masked) and POST (set) on /api/keys
func (h *KVHandler) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		pairs, err := h.kv.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to list keys")
			return
		}
		for i := range pairs {
			pairs[i].Value = maskValue(pairs[i].Value)
		}
		WriteJSON(w, http.StatusOK, pairs)

	case http.MethodPost:
		var req kvSetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Key) == "" || req.Value == "" {
			WriteError(w, http.StatusBadRequest, "key and value are required")
			return
		}

		if err := h.kv.Set(r.Context(), req.Key, req.Value, req.Description); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to set key")
			return
		}

		h.logger.Info().Str("key", req.Key).Msg("Key/value setting saved")
		WriteSuccess(w, "Key saved")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ItemHandler serves DELETE on /api/keys/{key}
func (h *KVHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	if err := h.kv.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}

	WriteSuccess(w, "Key deleted")
}
