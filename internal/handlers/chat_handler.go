package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/apiserver"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/services/chat"
)

// ChatHandler serves the in-app conversation endpoints on the admin server
type ChatHandler struct {
	chat    *chat.ChatService
	storage interfaces.StorageManager
	manager *apiserver.Manager
	logger  arbor.ILogger
}

// NewChatHandler creates a chat handler
func NewChatHandler(chatService *chat.ChatService, storage interfaces.StorageManager, manager *apiserver.Manager, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		chat:    chatService,
		storage: storage,
		manager: manager,
		logger:  logger,
	}
}

type chatSendRequest struct {
	Content   string `json:"content"`
	WebSearch bool   `json:"web_search"`
}

// SendHandler serves POST /api/chat
func (h *ChatHandler) SendHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	response, err := h.chat.Send(r.Context(), req.Content, req.WebSearch)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"response": response})
}

// StreamHandler serves POST /api/chat/stream as SSE. Frames carry JSON
// token payloads and the stream ends with a literal [DONE] frame.
func (h *ChatHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		WriteError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	stream, err := h.chat.SendStream(r.Context(), req.Content, req.WebSearch)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for token := range stream {
		payload, err := json.Marshal(map[string]string{"content": token})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// HistoryHandler serves GET /api/chat/history
func (h *ChatHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.chat.History())
}

// ResetHandler serves POST /api/chat/reset
func (h *ChatHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.chat.Reset()
	WriteSuccess(w, "Conversation reset")
}

type attachRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// AttachHandler serves POST (attach) and DELETE (detach) on /api/chat/attach
func (h *ChatHandler) AttachHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req attachRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.Name == "" || req.Content == "" {
			WriteError(w, http.StatusBadRequest, "name and content are required")
			return
		}
		h.chat.AttachDocument(req.Name, req.Content)
		WriteSuccess(w, "Document attached")

	case http.MethodDelete:
		h.chat.DetachDocument()
		WriteSuccess(w, "Document detached")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type selectRequest struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
}

// SelectHandler serves POST /api/chat/select. Selecting requires the
// knowledge base's instance to be running, since the corpus only exists
// inside a started instance. An empty ID deselects.
func (h *ChatHandler) SelectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.KnowledgeBaseID == "" {
		h.chat.SelectKnowledgeBase(nil, "")
		WriteSuccess(w, "Knowledge base deselected")
		return
	}

	kb, err := h.storage.KnowledgeBaseStorage().Get(r.Context(), req.KnowledgeBaseID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Knowledge base not found")
		return
	}

	engine, ok := h.manager.Engine(req.KnowledgeBaseID)
	if !ok {
		WriteError(w, http.StatusConflict, "Knowledge base is not running; start it first")
		return
	}

	h.chat.SelectKnowledgeBase(engine, kb.SystemPrompt)
	WriteSuccess(w, "Knowledge base selected")
}
